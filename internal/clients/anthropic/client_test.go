package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-test","usage":{"input_tokens":1,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type": "ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"<mj-text>"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Welcome</mj-text>"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_stop
data: {"type":"message_stop"}

`

func sseServer(t *testing.T, body string, inspect func(r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// 按小块写出
		for i := 0; i < len(body); i += 17 {
			end := min(i+17, len(body))
			fmt.Fprint(w, body[i:end])
			flusher.Flush()
		}
	}))
}

func TestClient_StreamText(t *testing.T) {
	var captured map[string]any
	server := sseServer(t, sampleStream, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, DefaultVersion, r.Header.Get("anthropic-version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, jsoniter.Unmarshal(body, &captured))
	})
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key"})
	messages := []Message{
		{Role: "user", Content: []ContentBlock{ImageBlock("image/png", "AAAA"), TextBlock("Add a welcome header")}},
	}

	var deltas []string
	err := client.StreamText(context.Background(), "system prompt", messages, func(text string) error {
		deltas = append(deltas, text)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"<mj-text>", "Welcome</mj-text>"}, deltas)
	assert.Equal(t, DefaultModel, captured["model"])
	assert.EqualValues(t, DefaultMaxTokens, captured["max_tokens"])
	assert.Equal(t, true, captured["stream"])

	system := captured["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, "system prompt", system[0].(map[string]any)["text"])

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	image := content[0].(map[string]any)
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, "base64", image["source"].(map[string]any)["type"])
	assert.Equal(t, "image/png", image["source"].(map[string]any)["media_type"])
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	err := client.StreamText(context.Background(), "", []Message{{Role: "user", Content: []ContentBlock{TextBlock("hi")}}},
		func(string) error { return nil })

	var apiErr *anthropic.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestClient_StreamErrorEvent(t *testing.T) {
	body := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n" +
		"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"
	server := sseServer(t, body, nil)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	var deltas []string
	err := client.StreamText(context.Background(), "", nil, func(text string) error {
		deltas = append(deltas, text)
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
	assert.Equal(t, []string{"partial"}, deltas)
}

func TestClient_MissingMessageStop(t *testing.T) {
	body := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"<mj-text>Half\"}}\n\n"
	server := sseServer(t, body, nil)
	defer server.Close()

	var deltas []string
	err := NewClient(Config{BaseURL: server.URL}).StreamText(context.Background(), "", nil, func(text string) error {
		deltas = append(deltas, text)
		return nil
	})
	assert.ErrorIs(t, err, ErrIncompleteMessage)
	assert.Equal(t, []string{"<mj-text>Half"}, deltas)
}

func TestClient_CallbackErrorStops(t *testing.T) {
	server := sseServer(t, sampleStream, nil)
	defer server.Close()

	stop := fmt.Errorf("客户端断开")
	client := NewClient(Config{BaseURL: server.URL})
	calls := 0
	err := client.StreamText(context.Background(), "", nil, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
