package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mjml_stream/internal/config"
	"mjml_stream/internal/document"
	"mjml_stream/internal/models"
	"mjml_stream/internal/services"
	"mjml_stream/internal/session"
	"mjml_stream/internal/stream"
)

type scriptedGenerator struct {
	deltas []string
	calls  int
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Stream(ctx context.Context, system string, history []models.Turn, onDelta models.DeltaFunc) error {
	g.calls++
	for _, d := range g.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func newTestEngine(gen *scriptedGenerator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	relay := services.NewRelayService(session.NewMemoryStore(10), gen, "")
	h := NewGenerateHandler(relay, config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024})

	r := gin.New()
	r.POST("/api/generate-mjml-stream", h.HandleSSE)
	r.GET("/ws/generate", h.HandleWebSocket)
	r.GET("/health", Health)
	r.GET("/api/default-mjml", DefaultDocument)
	return r
}

func parseFrames(t *testing.T, body string) ([]stream.Envelope, bool) {
	t.Helper()
	var frames []stream.Envelope
	done := false
	var ra stream.Reassembler
	for _, line := range ra.Feed([]byte(body)) {
		env, kind, err := stream.ParseLine(line)
		require.NoError(t, err)
		switch kind {
		case stream.LineData:
			frames = append(frames, env)
		case stream.LineDone:
			done = true
		}
	}
	return frames, done
}

func TestHandleSSE(t *testing.T) {
	gen := &scriptedGenerator{deltas: []string{"<mj-text>", "Welcome", "</mj-text>"}}
	r := newTestEngine(gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-mjml-stream", strings.NewReader(`{"prompt":"Add a welcome header"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))

	frames, done := parseFrames(t, w.Body.String())
	assert.True(t, done)
	require.Len(t, frames, 6)
	assert.NotEmpty(t, frames[0].SessionID)
	assert.Equal(t, stream.FrameStructureStart, frames[1].Type)
	assert.Equal(t, document.Opening, frames[1].Content)
	assert.Equal(t, stream.FrameStructureEnd, frames[5].Type)
	assert.True(t, strings.HasSuffix(w.Body.String(), "data: [DONE]\n\n"))
}

func TestHandleSSE_BlankPrompt(t *testing.T) {
	gen := &scriptedGenerator{}
	r := newTestEngine(gen)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-mjml-stream", strings.NewReader(`{"prompt":"  "}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	frames, done := parseFrames(t, w.Body.String())
	assert.False(t, done)
	require.Len(t, frames, 1)
	assert.Equal(t, services.MsgPromptRequired, frames[0].Error)
	assert.Zero(t, gen.calls)
}

func TestHandleSSE_InvalidBody(t *testing.T) {
	r := newTestEngine(&scriptedGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/api/generate-mjml-stream", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebSocket(t *testing.T) {
	gen := &scriptedGenerator{deltas: []string{"<mj-text>hi</mj-text>"}}
	server := httptest.NewServer(newTestEngine(gen))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/generate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.GenerateRequest{Prompt: "hello"}))

	var frames []stream.Envelope
	done := false
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(msg) == stream.DoneSentinel {
			done = true
			continue
		}
		env, err := stream.ParsePayload(msg)
		require.NoError(t, err)
		frames = append(frames, env)
	}

	assert.True(t, done)
	require.Len(t, frames, 4)
	assert.NotEmpty(t, frames[0].SessionID)
	assert.Equal(t, "<mj-text>hi</mj-text>", frames[2].Content)
	assert.Equal(t, document.Closing, frames[3].Content)
}

func TestHealthAndDefaultDocument(t *testing.T) {
	r := newTestEngine(&scriptedGenerator{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/default-mjml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "element-text-1")
}
