package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mjml_stream/internal/document"
	"mjml_stream/internal/imageutil"
	"mjml_stream/internal/models"
	"mjml_stream/internal/session"
	"mjml_stream/internal/stream"
)

// fakeGenerator 记录调用并按预设输出增量
type fakeGenerator struct {
	mu       sync.Mutex
	deltas   []string
	err      error
	calls    int
	system   string
	contexts [][]models.Turn
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Stream(ctx context.Context, system string, history []models.Turn, onDelta models.DeltaFunc) error {
	g.mu.Lock()
	g.calls++
	g.system = system
	g.contexts = append(g.contexts, models.CloneTurns(history))
	g.mu.Unlock()

	for _, d := range g.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return g.err
}

// recordingWriter 记录写出的帧，同时生成SSE原文
type recordingWriter struct {
	frames  []stream.Envelope
	done    int
	raw     bytes.Buffer
	failAt  int // 第 n 次写帧失败，0 表示不失败
	written int
}

func (w *recordingWriter) WriteFrame(env stream.Envelope) error {
	w.written++
	if w.failAt > 0 && w.written >= w.failAt {
		return errors.New("broken pipe")
	}
	w.frames = append(w.frames, env)
	data, err := stream.EncodeFrame(env)
	if err != nil {
		return err
	}
	w.raw.Write(data)
	return nil
}

func (w *recordingWriter) WriteDone() error {
	w.done++
	w.raw.WriteString(stream.DoneFrame)
	return nil
}

func newTestRelay(gen *fakeGenerator, maxHistory int) (*RelayService, *session.MemoryStore) {
	store := session.NewMemoryStore(maxHistory)
	return NewRelayService(store, gen, ""), store
}

func TestRelay_ScenarioA(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{`<mj-text font-size="20px">`, "Welcome!", "</mj-text>"}}
	svc, store := newTestRelay(gen, 10)
	w := &recordingWriter{}

	state, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "Add a welcome header"}, w)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	require.Len(t, w.frames, 6)
	sessionID := w.frames[0].SessionID
	assert.True(t, strings.HasPrefix(sessionID, "session_"))
	assert.Equal(t, stream.Envelope{SessionID: sessionID}, w.frames[0])
	assert.Equal(t, stream.Envelope{Type: stream.FrameStructureStart, Content: document.Opening}, w.frames[1])
	for _, f := range w.frames[2:5] {
		assert.Equal(t, stream.FrameContent, f.Type)
	}
	assert.Equal(t, stream.Envelope{Type: stream.FrameStructureEnd, Content: document.Closing}, w.frames[5])
	assert.Equal(t, 1, w.done)

	sessionFrames := 0
	var doc strings.Builder
	for _, f := range w.frames {
		if f.SessionID != "" {
			sessionFrames++
		}
		doc.WriteString(f.Content)
	}
	assert.Equal(t, 1, sessionFrames)
	assert.True(t, strings.HasPrefix(doc.String(), document.Opening))
	assert.True(t, strings.HasSuffix(doc.String(), document.Closing))
	assert.True(t, strings.HasSuffix(w.raw.String(), "data: [DONE]\n\n"))

	history, err := store.HistorySnapshot(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Add a welcome header", history[0].Text())
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, `<mj-text font-size="20px">Welcome!</mj-text>`, history[1].Text())
	assert.Equal(t, DefaultSystemPrompt, gen.system)
}

func TestRelay_ScenarioC_SessionReuse(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"<mj-text>one</mj-text>"}}
	svc, _ := newTestRelay(gen, 10)

	first := &recordingWriter{}
	_, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "first"}, first)
	require.NoError(t, err)
	sessionID := first.frames[0].SessionID

	gen.deltas = []string{"<mj-text>two</mj-text>"}
	second := &recordingWriter{}
	_, err = svc.Relay(context.Background(), models.GenerateRequest{Prompt: "second", SessionID: sessionID}, second)
	require.NoError(t, err)
	assert.Equal(t, sessionID, second.frames[0].SessionID)

	require.Len(t, gen.contexts, 2)
	ctx := gen.contexts[1]
	require.Len(t, ctx, 3)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser},
		[]models.Role{ctx[0].Role, ctx[1].Role, ctx[2].Role})
	assert.Equal(t, "first", ctx[0].Text())
	assert.Equal(t, "<mj-text>one</mj-text>", ctx[1].Text())
	assert.Equal(t, "second", ctx[2].Text())
}

func TestRelay_ScenarioD_BlankPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		gen := &fakeGenerator{deltas: []string{"x"}}
		svc, store := newTestRelay(gen, 10)
		w := &recordingWriter{}

		state, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: prompt}, w)

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, StateErrorClosed, state)
		require.Len(t, w.frames, 1)
		assert.Equal(t, stream.Envelope{Error: MsgPromptRequired}, w.frames[0])
		assert.Zero(t, w.done)
		assert.Zero(t, gen.calls)
		assert.Zero(t, store.Len())
	}
}

func TestRelay_UpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"<mj-text>par"}, err: errors.New("API Error: 529 - overloaded")}
	svc, store := newTestRelay(gen, 10)
	w := &recordingWriter{}

	state, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "hello"}, w)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, StateErrorClosed, state)

	last := w.frames[len(w.frames)-1]
	assert.True(t, last.IsError())
	assert.Contains(t, last.Error, "overloaded")
	assert.Zero(t, w.done)
	for _, f := range w.frames {
		assert.NotEqual(t, stream.FrameStructureEnd, f.Type)
	}

	// 用户消息保留，部分助手回复丢弃
	history, err := store.HistorySnapshot(context.Background(), w.frames[0].SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestRelay_TransportFailure(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"a", "b", "c"}}
	svc, store := newTestRelay(gen, 10)
	w := &recordingWriter{failAt: 4}

	state, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "hello"}, w)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, StateErrorClosed, state)
	assert.Len(t, w.frames, 3)

	history, err := store.HistorySnapshot(context.Background(), w.frames[0].SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRelay_HistoryBound(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"<mj-text>ok</mj-text>"}}
	svc, store := newTestRelay(gen, 4)

	w := &recordingWriter{}
	_, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "p0"}, w)
	require.NoError(t, err)
	id := w.frames[0].SessionID

	for i := 1; i < 6; i++ {
		_, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "p", SessionID: id}, &recordingWriter{})
		require.NoError(t, err)

		history, err := store.HistorySnapshot(context.Background(), id)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(history), 4)
		assert.Equal(t, models.RoleUser, history[0].Role)
	}
	for _, c := range gen.contexts {
		assert.LessOrEqual(t, len(c), 4)
	}
}

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return imageutil.Encode(buf.Bytes())
}

func TestRelay_ImageTurn(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"<mj-image src=\"x\" />"}}
	svc, _ := newTestRelay(gen, 10)

	_, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "describe", Image: pngBase64(t)}, &recordingWriter{})
	require.NoError(t, err)

	turn := gen.contexts[0][0]
	require.Len(t, turn.Parts, 2)
	assert.Equal(t, models.PartImage, turn.Parts[0].Type)
	assert.Equal(t, "image/png", turn.Parts[0].Image.MediaType)
	assert.Equal(t, "base64", turn.Parts[0].Image.Encoding)
	assert.Equal(t, "describe", turn.Parts[1].Text)
}

func TestRelay_InvalidImage(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store := newTestRelay(gen, 10)
	w := &recordingWriter{}

	state, err := svc.Relay(context.Background(), models.GenerateRequest{
		Prompt: "describe",
		Image:  imageutil.Encode([]byte("plain text, not an image")),
	}, w)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ErrorIs(t, err, imageutil.ErrNotImage)
	assert.Equal(t, StateErrorClosed, state)
	require.Len(t, w.frames, 1)
	assert.True(t, w.frames[0].IsError())
	assert.Zero(t, gen.calls)
	assert.Zero(t, store.Len())
}

func TestRelay_CustomSystemPrompt(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"x"}}
	svc := NewRelayService(session.NewMemoryStore(10), gen, "custom")
	_, err := svc.Relay(context.Background(), models.GenerateRequest{Prompt: "hi"}, &recordingWriter{})
	require.NoError(t, err)
	assert.Equal(t, "custom", gen.system)
}

func TestRelayState_String(t *testing.T) {
	assert.Equal(t, "awaiting_upstream", StateAwaitingUpstream.String())
	assert.Equal(t, "error_closed", StateErrorClosed.String())
}
