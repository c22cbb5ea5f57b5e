package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mjml_stream/internal/stream"
)

// sseWriter 以 text/event-stream 写出帧，每帧后立即刷新
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) WriteFrame(env stream.Envelope) error {
	data, err := stream.EncodeFrame(env)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) WriteDone() error {
	if _, err := s.w.Write([]byte(stream.DoneFrame)); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// wsWriteWait 单条消息写超时
const wsWriteWait = 10 * time.Second

// wsWriter 每个帧作为一条文本消息发送，负载与SSE帧的JSON一致
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsWriter) WriteFrame(env stream.Envelope) error {
	payload, err := stream.Marshal(env)
	if err != nil {
		return err
	}
	return w.write(payload)
}

func (w *wsWriter) WriteDone() error {
	return w.write([]byte(stream.DoneSentinel))
}
