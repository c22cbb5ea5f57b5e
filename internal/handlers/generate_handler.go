package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/config"
	"mjml_stream/internal/middleware"
	"mjml_stream/internal/models"
	"mjml_stream/internal/services"
	"mjml_stream/internal/stream"
)

// GenerateHandler 生成接口处理器
type GenerateHandler struct {
	relay    *services.RelayService
	upgrader websocket.Upgrader
}

// NewGenerateHandler 创建生成接口处理器
func NewGenerateHandler(relay *services.RelayService, wsConfig config.WebSocketConfig) *GenerateHandler {
	return &GenerateHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   wsConfig.ReadBufferSize,
			WriteBufferSize:  wsConfig.WriteBufferSize,
			HandshakeTimeout: wsConfig.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleSSE 处理流式生成请求，以SSE返回帧
func (h *GenerateHandler) HandleSSE(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	state, err := h.relay.Relay(c.Request.Context(), req, newSSEWriter(c.Writer))
	logRelay(c, "sse", state, err)
}

// HandleWebSocket 处理WebSocket生成请求
//
// 客户端发送一条JSON请求，服务端逐条发送帧，最后发送 [DONE] 并关闭连接。
func (h *GenerateHandler) HandleWebSocket(c *gin.Context) {
	// 升级HTTP连接为WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("升级WebSocket连接失败")
		return
	}
	defer conn.Close()

	var req models.GenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Warn().Err(err).Msg("读取WebSocket请求失败")
		if payload, err := stream.Marshal(stream.Envelope{Error: "Invalid request body"}); err == nil {
			conn.WriteMessage(websocket.TextMessage, payload)
		}
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 客户端关闭或断开时取消上游请求
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	writer := &wsWriter{conn: conn}
	state, err := h.relay.Relay(ctx, req, writer)
	logRelay(c, "websocket", state, err)

	writer.mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, state.String()),
		time.Now().Add(time.Second))
	writer.mu.Unlock()
}

func logRelay(c *gin.Context, transport string, state services.RelayState, err error) {
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("request_id", middleware.GetRequestID(c)).
		Str("transport", transport).
		Str("state", state.String()).
		Msg("中继结束")
}
