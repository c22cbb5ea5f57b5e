package routes

import (
	"github.com/gin-gonic/gin"

	"mjml_stream/internal/handlers"
)

// 生成接口路径
const (
	GeneratePath        = "/api/generate-mjml-stream"
	GenerateWSPath      = "/ws/generate"
	DefaultDocumentPath = "/api/default-mjml"
)

// RegisterGenerateRoutes 注册生成相关路由
func RegisterGenerateRoutes(r *gin.Engine, h *handlers.GenerateHandler) {
	r.POST(GeneratePath, h.HandleSSE)
	r.GET(GenerateWSPath, h.HandleWebSocket)
	r.GET(DefaultDocumentPath, handlers.DefaultDocument)
}
