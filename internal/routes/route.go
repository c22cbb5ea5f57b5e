package routes

import (
	"github.com/gin-gonic/gin"

	"mjml_stream/internal/handlers"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, generateHandler *handlers.GenerateHandler) {
	r.GET("/health", handlers.Health)

	// 注册生成路由
	RegisterGenerateRoutes(r, generateHandler)
}
