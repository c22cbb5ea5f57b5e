package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mjml_stream/internal/document"
)

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "mjml_stream",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// DefaultDocument 返回编辑器的初始文档
func DefaultDocument(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mjml": document.DefaultDocument,
	})
}
