package models

import "context"

// GenerateRequest 生成接口的请求体
type GenerateRequest struct {
	Prompt      string `json:"prompt"`                // 提示词，必填且不能为空白
	CurrentMJML string `json:"currentMjml,omitempty"` // 编辑器中的当前文档
	Image       string `json:"image,omitempty"`       // base64 图片，不含 data-URL 前缀
	SessionID   string `json:"sessionId,omitempty"`   // 复用的会话ID
}

// DeltaFunc 接收上游增量文本的回调
type DeltaFunc func(text string) error

// Generator 上游生成模型
type Generator interface {
	// Name 提供方名称
	Name() string

	// Stream 以系统提示词和完整历史发起一次流式生成，每个文本增量回调一次
	Stream(ctx context.Context, system string, history []Turn, onDelta DeltaFunc) error
}
