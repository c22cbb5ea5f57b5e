// Package models 定义会话、请求与上游生成器的共享模型
package models

import "strings"

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"      // 用户
	RoleAssistant Role = "assistant" // 助手
)

// PartType 内容片段类型
type PartType string

const (
	PartText  PartType = "text"  // 文本片段
	PartImage PartType = "image" // 图片片段
)

// ImageSource 图片数据
type ImageSource struct {
	Encoding  string `json:"encoding"`   // 编码方式，固定为 base64
	MediaType string `json:"media_type"` // MIME类型
	Data      string `json:"data"`       // 编码后的数据（不含 data-URL 前缀）
}

// ContentPart 多段内容中的一段
type ContentPart struct {
	Type  PartType     `json:"type"`
	Text  string       `json:"text,omitempty"`
	Image *ImageSource `json:"image,omitempty"`
}

// Turn 会话历史中的一条消息
//
// 纯文本消息只有一个文本片段；带图片的用户消息依次包含图片片段和文本片段。
type Turn struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// TextTurn 创建纯文本消息
func TextTurn(role Role, text string) Turn {
	return Turn{
		Role:  role,
		Parts: []ContentPart{{Type: PartText, Text: text}},
	}
}

// ImageTurn 创建图片+文本的用户消息
func ImageTurn(image ImageSource, text string) Turn {
	img := image
	return Turn{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: PartImage, Image: &img},
			{Type: PartText, Text: text},
		},
	}
}

// IsPlainText 是否为单段纯文本
func (t Turn) IsPlainText() bool {
	return len(t.Parts) == 1 && t.Parts[0].Type == PartText
}

// Text 拼接所有文本片段
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Images 返回所有图片片段
func (t Turn) Images() []ImageSource {
	var images []ImageSource
	for _, p := range t.Parts {
		if p.Type == PartImage && p.Image != nil {
			images = append(images, *p.Image)
		}
	}
	return images
}

// Clone 深拷贝消息
func (t Turn) Clone() Turn {
	parts := make([]ContentPart, len(t.Parts))
	for i, p := range t.Parts {
		parts[i] = p
		if p.Image != nil {
			img := *p.Image
			parts[i].Image = &img
		}
	}
	return Turn{Role: t.Role, Parts: parts}
}

// CloneTurns 深拷贝消息列表
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
