// Package anthropic 封装 Anthropic Messages API 的流式生成
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL 官方API地址
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultVersion anthropic-version 请求头
	DefaultVersion = "2023-06-01"
	// DefaultModel 默认模型
	DefaultModel = "claude-3-7-sonnet-20250219"
	// DefaultMaxTokens 默认最大生成token数
	DefaultMaxTokens = 4000
)

// ErrIncompleteMessage 上游流在 message_stop 之前结束
var ErrIncompleteMessage = errors.New("Anthropic流在 message_stop 之前结束")

// Config Anthropic客户端配置
type Config struct {
	BaseURL    string // API地址
	APIKey     string // API密钥
	Version    string // API版本
	Model      string // 模型名称
	MaxTokens  int    // 最大生成token数
	MaxRetries int    // 请求失败重试次数
}

// ContentBlock 消息内容块
type ContentBlock struct {
	Text      string
	MediaType string // 非空时为图片块
	Data      string // base64图片数据
}

// Message 单条消息
type Message struct {
	Role    string // user / assistant
	Content []ContentBlock
}

// TextBlock 创建文本内容块
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ImageBlock 创建base64图片内容块
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{MediaType: mediaType, Data: data}
}

// Client Anthropic客户端
type Client struct {
	config Config
	client anthropic.Client
}

// NewClient 创建新的Anthropic客户端
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	return &Client{
		config: config,
		client: anthropic.NewClient(
			option.WithAPIKey(config.APIKey),
			option.WithBaseURL(strings.TrimRight(config.BaseURL, "/")+"/"),
			option.WithHeader("anthropic-version", config.Version),
			option.WithMaxRetries(config.MaxRetries),
		),
	}
}

// Model 当前使用的模型
func (c *Client) Model() string {
	return c.config.Model
}

// toParams 转换为请求消息
func toParams(messages []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			if b.MediaType != "" {
				blocks = append(blocks, anthropic.NewImageBlockBase64(b.MediaType, b.Data))
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(b.Text))
		}
		if m.Role == "assistant" {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		} else {
			params = append(params, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

// StreamText 发起流式请求，只回调文本增量
//
// 流在 message_stop 之前结束时返回 ErrIncompleteMessage。
func (c *Client) StreamText(ctx context.Context, system string, messages []Message, onText func(string) error) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages:  toParams(messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	stopped := false
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if err := onText(delta.Text); err != nil {
				return err
			}
		case anthropic.MessageStopEvent:
			stopped = true
		}
	}

	if err := stream.Err(); err != nil {
		return errors.Wrap(err, "读取Anthropic响应流失败")
	}
	if !stopped {
		return ErrIncompleteMessage
	}
	return nil
}
