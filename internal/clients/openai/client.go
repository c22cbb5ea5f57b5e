// Package openai 封装兼容 OpenAI 的对话补全流式接口
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
)

// Config 客户端配置
type Config struct {
	BaseURL    string // 兼容接口地址，为空时使用官方地址
	APIKey     string // API密钥
	Model      string // 模型名称
	MaxTokens  int    // 最大生成token数
	MaxRetries int    // 请求失败重试次数
}

// Image 附带的图片
type Image struct {
	MediaType string
	Data      string // base64数据
}

// Message 对话消息
type Message struct {
	Role   string // system / user / assistant
	Text   string
	Images []Image
}

// Client 对话补全客户端
type Client struct {
	config Config
	client *openai.Client
}

// NewClient 创建客户端
func NewClient(config Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &Client{
		config: config,
		client: openai.NewClient(opts...),
	}
}

// Model 当前使用的模型
func (c *Client) Model() string {
	return c.config.Model
}

// toParams 转换为请求消息
func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			params = append(params, openai.SystemMessage(m.Text))
		case "assistant":
			params = append(params, openai.AssistantMessage(m.Text))
		default:
			if len(m.Images) == 0 {
				params = append(params, openai.UserMessage(m.Text))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImagePart(fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)))
			}
			parts = append(parts, openai.TextPart(m.Text))
			params = append(params, openai.UserMessageParts(parts...))
		}
	}
	return params
}

// StreamText 发起流式补全，每个非空文本增量回调一次
func (c *Client) StreamText(ctx context.Context, messages []Message, onText func(string) error) error {
	params := openai.ChatCompletionNewParams{
		Messages: openai.F(toParams(messages)),
		Model:    openai.F(c.config.Model),
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(c.config.MaxTokens))
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			if err := onText(text); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return errors.Errorf("OpenAI返回错误状态 %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return errors.Wrap(err, "读取补全流失败")
	}
	return nil
}
