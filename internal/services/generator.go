package services

import (
	"context"

	"github.com/pkg/errors"

	"mjml_stream/internal/clients/anthropic"
	"mjml_stream/internal/clients/ollama"
	"mjml_stream/internal/clients/openai"
	"mjml_stream/internal/config"
	"mjml_stream/internal/models"
)

// NewGenerator 根据配置创建上游生成器
func NewGenerator(cfg *config.Config) (models.Generator, error) {
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicGenerator(anthropic.NewClient(anthropic.Config{
			BaseURL:    cfg.Anthropic.BaseURL,
			APIKey:     cfg.Anthropic.APIKey,
			Version:    cfg.Anthropic.Version,
			Model:      cfg.Anthropic.Model,
			MaxTokens:  cfg.Anthropic.MaxTokens,
			MaxRetries: 2,
		})), nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			MaxTokens:  cfg.OpenAI.MaxTokens,
			MaxRetries: 2,
		})), nil
	case config.ProviderOllama:
		return NewOllamaGenerator(ollama.NewClient(ollama.Config{
			Host:  cfg.Ollama.Host,
			Model: cfg.Ollama.Model,
		}), cfg.Ollama.MaxTokens), nil
	default:
		return nil, errors.Wrapf(config.ErrUnknownProvider, "%s", cfg.LLM.Provider)
	}
}

// AnthropicGenerator 基于 Messages API 的生成器
type AnthropicGenerator struct {
	client *anthropic.Client
}

// NewAnthropicGenerator 创建生成器
func NewAnthropicGenerator(client *anthropic.Client) *AnthropicGenerator {
	return &AnthropicGenerator{client: client}
}

func (g *AnthropicGenerator) Name() string { return config.ProviderAnthropic }

// Stream 发起流式生成
func (g *AnthropicGenerator) Stream(ctx context.Context, system string, history []models.Turn, onDelta models.DeltaFunc) error {
	messages := make([]anthropic.Message, 0, len(history))
	for _, turn := range history {
		blocks := make([]anthropic.ContentBlock, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			switch {
			case part.Type == models.PartImage && part.Image != nil:
				blocks = append(blocks, anthropic.ImageBlock(part.Image.MediaType, part.Image.Data))
			case part.Type == models.PartText:
				blocks = append(blocks, anthropic.TextBlock(part.Text))
			}
		}
		messages = append(messages, anthropic.Message{Role: string(turn.Role), Content: blocks})
	}
	return g.client.StreamText(ctx, system, messages, onDelta)
}

// OpenAIGenerator 基于对话补全接口的生成器
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator 创建生成器
func NewOpenAIGenerator(client *openai.Client) *OpenAIGenerator {
	return &OpenAIGenerator{client: client}
}

func (g *OpenAIGenerator) Name() string { return config.ProviderOpenAI }

// Stream 发起流式生成
func (g *OpenAIGenerator) Stream(ctx context.Context, system string, history []models.Turn, onDelta models.DeltaFunc) error {
	messages := make([]openai.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.Message{Role: "system", Text: system})
	}
	for _, turn := range history {
		msg := openai.Message{Role: string(turn.Role), Text: turn.Text()}
		for _, img := range turn.Images() {
			msg.Images = append(msg.Images, openai.Image{MediaType: img.MediaType, Data: img.Data})
		}
		messages = append(messages, msg)
	}
	return g.client.StreamText(ctx, messages, onDelta)
}

// OllamaGenerator 基于 Ollama 对话接口的生成器
type OllamaGenerator struct {
	client    *ollama.Client
	maxTokens int
}

// NewOllamaGenerator 创建生成器
func NewOllamaGenerator(client *ollama.Client, maxTokens int) *OllamaGenerator {
	return &OllamaGenerator{client: client, maxTokens: maxTokens}
}

func (g *OllamaGenerator) Name() string { return config.ProviderOllama }

// Stream 发起流式生成
func (g *OllamaGenerator) Stream(ctx context.Context, system string, history []models.Turn, onDelta models.DeltaFunc) error {
	messages := make([]ollama.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: system})
	}
	for _, turn := range history {
		msg := ollama.Message{Role: string(turn.Role), Content: turn.Text()}
		for _, img := range turn.Images() {
			msg.Images = append(msg.Images, img.Data)
		}
		messages = append(messages, msg)
	}

	options := ollama.Options{NumPredict: g.maxTokens}
	return g.client.ChatStream(ctx, messages, options, func(resp *ollama.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return onDelta(resp.Message.Content)
	})
}
