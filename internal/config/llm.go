package config

import "github.com/pkg/errors"

// 上游提供方
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// LLMConfig 生成模型配置
type LLMConfig struct {
	Provider     string `yaml:"provider"`      // anthropic / openai / ollama
	SystemPrompt string `yaml:"system_prompt"` // 覆盖内置的系统提示词
}

// AnthropicConfig Anthropic配置
type AnthropicConfig struct {
	BaseURL   string `yaml:"base_url"`   // API地址
	APIKey    string `yaml:"api_key"`    // API密钥
	Version   string `yaml:"version"`    // API版本
	Model     string `yaml:"model"`      // 模型名称
	MaxTokens int    `yaml:"max_tokens"` // 最大生成token数
}

// OpenAIConfig OpenAI兼容接口配置
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`   // 接口地址
	APIKey    string `yaml:"api_key"`    // API密钥
	Model     string `yaml:"model"`      // 模型名称
	MaxTokens int    `yaml:"max_tokens"` // 最大生成token数
}

// OllamaConfig Ollama配置
type OllamaConfig struct {
	Host      string `yaml:"host"`       // Ollama服务器地址
	Model     string `yaml:"model"`      // 模型名称
	MaxTokens int    `yaml:"max_tokens"` // 最大生成token数
}

// Validate 验证生成模型配置
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
		return nil
	default:
		return errors.Wrapf(ErrUnknownProvider, "%s", c.Provider)
	}
}

// Validate 验证Anthropic配置
func (c *AnthropicConfig) Validate() error {
	if c.APIKey == "" {
		return ErrEmptyAPIKey
	}
	if c.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// Validate 验证OpenAI配置
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return ErrEmptyAPIKey
	}
	if c.Model == "" {
		return ErrEmptyModel
	}
	if c.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// Validate 验证Ollama配置
func (c *OllamaConfig) Validate() error {
	if c.Host == "" {
		return ErrEmptyHost
	}
	if c.Model == "" {
		return ErrEmptyModel
	}
	if c.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}
