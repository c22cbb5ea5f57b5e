// Package config 提供配置加载和管理功能
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var globalConfig *Config

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
	Render    RenderConfig    `yaml:"render"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host"`             // 服务器监听地址
	Port            int           `yaml:"port"`             // 服务器监听端口
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // 优雅关闭的等待时间
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize   int           `yaml:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize  int           `yaml:"write_buffer_size"` // 写缓冲区大小
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // 握手超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `yaml:"level"`   // 日志级别
	Console bool   `yaml:"console"` // 是否输出为控制台格式
}

// RenderConfig 渲染与标识注入配置
type RenderConfig struct {
	MJMLBinary   string `yaml:"mjml_binary"`   // mjml 命令路径，为空时不渲染HTML
	KeepComments bool   `yaml:"keep_comments"` // 是否保留注释
	Minify       *bool  `yaml:"minify"`        // 是否压缩输出
	Policy       string `yaml:"policy"`        // 最终标识策略: class / inline / none
}

// MinifyEnabled 是否压缩输出，未配置时默认开启
func (c RenderConfig) MinifyEnabled() bool {
	return c.Minify == nil || *c.Minify
}

// 从环境变量覆盖的密钥
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvRedisPassword   = "REDIS_PASSWORD"
)

// GetConfig 获取全局配置实例
func GetConfig() *Config {
	return globalConfig
}

// Load 从文件加载配置
//
// 同目录或工作目录下的 .env 文件会先被加载，环境变量中的密钥覆盖配置文件。
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "解析配置文件失败")
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "加载.env文件失败")
	}
	applyEnv(&config)

	setDefaults(&config)

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, errors.Wrap(err, "配置验证失败")
	}

	// 设置全局配置
	globalConfig = &config

	return &config, nil
}

// applyEnv 使用环境变量覆盖密钥
func applyEnv(config *Config) {
	if v := os.Getenv(EnvAnthropicAPIKey); v != "" {
		config.Anthropic.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		config.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		config.Redis.Password = v
	}
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderAnthropic
	}
	if config.Anthropic.BaseURL == "" {
		config.Anthropic.BaseURL = "https://api.anthropic.com"
	}
	if config.Anthropic.Version == "" {
		config.Anthropic.Version = "2023-06-01"
	}
	if config.Anthropic.Model == "" {
		config.Anthropic.Model = "claude-3-7-sonnet-20250219"
	}
	if config.Anthropic.MaxTokens == 0 {
		config.Anthropic.MaxTokens = 4000
	}
	if config.OpenAI.MaxTokens == 0 {
		config.OpenAI.MaxTokens = 4000
	}
	if config.Ollama.Host == "" {
		config.Ollama.Host = "http://localhost:11434"
	}
	if config.Ollama.MaxTokens == 0 {
		config.Ollama.MaxTokens = 4000
	}

	if config.Session.Backend == "" {
		config.Session.Backend = SessionBackendMemory
	}
	if config.Session.MaxHistory == 0 {
		config.Session.MaxHistory = 10
	}
	if config.Session.IdleTTL > 0 && config.Session.SweepInterval == 0 {
		config.Session.SweepInterval = time.Minute
	}
	if config.Redis.Host == "" {
		config.Redis.Host = "localhost"
	}
	if config.Redis.Port == 0 {
		config.Redis.Port = 6379
	}
	if config.Redis.KeyPrefix == "" {
		config.Redis.KeyPrefix = "mjml:session:"
	}

	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.WebSocket.HandshakeTimeout == 0 {
		config.WebSocket.HandshakeTimeout = 10 * time.Second
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Render.Policy == "" {
		config.Render.Policy = "class"
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	// 验证服务器配置
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return ErrInvalidPort
	}

	if err := config.LLM.Validate(); err != nil {
		return err
	}
	switch config.LLM.Provider {
	case ProviderAnthropic:
		if err := config.Anthropic.Validate(); err != nil {
			return err
		}
	case ProviderOpenAI:
		if err := config.OpenAI.Validate(); err != nil {
			return err
		}
	case ProviderOllama:
		if err := config.Ollama.Validate(); err != nil {
			return err
		}
	}

	if err := config.Session.Validate(); err != nil {
		return err
	}
	if config.Session.Backend == SessionBackendRedis {
		if err := config.Redis.Validate(); err != nil {
			return err
		}
	}

	switch config.Render.Policy {
	case "class", "inline", "none":
	default:
		return errors.Wrapf(ErrUnknownPolicy, "%s", config.Render.Policy)
	}
	return nil
}
