package config

import (
	"fmt"
	"time"
)

// 会话存储后端
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// SessionConfig 会话配置
type SessionConfig struct {
	Backend       string        `yaml:"backend"`        // memory / redis
	MaxHistory    int           `yaml:"max_history"`    // 保留的最大消息数
	IdleTTL       time.Duration `yaml:"idle_ttl"`       // 空闲过期时间，0表示永不过期
	SweepInterval time.Duration `yaml:"sweep_interval"` // 内存后端的清理间隔
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string `yaml:"host"`       // Redis主机地址
	Port      int    `yaml:"port"`       // Redis端口
	Password  string `yaml:"password"`   // Redis密码
	DB        int    `yaml:"db"`         // Redis数据库编号
	KeyPrefix string `yaml:"key_prefix"` // 会话键前缀
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate 验证会话配置
func (c *SessionConfig) Validate() error {
	switch c.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return ErrUnknownBackend
	}
	if c.MaxHistory <= 0 {
		return ErrInvalidMaxHistory
	}
	if c.IdleTTL < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// Validate 验证Redis配置
func (c *RedisConfig) Validate() error {
	if c.Host == "" {
		return ErrEmptyHost
	}
	if c.Port <= 0 {
		return ErrInvalidPort
	}
	return nil
}
