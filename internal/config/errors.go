package config

import "errors"

// 配置相关错误
var (
	ErrInvalidPort       = errors.New("端口必须在1到65535之间")
	ErrUnknownProvider   = errors.New("未知的模型提供方")
	ErrEmptyAPIKey       = errors.New("API密钥不能为空")
	ErrEmptyModel        = errors.New("模型名称不能为空")
	ErrEmptyHost         = errors.New("主机地址不能为空")
	ErrInvalidMaxTokens  = errors.New("最大生成token数必须大于0")
	ErrUnknownBackend    = errors.New("未知的会话存储后端")
	ErrInvalidMaxHistory = errors.New("最大历史消息数必须大于0")
	ErrInvalidTTL        = errors.New("会话过期时间不能为负数")
	ErrUnknownPolicy     = errors.New("未知的标识策略")
)
