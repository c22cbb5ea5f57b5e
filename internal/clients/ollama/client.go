// Package ollama 实现 Ollama 对话接口的客户端
package ollama

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config Ollama客户端配置
type Config struct {
	Host  string // Ollama服务器地址（完整URL）
	Model string // 使用的模型名称
}

// Client Ollama客户端
type Client struct {
	config Config
	client *http.Client
}

// Message 对话消息
type Message struct {
	Role    string   `json:"role"`             // system / user / assistant
	Content string   `json:"content"`          // 文本内容
	Images  []string `json:"images,omitempty"` // base64图片
}

// ChatRequest 对话请求参数
type ChatRequest struct {
	Model    string    `json:"model"`             // 模型名称
	Messages []Message `json:"messages"`          // 消息列表
	Stream   bool      `json:"stream"`            // 是否流式输出
	Options  Options   `json:"options,omitempty"` // 可选参数
}

// Options 生成选项
type Options struct {
	Temperature float64 `json:"temperature,omitempty"` // 温度参数
	TopP        float64 `json:"top_p,omitempty"`       // Top-p采样
	TopK        int     `json:"top_k,omitempty"`       // Top-k采样
	NumPredict  int     `json:"num_predict,omitempty"` // 最大生成token数
}

// ChatResponse 对话响应（流式时为单个增量）
type ChatResponse struct {
	Model           string  `json:"model"`             // 模型名称
	CreatedAt       string  `json:"created_at"`        // 创建时间
	Message         Message `json:"message"`           // 生成的消息
	Done            bool    `json:"done"`              // 是否完成
	DoneReason      string  `json:"done_reason"`       // 完成原因
	TotalDuration   int64   `json:"total_duration"`    // 总耗时(纳秒)
	LoadDuration    int64   `json:"load_duration"`     // 加载耗时(纳秒)
	PromptEvalCount int     `json:"prompt_eval_count"` // 提示词评估数量
	EvalCount       int     `json:"eval_count"`        // 评估数量
	EvalDuration    int64   `json:"eval_duration"`     // 评估耗时(纳秒)
	Error           string  `json:"error,omitempty"`   // 流中返回的错误
}

// NewClient 创建新的Ollama客户端
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		client: &http.Client{},
	}
}

// Model 当前使用的模型
func (c *Client) Model() string {
	return c.config.Model
}

func (c *Client) newRequest(ctx context.Context, messages []Message, options Options, streaming bool) (*http.Request, error) {
	reqBody := ChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   streaming,
		Options:  options,
	}

	// 序列化请求体
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "序列化请求失败")
	}

	url := strings.TrimRight(c.config.Host, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "创建请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "发送请求失败")
	}

	// 检查响应状态码
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("服务器返回错误: %s", string(body))
	}
	return resp, nil
}

// Chat 一次性对话
func (c *Client) Chat(ctx context.Context, messages []Message, options Options) (*ChatResponse, error) {
	req, err := c.newRequest(ctx, messages, options, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 解析响应
	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "解析响应失败")
	}
	if response.Error != "" {
		return nil, errors.Errorf("服务器返回错误: %s", response.Error)
	}
	return &response, nil
}

// ChatStream 流式对话，每个NDJSON增量回调一次
func (c *Client) ChatStream(ctx context.Context, messages []Message, options Options, callback func(*ChatResponse) error) error {
	req, err := c.newRequest(ctx, messages, options, true)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)

	// 逐行读取响应
	for decoder.More() {
		var response ChatResponse
		if err := decoder.Decode(&response); err != nil {
			return errors.Wrap(err, "解析响应失败")
		}
		if response.Error != "" {
			return errors.Errorf("服务器返回错误: %s", response.Error)
		}

		if err := callback(&response); err != nil {
			return err
		}

		if response.Done {
			return nil
		}
	}

	// More 在读取出错时同样返回 false
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "请求已取消")
	}
	return nil
}
