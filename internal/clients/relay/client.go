// Package relay 通过SSE调用生成中继服务
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/consumer"
	"mjml_stream/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeneratePath 流式生成接口路径
const GeneratePath = "/api/generate-mjml-stream"

// Config 中继客户端配置
type Config struct {
	BaseURL string        // 中继服务地址，如 http://localhost:3000
	Timeout time.Duration // 整个请求的超时，0 表示不限制
}

// Client 中继SSE客户端
type Client struct {
	config     Config
	httpClient *http.Client
}

// APIError 中继返回的非成功状态
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("中继返回错误状态 %d: %s", e.StatusCode, e.Body)
}

// NewClient 创建中继客户端
func NewClient(config Config) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Stream 一次生成请求的响应流
type Stream struct {
	body io.ReadCloser
}

// Frames 解码响应中的帧
func (s *Stream) Frames() consumer.Source {
	return consumer.Frames(s.body)
}

// Close 关闭响应体，同时中止仍在进行的读取
func (s *Stream) Close() error {
	return s.body.Close()
}

// Generate 发起流式生成请求
//
// 取消 ctx 会关闭底层连接，服务端随之取消上游请求。
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "序列化请求失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "创建请求失败")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "发送请求失败")
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	log.Debug().
		Str("url", c.config.BaseURL+GeneratePath).
		Str("session_id", req.SessionID).
		Msg("已连接中继")
	return &Stream{body: resp.Body}, nil
}
