// Package ws 通过WebSocket调用生成中继服务
package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/consumer"
	"mjml_stream/internal/models"
	"mjml_stream/internal/stream"
)

// GeneratePath WebSocket生成接口路径
const GeneratePath = "/ws/generate"

// Config WebSocket客户端配置
type Config struct {
	URL               string            // 服务地址，http(s) 会转换为 ws(s)
	Headers           map[string]string // 自定义请求头
	HandshakeTimeout  time.Duration     // 握手超时
	HeartbeatInterval time.Duration     // 心跳间隔，0 表示不发送
}

// Client WebSocket中继客户端
type Client struct {
	config Config
}

// NewClient 创建WebSocket客户端
func NewClient(config Config) *Client {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	return &Client{config: config}
}

// endpoint 拼接生成接口地址
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", errors.Wrap(err, "解析URL失败")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if !strings.HasSuffix(u.Path, GeneratePath) {
		u.Path = strings.TrimRight(u.Path, "/") + GeneratePath
	}
	return u.String(), nil
}

// Conn 一次生成请求的连接
type Conn struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Generate 建立连接并发送生成请求
//
// 取消 ctx 会关闭连接，服务端随之取消上游请求。
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (*Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}

	log.Debug().Str("url", endpoint).Msg("正在连接WebSocket服务器")

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	wsConn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, errors.Wrap(err, "连接WebSocket失败")
	}

	conn := &Conn{conn: wsConn, done: make(chan struct{})}
	if err := conn.send(req); err != nil {
		conn.Close()
		return nil, err
	}

	go conn.watch(ctx)
	if c.config.HeartbeatInterval > 0 {
		go conn.heartbeat(c.config.HeartbeatInterval)
	}
	return conn, nil
}

func (c *Conn) send(req models.GenerateRequest) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.conn.WriteJSON(req); err != nil {
		return errors.Wrap(err, "发送请求失败")
	}
	return nil
}

// watch ctx 取消时关闭连接以中止读取
func (c *Conn) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		c.Close()
	case <-c.done:
	}
}

// heartbeat 定期发送 ping，保持长时间生成期间的连接
func (c *Conn) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeLock.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
			c.writeLock.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("发送心跳失败")
				return
			}
		}
	}
}

// Frames 逐条读取消息并解码为帧，收到 [DONE] 结束
func (c *Conn) Frames() consumer.Source {
	return func(yield func(stream.Envelope, error) bool) {
		for {
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					yield(stream.Envelope{}, stream.ErrMissingDone)
					return
				}
				yield(stream.Envelope{}, errors.Wrap(err, "读取消息失败"))
				return
			}

			if string(message) == stream.DoneSentinel {
				return
			}

			env, err := stream.ParsePayload(message)
			if err != nil {
				err = &stream.FrameParseError{Line: string(message), Err: err}
				if !yield(stream.Envelope{}, err) {
					return
				}
				continue
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

// Close 关闭连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeLock.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeLock.Unlock()
		err = c.conn.Close()
	})
	return err
}
