package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/document"
	"mjml_stream/internal/stream"
)

// StreamError 服务端发送的错误帧
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("服务端错误: %s", e.Message)
}

// Result 一次消费的结果；出错时包含已收到的部分内容
type Result struct {
	SessionID   string
	Raw         string // 包装与内容的原始拼接
	Content     string // 模型生成的内容
	Document    string // 最终注入后的文档，仅完成时有值
	Progress    int    // 内容帧数
	Skipped     int    // 解析失败而跳过的帧数
	Completed   bool   // 是否收到结束标记
	AssignedIDs []string
}

// Options 消费选项
type Options struct {
	Policy document.Policy
	Now    func() time.Time
}

// Consumer 帧流消费者
type Consumer struct {
	state       *document.State
	opts        Options
	subscribers []Subscriber
	sessionID   string
}

// New 创建消费者；state 为 nil 时新建
func New(state *document.State, opts Options, subscribers ...Subscriber) *Consumer {
	if state == nil {
		state = document.NewState()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Consumer{
		state:       state,
		opts:        opts,
		subscribers: subscribers,
	}
}

// State 累积的文档状态
func (c *Consumer) State() *document.State {
	return c.state
}

// SessionID 第一个收到的会话ID
func (c *Consumer) SessionID() string {
	return c.sessionID
}

func (c *Consumer) publish(e Event) {
	for _, s := range c.subscribers {
		s.Handle(e)
	}
}

func (c *Consumer) flush() {
	for _, s := range c.subscribers {
		if f, ok := s.(Flusher); ok {
			f.Flush()
		}
	}
}

// Run 消费帧序列直到结束标记、错误帧、传输错误或 ctx 取消
//
// 每次运行开始一轮新的生成：文本清空，已分配的标识不会复用。
func (c *Consumer) Run(ctx context.Context, frames Source) (*Result, error) {
	c.state.ResetContent()
	result := &Result{}

	err := c.loop(ctx, frames, result)
	c.flush()

	result.SessionID = c.sessionID
	result.Raw = c.state.RawText()
	result.Content = c.state.Content()

	if err != nil {
		result.AssignedIDs = c.state.AssignedIDs()
		return result, err
	}

	result.Completed = true
	result.Document = c.state.Finalize(document.Options{
		Policy: c.opts.Policy,
		Metadata: document.Metadata{
			SessionID: c.sessionID,
			Timestamp: c.opts.Now(),
		},
	})
	result.AssignedIDs = c.state.AssignedIDs()

	log.Debug().
		Str("session_id", c.sessionID).
		Int("progress", result.Progress).
		Int("skipped", result.Skipped).
		Msg("帧流消费完成")
	return result, nil
}

func (c *Consumer) loop(ctx context.Context, frames Source, result *Result) error {
	for env, err := range frames {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			var parseErr *stream.FrameParseError
			if errors.As(err, &parseErr) {
				result.Skipped++
				log.Warn().Err(err).Msg("跳过无法解析的帧")
				continue
			}
			return errors.Wrap(err, "读取帧流失败")
		}

		if env.SessionID != "" && c.sessionID == "" {
			c.sessionID = env.SessionID
			c.publish(Event{Kind: EventSession, SessionID: env.SessionID})
		}

		if env.IsError() {
			return &StreamError{Message: env.Error}
		}

		switch env.Type {
		case stream.FrameStructureStart:
			c.state.AppendRaw(env.Content)
			c.publish(Event{Kind: EventStructureStart, Text: env.Content})
		case stream.FrameStructureEnd:
			c.state.AppendRaw(env.Content)
			c.publish(Event{Kind: EventStructureEnd, Text: env.Content})
		case stream.FrameContent:
			c.state.AppendContent(env.Content)
			result.Progress++
			c.publish(Event{Kind: EventContent, Text: env.Content, Progress: result.Progress})
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
