package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/document"
	"mjml_stream/internal/imageutil"
	"mjml_stream/internal/models"
	"mjml_stream/internal/session"
	"mjml_stream/internal/stream"
)

// RelayState 中继状态
type RelayState int

const (
	StateIdle RelayState = iota
	StateValidating
	StateAwaitingUpstream
	StateStreaming
	StateFinalizing
	StateClosed
	StateErrorClosed
)

func (s RelayState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAwaitingUpstream:
		return "awaiting_upstream"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateErrorClosed:
		return "error_closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MsgPromptRequired 空提示词的错误消息
const MsgPromptRequired = "Prompt is required"

// FrameWriter 与传输无关的帧输出
type FrameWriter interface {
	WriteFrame(env stream.Envelope) error
	WriteDone() error
}

// ValidationError 请求校验失败，没有任何副作用
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UpstreamError 上游生成失败
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("上游 %s 生成失败: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TransportError 向客户端写帧失败
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("写入客户端失败: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RelayService 将上游增量流转为带包装的帧流，并维护会话历史
type RelayService struct {
	store        session.Store
	generator    models.Generator
	systemPrompt string
}

// NewRelayService 创建中继服务；systemPrompt 为空时使用内置提示词
func NewRelayService(store session.Store, generator models.Generator, systemPrompt string) *RelayService {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &RelayService{
		store:        store,
		generator:    generator,
		systemPrompt: systemPrompt,
	}
}

// relayRun 单次中继的状态
type relayRun struct {
	state     RelayState
	sessionID string
}

func (r *relayRun) transition(to RelayState) {
	log.Debug().
		Str("session_id", r.sessionID).
		Str("from", r.state.String()).
		Str("to", to.String()).
		Msg("中继状态变化")
	r.state = to
}

// Relay 处理一次生成请求，返回最终状态
//
// 所有错误都已经以错误帧的形式尽力告知客户端；返回的 error 只用于日志和调用方判断。
func (s *RelayService) Relay(ctx context.Context, req models.GenerateRequest, w FrameWriter) (RelayState, error) {
	run := &relayRun{state: StateIdle}
	run.transition(StateValidating)

	turn, err := s.buildTurn(req)
	if err != nil {
		run.transition(StateErrorClosed)
		writeError(w, err.Error())
		return run.state, err
	}
	if req.CurrentMJML != "" {
		log.Debug().Int("current_mjml_len", len(req.CurrentMJML)).Msg("收到编辑器当前文档")
	}

	sess, err := s.store.ResolveOrCreate(ctx, req.SessionID)
	if err != nil {
		return s.fail(run, w, errors.Wrap(err, "获取会话失败"))
	}
	run.sessionID = sess.ID

	// 用户消息在上游成功之前写入历史
	if err := s.store.AppendTurn(ctx, sess.ID, turn); err != nil {
		return s.fail(run, w, errors.Wrap(err, "保存用户消息失败"))
	}
	history, err := s.store.HistorySnapshot(ctx, sess.ID)
	if err != nil {
		return s.fail(run, w, errors.Wrap(err, "读取会话历史失败"))
	}

	if err := w.WriteFrame(stream.Envelope{SessionID: sess.ID}); err != nil {
		return s.fail(run, w, &TransportError{Err: err})
	}
	if err := w.WriteFrame(stream.Envelope{Type: stream.FrameStructureStart, Content: document.Opening}); err != nil {
		return s.fail(run, w, &TransportError{Err: err})
	}

	run.transition(StateAwaitingUpstream)
	log.Info().
		Str("session_id", sess.ID).
		Str("provider", s.generator.Name()).
		Int("history", len(history)).
		Bool("created", sess.Created).
		Msg("开始上游生成")

	var response strings.Builder
	deltas := 0
	err = s.generator.Stream(ctx, s.systemPrompt, history, func(text string) error {
		if run.state == StateAwaitingUpstream {
			run.transition(StateStreaming)
		}
		if err := w.WriteFrame(stream.Envelope{Type: stream.FrameContent, Content: text}); err != nil {
			return &TransportError{Err: err}
		}
		response.WriteString(text)
		deltas++
		return nil
	})
	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) && ctx.Err() == nil {
			err = &UpstreamError{Provider: s.generator.Name(), Err: err}
		}
		return s.fail(run, w, err)
	}

	run.transition(StateFinalizing)
	if response.Len() > 0 {
		if err := s.store.AppendTurn(ctx, sess.ID, models.TextTurn(models.RoleAssistant, response.String())); err != nil {
			return s.fail(run, w, errors.Wrap(err, "保存助手消息失败"))
		}
		if err := s.store.Prune(ctx, sess.ID); err != nil {
			return s.fail(run, w, errors.Wrap(err, "裁剪会话历史失败"))
		}
	}

	if err := w.WriteFrame(stream.Envelope{Type: stream.FrameStructureEnd, Content: document.Closing}); err != nil {
		return s.fail(run, w, &TransportError{Err: err})
	}
	if err := w.WriteDone(); err != nil {
		return s.fail(run, w, &TransportError{Err: err})
	}

	run.transition(StateClosed)
	log.Info().
		Str("session_id", sess.ID).
		Int("deltas", deltas).
		Int("response_len", response.Len()).
		Msg("生成完成")
	return run.state, nil
}

// buildTurn 校验请求并构造用户消息
func (s *RelayService) buildTurn(req models.GenerateRequest) (models.Turn, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return models.Turn{}, &ValidationError{Message: MsgPromptRequired}
	}
	if req.Image == "" {
		return models.TextTurn(models.RoleUser, req.Prompt), nil
	}

	img, err := imageutil.DecodeAndValidate(req.Image)
	if err != nil {
		return models.Turn{}, &ValidationError{Message: "Invalid image", Err: err}
	}
	return models.ImageTurn(models.ImageSource{
		Encoding:  "base64",
		MediaType: img.MediaType,
		Data:      img.Base64(),
	}, req.Prompt), nil
}

// fail 进入错误终态并尽力发送一个错误帧
func (s *RelayService) fail(run *relayRun, w FrameWriter, err error) (RelayState, error) {
	run.transition(StateErrorClosed)

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		log.Warn().Err(err).Str("session_id", run.sessionID).Msg("客户端连接中断")
	} else {
		log.Error().Err(err).Str("session_id", run.sessionID).Msg("中继失败")
	}

	writeError(w, errorMessage(err))
	return run.state, err
}

// errorMessage 面向用户的错误描述
func errorMessage(err error) string {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return fmt.Sprintf("Generation failed: %v", upstreamErr.Err)
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	return err.Error()
}

func writeError(w FrameWriter, msg string) {
	if err := w.WriteFrame(stream.Envelope{Error: msg}); err != nil {
		log.Debug().Err(err).Msg("发送错误帧失败")
	}
}
