package stream

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FrameType 帧类型
type FrameType string

const (
	FrameStructureStart FrameType = "structure_start" // 开始包装
	FrameStructureEnd   FrameType = "structure_end"   // 结束包装
	FrameContent        FrameType = "content"         // 模型生成内容
	FrameNone           FrameType = ""                // 无类型（会话ID帧、错误帧）
)

const (
	// DataPrefix 每个帧行的前缀
	DataPrefix = "data: "
	// DoneSentinel 流结束标记
	DoneSentinel = "[DONE]"
	// DoneFrame 完整的结束帧
	DoneFrame = DataPrefix + DoneSentinel + "\n\n"
)

// ErrMissingDone 帧流在结束标记之前中断
var ErrMissingDone = errors.New("帧流在结束标记之前中断")

// Envelope 中继输出的单个帧
type Envelope struct {
	Type      FrameType `json:"type,omitempty"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// IsError 是否为错误帧
func (e Envelope) IsError() bool {
	return e.Error != ""
}

// LineKind 帧行的分类
type LineKind int

const (
	LineBlank   LineKind = iota // 空行（帧分隔）
	LineDone                    // 结束标记
	LineData                    // 数据帧
	LineIgnored                 // 非 data 行，忽略
)

// FrameParseError 单个帧解析失败
type FrameParseError struct {
	Line string
	Err  error
}

func (e *FrameParseError) Error() string {
	return fmt.Sprintf("解析帧失败: %v (行: %q)", e.Err, e.Line)
}

func (e *FrameParseError) Unwrap() error {
	return e.Err
}

// Marshal 序列化帧负载
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// EncodeFrame 将帧编码为 "data: <json>\n\n"
func EncodeFrame(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("序列化帧失败: %v", err)
	}
	out := make([]byte, 0, len(DataPrefix)+len(payload)+2)
	out = append(out, DataPrefix...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}

// ParsePayload 解析帧JSON负载
func ParsePayload(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ParseLine 解析一行帧文本
func ParseLine(line string) (Envelope, LineKind, error) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Envelope{}, LineBlank, nil
	}
	if !strings.HasPrefix(line, DataPrefix) {
		return Envelope{}, LineIgnored, nil
	}

	data := line[len(DataPrefix):]
	if data == DoneSentinel {
		return Envelope{}, LineDone, nil
	}

	env, err := ParsePayload([]byte(data))
	if err != nil {
		return Envelope{}, LineData, &FrameParseError{Line: line, Err: err}
	}
	return env, LineData, nil
}
