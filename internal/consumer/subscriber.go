package consumer

import (
	"io"
	"strings"
	"sync"

	"mjml_stream/internal/document"
	"mjml_stream/internal/throttle"
)

// EventKind 分发给订阅者的事件类型
type EventKind int

const (
	EventSession EventKind = iota
	EventStructureStart
	EventStructureEnd
	EventContent
)

// Event 消费循环产生的事件
type Event struct {
	Kind      EventKind
	Text      string
	SessionID string
	Progress  int // 已收到的内容帧数
}

// Subscriber 独立订阅消费事件
type Subscriber interface {
	Handle(Event)
}

// Flusher 流结束（含出错）时被调用
type Flusher interface {
	Flush()
}

// SubscriberFunc 函数形式的订阅者
type SubscriberFunc func(Event)

func (f SubscriberFunc) Handle(e Event) { f(e) }

// RawAccumulator 立即累积原始文本（包装与内容），可选地同步写出
type RawAccumulator struct {
	mu  sync.Mutex
	buf strings.Builder
	out io.Writer
}

// NewRawAccumulator 创建原始文本累积器；out 可为 nil
func NewRawAccumulator(out io.Writer) *RawAccumulator {
	return &RawAccumulator{out: out}
}

func (a *RawAccumulator) Handle(e Event) {
	if e.Kind == EventSession {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.WriteString(e.Text)
	if a.out != nil {
		io.WriteString(a.out, e.Text)
	}
}

// String 已累积的原始文本
func (a *RawAccumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// PreviewSubscriber 每个内容帧重建带标识的完整文档并交给节流器
//
// 包装帧不进入预览路径。
type PreviewSubscriber struct {
	state    *document.State
	throttle *throttle.Throttle[string]
}

// NewPreviewSubscriber 创建预览订阅者
func NewPreviewSubscriber(state *document.State, t *throttle.Throttle[string]) *PreviewSubscriber {
	return &PreviewSubscriber{state: state, throttle: t}
}

func (p *PreviewSubscriber) Handle(e Event) {
	if e.Kind != EventContent {
		return
	}
	p.throttle.Schedule(p.state.Preview())
}

// Flush 立即渲染挂起的预览
func (p *PreviewSubscriber) Flush() {
	p.throttle.Flush()
}
