package document

import (
	"sort"
	"strings"
	"sync"
)

// State 客户端累积的文档状态
//
// 计数器和已分配集合在整个生命周期内单调增长，重新生成内容也不会复用标识。
type State struct {
	mu       sync.Mutex
	raw      strings.Builder
	content  strings.Builder
	counters *counters
}

// NewState 创建空的文档状态
func NewState() *State {
	return &State{counters: newCounters()}
}

// AppendRaw 追加原始帧文本（包装与内容）
func (s *State) AppendRaw(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.WriteString(text)
}

// AppendContent 追加模型生成的内容，同时计入原始文本
func (s *State) AppendContent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.WriteString(text)
	s.content.WriteString(text)
}

// RawText 返回已累积的原始文本
func (s *State) RawText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw.String()
}

// Content 返回已累积的模型内容
func (s *State) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

// Document 以包装重建当前完整文档
func (s *State) Document() string {
	return Construct(s.Content())
}

// Preview 为流式预览注入标识，不附加选择器块
func (s *State) Preview() string {
	doc := s.Document()
	s.mu.Lock()
	defer s.mu.Unlock()
	return annotate(doc, Options{Policy: PolicyNone}, s.counters)
}

// Finalize 对当前文档做最终注入
func (s *State) Finalize(opts Options) string {
	doc := s.Document()
	s.mu.Lock()
	defer s.mu.Unlock()
	return annotate(doc, opts, s.counters)
}

// AssignedIDs 返回已分配过的全部标识（排序后）
func (s *State) AssignedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.counters.assigned))
	for id := range s.counters.assigned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResetContent 开始新一轮生成：清空文本和元素绑定，保留计数器
func (s *State) ResetContent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.Reset()
	s.content.Reset()
	s.counters.bound = nil
}
