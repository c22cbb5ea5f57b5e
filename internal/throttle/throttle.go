// Package throttle 提供前沿加后沿的节流渲染
package throttle

import (
	"sync"
	"time"
)

// DefaultInterval 预览渲染的最小间隔
const DefaultInterval = 100 * time.Millisecond

// Throttle 在固定间隔内至多执行一次渲染，并保证最后一次调度的值最终被渲染
//
// 静默期内的第一次调度立即执行；间隔内的后续调度只保留最新值，由单个定时器在间隔结束时渲染。
type Throttle[T any] struct {
	mu       sync.Mutex
	interval time.Duration
	clock    Clock
	render   func(T)

	lastRun time.Time
	pending *T
	timer   Timer
	gen     uint64
	stopped bool
}

// Option 节流器选项
type Option[T any] func(*Throttle[T])

// WithClock 替换时钟
func WithClock[T any](c Clock) Option[T] {
	return func(t *Throttle[T]) {
		t.clock = c
	}
}

// New 创建节流器；interval 不大于0时使用 DefaultInterval
func New[T any](interval time.Duration, render func(T), opts ...Option[T]) *Throttle[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Throttle[T]{
		interval: interval,
		clock:    RealClock,
		render:   render,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schedule 调度一次渲染
func (t *Throttle[T]) Schedule(v T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	elapsed := now.Sub(t.lastRun)
	if t.lastRun.IsZero() || elapsed >= t.interval {
		t.cancelLocked()
		t.lastRun = now
		t.mu.Unlock()
		t.render(v)
		return
	}

	t.cancelLocked()
	t.pending = &v
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval-elapsed, func() {
		t.fire(gen)
	})
	t.mu.Unlock()
}

// fire 定时器到期，渲染最新值
func (t *Throttle[T]) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	v := *t.pending
	t.pending = nil
	t.timer = nil
	t.gen++
	t.lastRun = t.clock.Now()
	t.mu.Unlock()
	t.render(v)
}

// cancelLocked 取消挂起的定时器，调用方需持有锁
func (t *Throttle[T]) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.gen++
}

// Flush 立即渲染挂起的值（如果有）
func (t *Throttle[T]) Flush() bool {
	t.mu.Lock()
	if t.stopped || t.pending == nil {
		t.mu.Unlock()
		return false
	}
	v := *t.pending
	t.cancelLocked()
	t.lastRun = t.clock.Now()
	t.mu.Unlock()
	t.render(v)
	return true
}

// Pending 是否有等待渲染的值
func (t *Throttle[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Stop 停止节流器，丢弃挂起的值
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.stopped = true
}
