package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mjml_stream/internal/models"
)

// memoryEntry 单个会话，自带互斥锁以串行化同一会话的修改
type memoryEntry struct {
	mu           sync.Mutex
	messages     []models.Turn
	lastActivity time.Time
}

// MemoryStore 进程内会话存储
type MemoryStore struct {
	maxHistory int
	idleTTL    time.Duration

	mu       sync.RWMutex
	sessions map[string]*memoryEntry

	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// MemoryOption 内存存储选项
type MemoryOption func(*MemoryStore)

// WithIdleTTL 启用空闲会话清理；ttl 为 0 时不清理
func WithIdleTTL(ttl, sweepInterval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.idleTTL = ttl
		if ttl > 0 {
			if sweepInterval <= 0 {
				sweepInterval = ttl
			}
			go s.sweeper(sweepInterval)
		}
	}
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore(maxHistory int, opts ...MemoryOption) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &MemoryStore{
		maxHistory: maxHistory,
		sessions:   make(map[string]*memoryEntry),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entry 获取会话条目，不存在时按需创建
func (s *MemoryStore) entry(id string, create bool) (*memoryEntry, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok || !create {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		return e, false
	}
	e = &memoryEntry{lastActivity: s.now()}
	s.sessions[id] = e
	return e, true
}

// ResolveOrCreate 获取或创建会话
func (s *MemoryStore) ResolveOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		newID, err := NewID()
		if err != nil {
			return nil, err
		}
		id = newID
	}

	e, created := s.entry(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActivity = s.now()

	if created {
		log.Debug().Str("session_id", id).Msg("创建新会话")
	}
	return &Session{
		ID:         id,
		Messages:   models.CloneTurns(e.messages),
		MaxHistory: s.maxHistory,
		Created:    created,
	}, nil
}

// AppendTurn 追加消息
func (s *MemoryStore) AppendTurn(ctx context.Context, id string, turn models.Turn) error {
	if id == "" {
		return ErrEmptySessionID
	}
	e, _ := s.entry(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = trimHistory(append(e.messages, turn.Clone()), s.maxHistory)
	e.lastActivity = s.now()
	return nil
}

// HistorySnapshot 返回历史拷贝，未知会话返回空历史
func (s *MemoryStore) HistorySnapshot(ctx context.Context, id string) ([]models.Turn, error) {
	e, _ := s.entry(id, false)
	if e == nil {
		return []models.Turn{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneTurns(e.messages), nil
}

// Prune 裁剪历史
func (s *MemoryStore) Prune(ctx context.Context, id string) error {
	e, _ := s.entry(id, false)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = trimHistory(e.messages, s.maxHistory)
	return nil
}

// Len 当前会话数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close 停止清理协程
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

// sweeper 定期清理空闲会话
func (s *MemoryStore) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Info().Int("removed", n).Msg("清理空闲会话")
			}
		}
	}
}

// Sweep 删除超过空闲时间的会话，返回删除数量
func (s *MemoryStore) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.sessions {
		// 正在被修改的会话跳过
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.lastActivity) > s.idleTTL
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
