package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultKeyPrefix 默认键前缀
	DefaultKeyPrefix = "mjml:session:"
	// maxTxRetries 乐观事务最大重试次数
	maxTxRetries = 8
	// lockStripes 进程内分段锁数量
	lockStripes = 64
)

// RedisConfig Redis会话存储配置
type RedisConfig struct {
	KeyPrefix  string        // 键前缀
	MaxHistory int           // 历史长度上限
	TTL        time.Duration // 会话键过期时间，0 表示不过期
}

// RedisStore 基于Redis列表的会话存储
//
// 同进程内通过分段锁串行化，跨进程通过 WATCH/MULTI 乐观事务保证原子性。
type RedisStore struct {
	client redis.UniversalClient
	config RedisConfig
	locks  [lockStripes]sync.Mutex
}

// NewRedisStore 创建Redis会话存储
func NewRedisStore(client redis.UniversalClient, config RedisConfig) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}
	return &RedisStore{client: client, config: config}
}

func (s *RedisStore) key(id string) string {
	return s.config.KeyPrefix + id
}

func (s *RedisStore) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// ResolveOrCreate 获取或创建会话
func (s *RedisStore) ResolveOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		newID, err := NewID()
		if err != nil {
			return nil, err
		}
		id = newID
	}

	turns, err := s.load(ctx, s.client, id)
	if err != nil {
		return nil, err
	}
	created := len(turns) == 0
	if created {
		log.Debug().Str("session_id", id).Msg("创建新会话")
	}
	return &Session{
		ID:         id,
		Messages:   turns,
		MaxHistory: s.config.MaxHistory,
		Created:    created,
	}, nil
}

// AppendTurn 追加消息
func (s *RedisStore) AppendTurn(ctx context.Context, id string, turn models.Turn) error {
	if id == "" {
		return ErrEmptySessionID
	}
	return s.update(ctx, id, func(turns []models.Turn) []models.Turn {
		return trimHistory(append(turns, turn), s.config.MaxHistory)
	})
}

// HistorySnapshot 返回历史
func (s *RedisStore) HistorySnapshot(ctx context.Context, id string) ([]models.Turn, error) {
	return s.load(ctx, s.client, id)
}

// Prune 裁剪历史
func (s *RedisStore) Prune(ctx context.Context, id string) error {
	return s.update(ctx, id, func(turns []models.Turn) []models.Turn {
		return trimHistory(turns, s.config.MaxHistory)
	})
}

// listReader 事务内外通用的列表读取
type listReader interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// load 读取会话列表
func (s *RedisStore) load(ctx context.Context, c listReader, id string) ([]models.Turn, error) {
	values, err := c.LRange(ctx, s.key(id), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "读取会话 %s 失败", id)
	}
	turns := make([]models.Turn, 0, len(values))
	for _, v := range values {
		var turn models.Turn
		if err := json.Unmarshal([]byte(v), &turn); err != nil {
			return nil, errors.Wrapf(err, "解析会话 %s 消息失败", id)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// update 在乐观事务中读取-修改-写回整个会话列表
func (s *RedisStore) update(ctx context.Context, id string, fn func([]models.Turn) []models.Turn) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		turns, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := fn(turns)

		values := make([]interface{}, 0, len(next))
		for _, t := range next {
			data, err := json.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "序列化消息失败")
			}
			values = append(values, data)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) > 0 {
				pipe.RPush(ctx, key, values...)
				if s.config.TTL > 0 {
					pipe.Expire(ctx, key, s.config.TTL)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return errors.Wrapf(err, "更新会话 %s 失败", id)
	}
	return errors.Errorf("更新会话 %s 失败: 并发冲突超过 %d 次", id, maxTxRetries)
}
