// Package session 管理按会话ID划分、长度受限的对话历史
package session

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"

	"mjml_stream/internal/models"
)

// DefaultMaxHistory 默认保留的最大消息数
const DefaultMaxHistory = 10

// idPrefix 会话ID前缀
const idPrefix = "session_"

// ErrEmptySessionID 会话ID为空
var ErrEmptySessionID = errors.New("会话ID不能为空")

// Session 会话快照
type Session struct {
	ID         string        // 会话ID
	Messages   []models.Turn // 有序历史
	MaxHistory int           // 历史长度上限
	Created    bool          // 本次调用是否新建
}

// Store 会话存储
//
// 实现必须保证同一会话ID上的追加与裁剪串行执行。
type Store interface {
	// ResolveOrCreate 按ID获取会话，ID为空或未知时新建
	ResolveOrCreate(ctx context.Context, id string) (*Session, error)

	// AppendTurn 追加一条消息，追加后长度不超过上限
	AppendTurn(ctx context.Context, id string, turn models.Turn) error

	// HistorySnapshot 返回历史的深拷贝
	HistorySnapshot(ctx context.Context, id string) ([]models.Turn, error)

	// Prune 裁剪到最近的 MaxHistory 条
	Prune(ctx context.Context, id string) error
}

// NewID 生成新的会话ID
func NewID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", errors.Wrap(err, "生成会话ID失败")
	}
	return idPrefix + id, nil
}

// trimHistory 保留最近的 max 条完整消息，并去掉开头的非用户消息
//
// 上游要求上下文以用户消息开头，因此裁剪后可能少于 max 条。
func trimHistory(turns []models.Turn, max int) []models.Turn {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	for len(turns) > 0 && turns[0].Role != models.RoleUser {
		turns = turns[1:]
	}
	return turns
}
