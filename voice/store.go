package voice

import (
	"context"
	"time"

	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 会话上下文存储
// =============================================================================

const sessionKeyPrefix = "session:"

// Context 持久化到 Redis 的会话上下文.
type Context struct {
	UserID       string       `json:"user_id"`
	Role         types.Role   `json:"role"`
	Organization string       `json:"organization,omitempty"`
	Turns        []types.Turn `json:"turns"`
}

// ContextStore 基于 Redis 的会话上下文存储. 每次持久化刷新 TTL.
type ContextStore struct {
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewContextStore 创建上下文存储. ttl <= 0 时取 30 分钟.
func NewContextStore(c *cache.Manager, ttl time.Duration, logger *zap.Logger) *ContextStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ContextStore{
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "context_store")),
	}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Persist 写入会话上下文并刷新 TTL.
func (s *ContextStore) Persist(ctx context.Context, sess *Session) error {
	sc := &Context{
		UserID:       sess.Identity.UserID,
		Role:         sess.Identity.Role,
		Organization: sess.Identity.Organization,
		Turns:        sess.Turns(),
	}
	return s.cache.SetJSON(ctx, sessionKey(sess.ID), sc, s.ttl)
}

// Load 读取会话上下文. 不存在或已过期返回 (nil, nil).
func (s *ContextStore) Load(ctx context.Context, sessionID string) (*Context, error) {
	var sc Context
	if err := s.cache.GetJSON(ctx, sessionKey(sessionID), &sc); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	return &sc, nil
}

// Delete 删除会话上下文. 幂等.
func (s *ContextStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, sessionKey(sessionID))
}
