package voice

import (
	"fmt"
	"sync"

	"github.com/voxflow/voxflow/types"
)

// =============================================================================
// 💾 会话注册表
// =============================================================================

// Registry 进程内活跃会话索引，按会话 ID 与用户双向索引.
// 不变量: 移除会话同时从其用户集合移除；空的用户集合立即删除.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	byUser     map[string]map[string]struct{}
	maxPerUser int
}

// NewRegistry 创建注册表. maxPerUser <= 0 时取 3.
func NewRegistry(maxPerUser int) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = 3
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		byUser:     make(map[string]map[string]struct{}),
		maxPerUser: maxPerUser,
	}
}

// Add 登记会话. 超出每用户并发上限时拒绝.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := s.Identity.UserID
	if len(r.byUser[userID]) >= r.maxPerUser {
		return types.NewError(types.ErrSessionLimit,
			fmt.Sprintf("user %s already has %d active sessions", userID, r.maxPerUser))
	}

	r.sessions[s.ID] = s
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][s.ID] = struct{}{}
	return nil
}

// Get 按 ID 查找会话.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove 注销会话. 幂等.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)

	userID := s.Identity.UserID
	if set, ok := r.byUser[userID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// CountForUser 返回用户当前活跃会话数.
func (r *Registry) CountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}

// Len 返回活跃会话总数.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
