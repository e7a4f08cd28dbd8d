package voice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voxflow/voxflow/types"
)

// =============================================================================
// 🎯 会话状态机
// =============================================================================

// State 会话生命周期状态.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateActive     State = "ACTIVE"
	StateClosing    State = "CLOSING"
	StateClosed     State = "CLOSED"
)

// 合法的状态迁移表.
var validTransitions = map[State][]State{
	StateConnecting: {StateActive, StateClosing},
	StateActive:     {StateClosing},
	StateClosing:    {StateClosed},
	StateClosed:     {},
}

// Session 一次语音会话. 身份在进入 ACTIVE 前解析一次，之后不变.
type Session struct {
	ID        string
	Identity  types.Identity
	CreatedAt time.Time

	mu       sync.Mutex
	state    State
	turns    []types.Turn
	maxTurns int
}

// NewSession 创建 CONNECTING 状态的新会话.
func NewSession(identity types.Identity, maxTurns int) *Session {
	return NewSessionWithID(uuid.NewString(), identity, maxTurns)
}

// NewSessionWithID 以调用方给定的 ID 创建会话.
// 重连走这里: 同一个 ID 换新会话对象，历史上下文从存储恢复.
func NewSessionWithID(id string, identity types.Identity, maxTurns int) *Session {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Session{
		ID:        id,
		Identity:  identity,
		CreatedAt: time.Now(),
		state:     StateConnecting,
		maxTurns:  maxTurns,
	}
}

// State 返回当前状态.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition 按迁移表推进状态，非法迁移返回错误.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return types.NewError(types.ErrInvalidTransition,
		"invalid session state transition "+string(s.state)+" -> "+string(to))
}

// AppendTurn 追加一个回合，超出上限时 FIFO 截断最旧的回合.
func (s *Session) AppendTurn(t types.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, t)
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// Turns 返回回合历史的副本.
func (s *Session) Turns() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// RestoreTurns 从持久化上下文恢复回合历史（重连场景），仍受上限约束.
func (s *Session) RestoreTurns(turns []types.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.turns = make([]types.Turn, len(turns))
	copy(s.turns, turns)
}
