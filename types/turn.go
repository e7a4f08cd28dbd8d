package types

import "time"

// Turn 一次完整的问答回合，随会话上下文持久化。
type Turn struct {
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Provider      string    `json:"provider"`
	Timestamp     time.Time `json:"timestamp"`
}
