package api

import "time"

// =============================================================================
// 会话类型
// =============================================================================

// CreateSessionResponse 创建会话的响应。
type CreateSessionResponse struct {
	// 会话 ID，后续 WebSocket 连接与 DELETE 使用
	SessionID string `json:"session_id"`
	// WebSocket 连接地址
	WSURL string `json:"ws_url"`
	// 会话上下文过期时间（秒）
	ExpiresIn int `json:"expires_in"`
}

// SessionInfo 会话详情。
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	State     string    `json:"state"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// 运维类型
// =============================================================================

// CacheStatsResponse 语义缓存统计。
type CacheStatsResponse struct {
	EntryCount int     `json:"entry_count"`
	ByteSize   int64   `json:"byte_size"`
	Threshold  float64 `json:"threshold"`
	Enabled    bool    `json:"enabled"`
}
