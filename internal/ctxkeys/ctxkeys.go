package ctxkeys

import (
	"context"

	"github.com/voxflow/voxflow/types"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
	sessionIDKey contextKey = "session_id"
)

// WithRequestID 设置 RequestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 RequestID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithIdentity 设置已解析的调用方身份
func WithIdentity(ctx context.Context, id types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Identity 获取调用方身份
func Identity(ctx context.Context) (types.Identity, bool) {
	v, ok := ctx.Value(identityKey).(types.Identity)
	if !ok || v.UserID == "" {
		return types.Identity{}, false
	}
	return v, true
}

// WithSessionID 设置会话 ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID 获取会话 ID
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
