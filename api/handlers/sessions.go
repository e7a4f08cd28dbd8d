package handlers

import (
	"net/http"
	"strings"

	"github.com/voxflow/voxflow/api"
	"github.com/voxflow/voxflow/internal/ctxkeys"
	"github.com/voxflow/voxflow/internal/metrics"
	"github.com/voxflow/voxflow/types"
	"github.com/voxflow/voxflow/voice"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 会话管理 Handler
// =============================================================================

// SessionHandler 会话生命周期管理.
// 创建只做登记，真正的语音链路在 WebSocket 连接建立时启动.
type SessionHandler struct {
	registry  *voice.Registry
	store     *voice.ContextStore
	metrics   *metrics.Collector
	logger    *zap.Logger
	wsBase    string
	maxTurns  int
	expiresIn int
}

// NewSessionHandler 创建会话处理器.
// wsBase 是对外公布的 WebSocket 基地址，expiresIn 是上下文 TTL 秒数.
func NewSessionHandler(
	registry *voice.Registry,
	store *voice.ContextStore,
	collector *metrics.Collector,
	wsBase string,
	maxTurns, expiresIn int,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		store:     store,
		metrics:   collector,
		logger:    logger.With(zap.String("handler", "sessions")),
		wsBase:    strings.TrimRight(wsBase, "/"),
		maxTurns:  maxTurns,
		expiresIn: expiresIn,
	}
}

// HandleCreate 处理 POST /v1/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := ctxkeys.Identity(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized,
			"authentication required", h.logger)
		return
	}

	sess := voice.NewSession(identity, h.maxTurns)
	if err := h.registry.Add(sess); err != nil {
		h.metrics.SessionRejected("user_limit")
		if apiErr, isAPIErr := err.(*types.Error); isAPIErr {
			WriteError(w, apiErr, h.logger)
		} else {
			WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrSessionLimit,
				"session limit reached", h.logger)
		}
		return
	}

	// 创建即落库，expires_in 对应的 TTL 从此刻起算
	if err := h.store.Persist(r.Context(), sess); err != nil {
		h.logger.Warn("initial context persist failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	h.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("user_id", identity.UserID))

	WriteCreated(w, api.CreateSessionResponse{
		SessionID: sess.ID,
		WSURL:     h.wsBase + "/ws/voice?session_id=" + sess.ID,
		ExpiresIn: h.expiresIn,
	})
}

// HandleDelete 处理 DELETE /v1/sessions/{id}. 幂等: 未知 ID 也返回 204.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"session id is required", h.logger)
		return
	}

	identity, ok := ctxkeys.Identity(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized,
			"authentication required", h.logger)
		return
	}

	if sess, found := h.registry.Get(sessionID); found {
		// 只能删自己的会话，管理员例外
		if sess.Identity.UserID != identity.UserID && identity.Role != types.RoleAdmin &&
			identity.Role != types.RoleSuperAdmin {
			WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden,
				"not your session", h.logger)
			return
		}
		h.registry.Remove(sessionID)
	}

	if err := h.store.Delete(r.Context(), sessionID); err != nil {
		h.logger.Warn("session context delete failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGet 处理 GET /v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, found := h.registry.Get(sessionID)
	if !found {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrSessionNotFound,
			"session not found", h.logger)
		return
	}

	WriteSuccess(w, api.SessionInfo{
		SessionID: sess.ID,
		UserID:    sess.Identity.UserID,
		State:     string(sess.State()),
		Turns:     len(sess.Turns()),
		CreatedAt: sess.CreatedAt,
	})
}
