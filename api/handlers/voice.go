package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/voxflow/voxflow/internal/ctxkeys"
	"github.com/voxflow/voxflow/types"
	"github.com/voxflow/voxflow/voice"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 语音 WebSocket Handler
// =============================================================================

// VoiceHandler 接入语音 WebSocket 连接并把帧交给编排器.
// 文本帧是 JSON 控制消息，二进制帧是原始音频.
type VoiceHandler struct {
	registry  *voice.Registry
	store     *voice.ContextStore
	orch      *voice.Orchestrator
	logger    *zap.Logger
	readLimit int64
	heartbeat time.Duration
	maxTurns  int
}

// NewVoiceHandler 创建语音连接处理器.
func NewVoiceHandler(
	registry *voice.Registry,
	store *voice.ContextStore,
	orch *voice.Orchestrator,
	readLimit int64,
	heartbeat time.Duration,
	maxTurns int,
	logger *zap.Logger,
) *VoiceHandler {
	return &VoiceHandler{
		registry:  registry,
		store:     store,
		orch:      orch,
		logger:    logger.With(zap.String("handler", "voice_ws")),
		readLimit: readLimit,
		heartbeat: heartbeat,
		maxTurns:  maxTurns,
	}
}

// HandleWS 处理 GET /ws/voice?session_id=
// 未登记的 session_id 隐式建会话（重连场景），已登记的必须属于
// 当前调用方且还没被消费.
func (h *VoiceHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"session_id query parameter is required", h.logger)
		return
	}

	identity, ok := ctxkeys.Identity(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized,
			"authentication required", h.logger)
		return
	}

	// 存量上下文先查归属: 别人的 session_id 不允许接管
	prior, loadErr := h.store.Load(r.Context(), sessionID)
	if loadErr == nil && prior != nil && prior.UserID != identity.UserID {
		WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden,
			"not your session", h.logger)
		return
	}

	sess, found := h.registry.Get(sessionID)
	if !found {
		// 隐式建会话（重连或直连），用户并发上限照常生效
		sess = voice.NewSessionWithID(sessionID, identity, h.maxTurns)
		if err := h.registry.Add(sess); err != nil {
			if apiErr, isAPIErr := err.(*types.Error); isAPIErr {
				WriteError(w, apiErr, h.logger)
			} else {
				WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrSessionLimit,
					"session limit reached", h.logger)
			}
			return
		}
	} else {
		if sess.Identity.UserID != identity.UserID {
			WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden,
				"not your session", h.logger)
			return
		}
		if sess.State() != voice.StateConnecting {
			WriteErrorMessage(w, http.StatusConflict, types.ErrSessionClosed,
				"session already consumed", h.logger)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		h.registry.Remove(sessionID)
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	logger := h.logger.With(
		zap.String("session_id", sessionID),
		zap.String("user_id", identity.UserID))

	// 重连场景: 恢复 Redis 里的上下文；过期则从空上下文重新开始
	if prior != nil {
		sess.RestoreTurns(prior.Turns)
		logger.Info("session context restored", zap.Int("turns", len(prior.Turns)))
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	incoming := make(chan voice.Inbound)
	runDone := make(chan struct{})

	// 读循环: WebSocket 帧 → Inbound
	go func() {
		defer close(incoming)
		for {
			typ, data, readErr := conn.Read(ctx)
			if readErr != nil {
				return
			}

			var in voice.Inbound
			switch typ {
			case websocket.MessageBinary:
				in.Audio = data
			case websocket.MessageText:
				var msg voice.ClientMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					logger.Debug("unparseable control message", zap.Error(err))
					continue
				}
				in.Control = &msg
			default:
				continue
			}

			select {
			case incoming <- in:
			case <-runDone:
				return
			}
		}
	}()

	if h.heartbeat > 0 {
		go func() {
			ticker := time.NewTicker(h.heartbeat)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.Ping(ctx); err != nil {
						cancel()
						return
					}
				case <-runDone:
					return
				}
			}
		}()
	}

	runErr := h.orch.Run(ctx, sess, &wsTransport{conn: conn}, incoming)
	close(runDone)
	h.registry.Remove(sessionID)

	if runErr != nil {
		logger.Warn("voice session ended with error", zap.Error(runErr))
		_ = conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// wsTransport 把编排器的下行消息写到 WebSocket 连接.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) SendAudio(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}
