package handlers

import (
	"net/http"

	"github.com/voxflow/voxflow/api"
	"github.com/voxflow/voxflow/internal/ctxkeys"
	"github.com/voxflow/voxflow/llm/router"
	"github.com/voxflow/voxflow/llm/semcache"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 运维统计 Handler
// =============================================================================

// StatsHandler 暴露语义缓存与成本统计，仅管理员可访问.
type StatsHandler struct {
	semCache *semcache.Cache
	costs    *router.CostTracker
	logger   *zap.Logger
}

// NewStatsHandler 创建统计处理器.
func NewStatsHandler(sc *semcache.Cache, costs *router.CostTracker, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		semCache: sc,
		costs:    costs,
		logger:   logger.With(zap.String("handler", "stats")),
	}
}

// requireAdmin 校验管理员角色.
func (h *StatsHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := ctxkeys.Identity(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized,
			"authentication required", h.logger)
		return false
	}
	if identity.Role != types.RoleAdmin && identity.Role != types.RoleSuperAdmin {
		WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden,
			"admin role required", h.logger)
		return false
	}
	return true
}

// HandleCacheStats 处理 GET /v1/cache/stats
func (h *StatsHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	stats := h.semCache.Stats(r.Context())
	WriteSuccess(w, api.CacheStatsResponse{
		EntryCount: stats.EntryCount,
		ByteSize:   stats.ByteSize,
		Threshold:  stats.Threshold,
		Enabled:    stats.Enabled,
	})
}

// HandleInvalidateUserCache 处理 DELETE /v1/cache/users/{id}
func (h *StatsHandler) HandleInvalidateUserCache(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	userID := r.PathValue("id")
	if userID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"user id is required", h.logger)
		return
	}

	h.semCache.InvalidateForUser(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCosts 处理 GET /v1/costs
func (h *StatsHandler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	WriteSuccess(w, h.costs.Snapshot())
}
