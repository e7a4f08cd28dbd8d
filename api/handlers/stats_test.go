package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/llm/embedding"
	"github.com/voxflow/voxflow/llm/router"
	"github.com/voxflow/voxflow/llm/semcache"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

type unitEmbedder struct{}

func (unitEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (unitEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (unitEmbedder) Name() string          { return "unit" }
func (unitEmbedder) Dimensions() int       { return 3 }
func (unitEmbedder) ModelRevision() string { return "rev-1" }

func newStatsFixture(t *testing.T) (*StatsHandler, *semcache.Cache, *router.CostTracker) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	sc := semcache.NewCache(manager, unitEmbedder{}, semcache.DefaultConfig(), zap.NewNop())
	costs := router.NewCostTracker()
	return NewStatsHandler(sc, costs, zap.NewNop()), sc, costs
}

func adminIdentity() types.Identity {
	return types.Identity{UserID: "boss", Role: types.RoleAdmin}
}

func TestStatsHandler_RequiresAuth(t *testing.T) {
	h, _, _ := newStatsFixture(t)

	rec := httptest.NewRecorder()
	h.HandleCacheStats(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatsHandler_RequiresAdmin(t *testing.T) {
	h, _, _ := newStatsFixture(t)

	rec := httptest.NewRecorder()
	h.HandleCosts(rec, authedRequest(http.MethodGet, "/v1/costs", callerIdentity()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatsHandler_CacheStats(t *testing.T) {
	h, sc, _ := newStatsFixture(t)
	sc.Store(context.Background(), "bonjour", "salut", "gemini-flash", "u1")

	rec := httptest.NewRecorder()
	h.HandleCacheStats(rec, authedRequest(http.MethodGet, "/v1/cache/stats", adminIdentity()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["entry_count"])
	assert.Equal(t, true, data["enabled"])
	assert.InDelta(t, 0.92, data["threshold"].(float64), 1e-9)
}

func TestStatsHandler_InvalidateUserCache(t *testing.T) {
	h, sc, _ := newStatsFixture(t)
	sc.Store(context.Background(), "bonjour", "salut", "gemini-flash", "u1")

	req := authedRequest(http.MethodDelete, "/v1/cache/users/u1", adminIdentity())
	req.SetPathValue("id", "u1")
	rec := httptest.NewRecorder()
	h.HandleInvalidateUserCache(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stats := sc.Stats(context.Background())
	assert.Zero(t, stats.EntryCount)
}

func TestStatsHandler_Costs(t *testing.T) {
	h, _, costs := newStatsFixture(t)
	costs.Record(router.RouteGemini, 1_000_000)

	rec := httptest.NewRecorder()
	h.HandleCosts(rec, authedRequest(http.MethodGet, "/v1/costs", adminIdentity()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.InDelta(t, 0.10, data["total_cost"].(float64), 1e-9)
}
