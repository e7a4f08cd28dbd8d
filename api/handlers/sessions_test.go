package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/internal/ctxkeys"
	"github.com/voxflow/voxflow/internal/metrics"
	"github.com/voxflow/voxflow/types"
	"github.com/voxflow/voxflow/voice"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 会话 Handler 测试
// =============================================================================

var handlerCollectorSeq atomic.Int64

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector(fmt.Sprintf("handlertest%d", handlerCollectorSeq.Add(1)), zap.NewNop())
}

type sessionFixture struct {
	handler  *SessionHandler
	registry *voice.Registry
	store    *voice.ContextStore
	mr       *miniredis.Miniredis
}

func newSessionFixture(t *testing.T, maxPerUser int) *sessionFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	registry := voice.NewRegistry(maxPerUser)
	store := voice.NewContextStore(manager, 30*time.Minute, zap.NewNop())
	handler := NewSessionHandler(registry, store, newTestMetrics(),
		"ws://localhost:8080", 10, 1800, zap.NewNop())

	return &sessionFixture{handler: handler, registry: registry, store: store, mr: mr}
}

func authedRequest(method, target string, id types.Identity) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(ctxkeys.WithIdentity(req.Context(), id))
}

func callerIdentity() types.Identity {
	return types.Identity{UserID: "u1", Role: types.RoleUser, Organization: "acme"}
}

func TestSessionHandler_Create(t *testing.T) {
	f := newSessionFixture(t, 3)

	rec := httptest.NewRecorder()
	f.handler.HandleCreate(rec, authedRequest(http.MethodPost, "/v1/sessions", callerIdentity()))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	sessionID := data["session_id"].(string)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, "ws://localhost:8080/ws/voice?session_id="+sessionID, data["ws_url"])
	assert.EqualValues(t, 1800, data["expires_in"])

	sess, found := f.registry.Get(sessionID)
	require.True(t, found)
	assert.Equal(t, voice.StateConnecting, sess.State())
	assert.Equal(t, "u1", sess.Identity.UserID)

	// 创建即落库，expires_in 从此刻起算
	assert.True(t, f.mr.Exists("session:"+sessionID))
	ttl := f.mr.TTL("session:" + sessionID)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestSessionHandler_CreateRequiresAuth(t *testing.T) {
	f := newSessionFixture(t, 3)

	rec := httptest.NewRecorder()
	f.handler.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionHandler_CreateEnforcesUserCap(t *testing.T) {
	f := newSessionFixture(t, 2)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		f.handler.HandleCreate(rec, authedRequest(http.MethodPost, "/v1/sessions", callerIdentity()))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	f.handler.HandleCreate(rec, authedRequest(http.MethodPost, "/v1/sessions", callerIdentity()))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrSessionLimit), resp.Error.Code)
}

func deleteRequest(t *testing.T, f *sessionFixture, sessionID string, id types.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := authedRequest(http.MethodDelete, "/v1/sessions/"+sessionID, id)
	req.SetPathValue("id", sessionID)
	rec := httptest.NewRecorder()
	f.handler.HandleDelete(rec, req)
	return rec
}

func TestSessionHandler_DeleteIdempotent(t *testing.T) {
	f := newSessionFixture(t, 3)

	sess := voice.NewSession(callerIdentity(), 10)
	require.NoError(t, f.registry.Add(sess))
	require.NoError(t, f.store.Persist(context.Background(), sess))

	rec := deleteRequest(t, f, sess.ID, callerIdentity())
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, found := f.registry.Get(sess.ID)
	assert.False(t, found)
	assert.False(t, f.mr.Exists("session:"+sess.ID))

	// 再删一次仍是 204
	rec = deleteRequest(t, f, sess.ID, callerIdentity())
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionHandler_DeleteForeignSessionForbidden(t *testing.T) {
	f := newSessionFixture(t, 3)

	sess := voice.NewSession(callerIdentity(), 10)
	require.NoError(t, f.registry.Add(sess))

	other := types.Identity{UserID: "u2", Role: types.RoleUser}
	rec := deleteRequest(t, f, sess.ID, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 管理员可以删
	admin := types.Identity{UserID: "boss", Role: types.RoleAdmin}
	rec = deleteRequest(t, f, sess.ID, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionHandler_Get(t *testing.T) {
	f := newSessionFixture(t, 3)

	sess := voice.NewSession(callerIdentity(), 10)
	sess.AppendTurn(types.Turn{UserText: "bonjour"})
	require.NoError(t, f.registry.Add(sess))

	req := authedRequest(http.MethodGet, "/v1/sessions/"+sess.ID, callerIdentity())
	req.SetPathValue("id", sess.ID)
	rec := httptest.NewRecorder()
	f.handler.HandleGet(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, sess.ID, data["session_id"])
	assert.Equal(t, "CONNECTING", data["state"])
	assert.EqualValues(t, 1, data["turns"])
}

func TestSessionHandler_GetNotFound(t *testing.T) {
	f := newSessionFixture(t, 3)

	req := authedRequest(http.MethodGet, "/v1/sessions/nope", callerIdentity())
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	f.handler.HandleGet(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
