package voice

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxflow/voxflow/internal/cache"
	"github.com/voxflow/voxflow/types"
	"go.uber.org/zap"
)

func setupStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *ContextStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, NewContextStore(manager, ttl, zap.NewNop())
}

func TestContextStore_PersistAndLoad(t *testing.T) {
	_, store := setupStore(t, 30*time.Minute)
	ctx := context.Background()

	s := NewSession(testIdentity(), 10)
	s.AppendTurn(types.Turn{UserText: "bonjour", AssistantText: "salut", Provider: "gemini-flash"})
	require.NoError(t, store.Persist(ctx, s))

	loaded, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "u1", loaded.UserID)
	assert.Equal(t, types.RoleUser, loaded.Role)
	assert.Equal(t, "acme", loaded.Organization)
	require.Len(t, loaded.Turns, 1)
	assert.Equal(t, "bonjour", loaded.Turns[0].UserText)
}

func TestContextStore_LoadMissingReturnsNil(t *testing.T) {
	_, store := setupStore(t, 30*time.Minute)

	loaded, err := store.Load(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestContextStore_TTLExpiry(t *testing.T) {
	mr, store := setupStore(t, time.Minute)
	ctx := context.Background()

	s := NewSession(testIdentity(), 10)
	require.NoError(t, store.Persist(ctx, s))
	assert.True(t, mr.Exists("session:"+s.ID))

	mr.FastForward(2 * time.Minute)

	loaded, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded, "expired context reads as missing")
}

func TestContextStore_PersistRefreshesTTL(t *testing.T) {
	mr, store := setupStore(t, time.Minute)
	ctx := context.Background()

	s := NewSession(testIdentity(), 10)
	require.NoError(t, store.Persist(ctx, s))

	// 半程后再次持久化，TTL 应重置
	mr.FastForward(40 * time.Second)
	s.AppendTurn(types.Turn{UserText: "encore"})
	require.NoError(t, store.Persist(ctx, s))

	mr.FastForward(40 * time.Second)
	loaded, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded, "refreshed TTL must outlive the original deadline")
	assert.Len(t, loaded.Turns, 1)
}

func TestContextStore_Delete(t *testing.T) {
	mr, store := setupStore(t, time.Minute)
	ctx := context.Background()

	s := NewSession(testIdentity(), 10)
	require.NoError(t, store.Persist(ctx, s))
	require.NoError(t, store.Delete(ctx, s.ID))
	assert.False(t, mr.Exists("session:"+s.ID))

	// 幂等
	require.NoError(t, store.Delete(ctx, s.ID))
}
