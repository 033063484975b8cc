package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/booklet/internal/cache"
	"github.com/roach88/booklet/internal/store"
	"github.com/roach88/booklet/internal/testutil"
)

func seedCache(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booklet.db")
	s, err := store.Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	c := cache.New(s, cache.WithClock(testutil.NewFakeClock()))
	require.NoError(t, c.Put(ctx, cache.NamespaceProfile, map[string]string{"name": "Ada"}))
	require.NoError(t, c.Put(ctx, cache.NamespaceFavorites, []string{"r1"}))
	require.NoError(t, c.Invalidate(ctx, cache.NamespaceFavorites))
	require.NoError(t, s.Close())
	return path
}

type cacheStatusResponse struct {
	Status string      `json:"status"`
	Data   CacheStatus `json:"data"`
}

func runCacheStatusJSON(t *testing.T, args ...string) CacheStatus {
	t.Helper()
	clk := testutil.NewFakeClock()
	clk.Advance(10 * time.Minute)

	out, _, err := execute(t, &RootOptions{Clock: clk}, append([]string{"--format", "json", "cache", "status"}, args...)...)
	require.NoError(t, err)

	var resp cacheStatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestCacheStatus(t *testing.T) {
	path := seedCache(t)
	status := runCacheStatusJSON(t, "--db", path)

	require.Len(t, status.Namespaces, 2)
	assert.Equal(t, 20, status.TotalBytes)

	favorites := status.Namespaces[0]
	assert.Equal(t, "favorites", favorites.Namespace)
	assert.Equal(t, 6, favorites.Bytes)
	assert.Nil(t, favorites.LastSync)
	assert.True(t, favorites.Stale)

	profile := status.Namespaces[1]
	assert.Equal(t, "profile", profile.Namespace)
	assert.Equal(t, 14, profile.Bytes)
	require.NotNil(t, profile.LastSync)
	assert.Equal(t, "10m0s", profile.Age)
	assert.Equal(t, "30m0s", profile.MaxAge)
	assert.False(t, profile.Stale)
}

func TestCacheStatus_MaxAgeFlag(t *testing.T) {
	path := seedCache(t)
	status := runCacheStatusJSON(t, "--db", path, "--max-age", "5m")

	profile := status.Namespaces[1]
	assert.Equal(t, "5m0s", profile.MaxAge)
	assert.True(t, profile.Stale)
}

func TestCacheStatus_Text(t *testing.T) {
	path := seedCache(t)
	clk := testutil.NewFakeClock()

	out, _, err := execute(t, &RootOptions{Clock: clk}, "cache", "status", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "NAMESPACE")
	assert.Contains(t, out, "never synced")
	assert.Contains(t, out, "fresh")
	assert.Contains(t, out, "2 namespace(s), 20 bytes")
}

func TestCacheClear(t *testing.T) {
	path := seedCache(t)

	out, _, err := execute(t, nil, "cache", "clear", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")

	out, _, err = execute(t, nil, "cache", "status", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Cache is empty")
}
