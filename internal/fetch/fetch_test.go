package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/booklet/internal/cache"
	"github.com/roach88/booklet/internal/connectivity"
	"github.com/roach88/booklet/internal/store"
	"github.com/roach88/booklet/internal/testutil"
)

type fixture struct {
	co    *Coordinator
	cache *cache.Store
	kv    *store.Memory
	clk   *testutil.FakeClock
	net   *connectivity.Monitor
}

func newFixture(t *testing.T, online bool, opts ...Option) *fixture {
	t.Helper()
	clk := testutil.NewFakeClock()
	kv := store.NewMemory()
	c := cache.New(kv, cache.WithClock(clk))
	net := connectivity.NewMonitor(connectivity.State{Online: online})
	opts = append([]Option{WithClock(clk), WithRetries(0)}, opts...)
	return &fixture{co: New(c, net, opts...), cache: c, kv: kv, clk: clk, net: net}
}

type counter struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int) (any, error)
}

func (c *counter) fetch(ctx context.Context) (any, error) {
	n := int(c.calls.Add(1))
	return c.fn(ctx, n)
}

func returns(v any) *counter {
	return &counter{fn: func(context.Context, int) (any, error) { return v, nil }}
}

func fails(err error) *counter {
	return &counter{fn: func(context.Context, int) (any, error) { return nil, err }}
}

func TestLoad_OnlineMissFetchesAndStores(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	src := returns(map[string]int{"count": 3})

	res, err := f.co.Load(ctx, "profile", time.Minute, src.fetch, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.JSONEq(t, `{"count":3}`, string(res.Payload))
	assert.EqualValues(t, 1, src.calls.Load())

	entry, err := f.cache.Get(ctx, "profile")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"count":3}`, string(entry.Payload))
}

func TestLoad_FreshCacheSkipsNetwork(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "profile", map[string]string{"name": "Ada"}))
	f.clk.Advance(30 * time.Second)

	src := returns("unused")
	res, err := f.co.Load(ctx, "profile", time.Minute, src.fetch, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.JSONEq(t, `{"name":"Ada"}`, string(res.Payload))
	assert.Zero(t, src.calls.Load())
}

func TestLoad_StaleCacheFetches(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "profile", "old"))
	f.clk.Advance(2 * time.Minute)

	src := returns("new")
	res, err := f.co.Load(ctx, "profile", time.Minute, src.fetch, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, `"new"`, string(res.Payload))

	last, ok, err := f.cache.LastSync(ctx, "profile")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.clk.Now(), last)
}

func TestLoad_ForceBypassesFreshCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "profile", "old"))

	src := returns("new")
	res, err := f.co.Load(ctx, "profile", time.Hour, src.fetch, true)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestLoad_OfflineServesCacheEvenWhenStale(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "profile", "old"))
	stored := f.clk.Now()
	f.clk.Advance(24 * time.Hour)

	src := returns("never")
	res, err := f.co.Load(ctx, "profile", time.Minute, src.fetch, true)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, stored, res.StoredAt)
	assert.Zero(t, src.calls.Load())
}

func TestLoad_OfflineWithoutCache(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.co.Load(context.Background(), "profile", time.Minute, returns("x").fetch, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCachedData)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestLoad_NetworkFailureFallsBackToCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "profile", "old"))
	f.clk.Advance(time.Hour)

	res, err := f.co.Load(ctx, "profile", time.Minute, fails(errors.New("502")).fetch, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, `"old"`, string(res.Payload))
}

func TestLoad_NetworkFailureWithoutCache(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.co.Load(context.Background(), "profile", time.Minute, fails(errors.New("502")).fetch, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLoad_TimeoutIsReported(t *testing.T) {
	f := newFixture(t, true, WithTimeout(10*time.Millisecond))
	slow := &counter{fn: func(ctx context.Context, _ int) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := f.co.Load(context.Background(), "profile", time.Minute, slow.fetch, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
}

func TestRequestTimeout_DoubledOnSlowLink(t *testing.T) {
	f := newFixture(t, true, WithTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, f.co.requestTimeout(connectivity.State{Online: true}))
	assert.Equal(t, 6*time.Second, f.co.requestTimeout(connectivity.State{Online: true, Slow: true}))
}

func TestLoad_RetriesWithLinearBackoff(t *testing.T) {
	f := newFixture(t, true, WithRetries(2), WithRetryDelay(time.Second))
	src := &counter{fn: func(_ context.Context, n int) (any, error) {
		if n < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.co.Load(context.Background(), "profile", time.Minute, src.fetch, false)
		done <- outcome{res, err}
	}()

	// First retry waits 1s.
	require.Eventually(t, func() bool { return f.clk.Pending() == 1 }, time.Second, time.Millisecond)
	f.clk.Advance(999 * time.Millisecond)
	assert.EqualValues(t, 1, src.calls.Load())
	f.clk.Advance(time.Millisecond)

	// Second retry waits 2s.
	require.Eventually(t, func() bool { return src.calls.Load() == 2 && f.clk.Pending() == 1 }, time.Second, time.Millisecond)
	f.clk.Advance(1999 * time.Millisecond)
	assert.EqualValues(t, 2, src.calls.Load())
	f.clk.Advance(time.Millisecond)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, `"ok"`, string(out.res.Payload))
	case <-time.After(time.Second):
		t.Fatal("load did not finish")
	}
	assert.EqualValues(t, 3, src.calls.Load())
}

func TestLoad_CancelDuringBackoff(t *testing.T) {
	f := newFixture(t, true, WithRetries(1))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.co.Load(ctx, "profile", time.Minute, fails(errors.New("flaky")).fetch, false)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.clk.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("load did not observe cancellation")
	}
	assert.Zero(t, f.clk.Pending())
}

func TestLoad_BrokenCacheStillFetches(t *testing.T) {
	f := newFixture(t, true)
	f.kv.SetFailing(errors.New("disk gone"))

	res, err := f.co.Load(context.Background(), "profile", time.Minute, returns("fresh").fetch, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, `"fresh"`, string(res.Payload))
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.co.Refresh(ctx, "profile")
	assert.ErrorIs(t, err, ErrNotRegistered)

	src := returns([]string{"a"})
	f.co.Register("profile", time.Hour, src.fetch)
	f.co.Register("bookings", time.Hour, src.fetch)
	assert.Equal(t, []string{"bookings", "profile"}, f.co.Registered())

	_, err = f.co.Refresh(ctx, "profile")
	require.NoError(t, err)
	_, err = f.co.Refresh(ctx, "profile")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestLoadAs(t *testing.T) {
	type profile struct {
		Name string `json:"name"`
	}
	f := newFixture(t, true)
	ctx := context.Background()

	p, fromCache, err := LoadAs[profile](ctx, f.co, "profile", time.Minute, returns(profile{Name: "Ada"}).fetch, false)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "Ada", p.Name)

	p, fromCache, err = LoadAs[profile](ctx, f.co, "profile", time.Minute, returns("unused").fetch, false)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "Ada", p.Name)

	_, _, err = LoadAs[[]int](ctx, f.co, "profile", time.Minute, nil, false)
	require.Error(t, err)
	var syntax *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &syntax)
}

func TestRevalidate_OnlyWhenStale(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	src := returns("v")
	f.co.Register("favorites", time.Minute, src.fetch)

	_, err := f.co.Revalidate(ctx, "favorites")
	require.NoError(t, err)
	res, err := f.co.Revalidate(ctx, "favorites")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.EqualValues(t, 1, src.calls.Load())

	require.NoError(t, f.cache.Invalidate(ctx, "favorites"))
	res, err = f.co.Revalidate(ctx, "favorites")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.EqualValues(t, 2, src.calls.Load())
}
