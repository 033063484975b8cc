// Package fetch decides whether data comes from the cache or the network.
//
// Coordinator.Load serves fresh cache entries without a request, fetches
// stale or missing namespaces when online (with a timeout doubled on slow
// links and a few retries with linear backoff), stores the result, and falls
// back to cached data when the network fails or the device is offline.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/booklet/internal/cache"
	"github.com/roach88/booklet/internal/clock"
	"github.com/roach88/booklet/internal/connectivity"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
)

var tracer = otel.Tracer("github.com/roach88/booklet/internal/fetch")

// Fetcher performs one network request for a namespace. The returned value
// is stored as the namespace's JSON payload.
type Fetcher func(ctx context.Context) (any, error)

// Connectivity reports the current connectivity state.
type Connectivity interface {
	State() connectivity.State
}

// Result is the outcome of a Load.
type Result struct {
	Payload   json.RawMessage
	FromCache bool
	StoredAt  time.Time
}

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

type registration struct {
	maxAge time.Duration
	fetch  Fetcher
}

// Coordinator is the fetch coordinator.
type Coordinator struct {
	cache      *cache.Store
	net        Connectivity
	clock      clock.Clock
	logger     *slog.Logger
	timeout    time.Duration
	retries    int
	retryDelay time.Duration

	mu       sync.Mutex
	fetchers map[string]registration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock driving retry backoff.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = l
	}
}

// WithTimeout sets the per-request timeout on a normal link.
func WithTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		co.timeout = d
	}
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(co *Coordinator) {
		if n >= 0 {
			co.retries = n
		}
	}
}

// WithRetryDelay sets the backoff unit; retry n waits n*d.
func WithRetryDelay(d time.Duration) Option {
	return func(co *Coordinator) {
		co.retryDelay = d
	}
}

// New creates a Coordinator over c, consulting net for connectivity.
func New(c *cache.Store, net Connectivity, opts ...Option) *Coordinator {
	co := &Coordinator{
		cache:      c,
		net:        net,
		clock:      clock.System{},
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		fetchers:   make(map[string]registration),
	}
	for _, opt := range opts {
		opt(co)
	}
	co.clock = clock.OrSystem(co.clock)
	return co
}

// Register records the fetcher and staleness window used by Refresh.
func (co *Coordinator) Register(namespace string, maxAge time.Duration, fetch Fetcher) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.fetchers[namespace] = registration{maxAge: maxAge, fetch: fetch}
}

// Registered returns the namespaces with a registered fetcher, sorted.
func (co *Coordinator) Registered() []string {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make([]string, 0, len(co.fetchers))
	for ns := range co.fetchers {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Refresh forces a network load of a registered namespace.
func (co *Coordinator) Refresh(ctx context.Context, namespace string) (Result, error) {
	return co.loadRegistered(ctx, namespace, true)
}

// Revalidate loads a registered namespace, hitting the network only when
// its cache entry is stale or missing.
func (co *Coordinator) Revalidate(ctx context.Context, namespace string) (Result, error) {
	return co.loadRegistered(ctx, namespace, false)
}

func (co *Coordinator) loadRegistered(ctx context.Context, namespace string, force bool) (Result, error) {
	co.mu.Lock()
	reg, ok := co.fetchers[namespace]
	co.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("load %q: %w", namespace, ErrNotRegistered)
	}
	return co.Load(ctx, namespace, reg.maxAge, reg.fetch, force)
}

// Load returns the namespace's data.
//
// Offline: the cached entry, or ErrNoCachedData. Online: the cached entry if
// it is fresh and force is false; otherwise the network result, which is
// also stored. A network failure with a cached entry present serves the
// entry. A broken cache is logged and treated as empty.
func (co *Coordinator) Load(ctx context.Context, namespace string, maxAge time.Duration, fetch Fetcher, force bool) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "fetch.load",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("fetch.namespace", namespace)),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("fetch.from_cache", res.FromCache))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	state := co.net.State()

	entry, cerr := co.cache.Get(ctx, namespace)
	if cerr != nil {
		co.logger.Warn("cache unavailable, continuing without it", "namespace", namespace, "error", cerr)
		entry = nil
	}

	if !state.Online {
		if entry != nil {
			return cached(entry), nil
		}
		return Result{}, fmt.Errorf("load %q: %w", namespace, ErrNoCachedData)
	}

	if entry != nil && !force {
		stale, err := co.cache.IsStale(ctx, namespace, maxAge)
		if err == nil && !stale {
			return cached(entry), nil
		}
	}

	payload, err := co.fetchWithRetry(ctx, namespace, state, fetch)
	if err != nil {
		if entry != nil && ctx.Err() == nil {
			co.logger.Warn("network failed, serving cache", "namespace", namespace, "error", err)
			return cached(entry), nil
		}
		return Result{}, fmt.Errorf("load %q: %w", namespace, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("load %q: marshal payload: %w", namespace, err)
	}
	if err := co.cache.Put(ctx, namespace, json.RawMessage(data)); err != nil {
		co.logger.Warn("failed to cache network result", "namespace", namespace, "error", err)
	}
	return Result{Payload: data, StoredAt: co.clock.Now()}, nil
}

// LoadAs is Load decoding the payload into T.
func LoadAs[T any](ctx context.Context, co *Coordinator, namespace string, maxAge time.Duration, fetch Fetcher, force bool) (T, bool, error) {
	var zero T
	res, err := co.Load(ctx, namespace, maxAge, fetch, force)
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := res.Decode(&v); err != nil {
		return zero, false, fmt.Errorf("load %q: decode: %w", namespace, err)
	}
	return v, res.FromCache, nil
}

// requestTimeout returns the per-attempt timeout for state.
func (co *Coordinator) requestTimeout(state connectivity.State) time.Duration {
	if state.Slow {
		return 2 * co.timeout
	}
	return co.timeout
}

func (co *Coordinator) fetchWithRetry(ctx context.Context, namespace string, state connectivity.State, fetch Fetcher) (any, error) {
	timeout := co.requestTimeout(state)
	var lastErr error
	for attempt := 0; attempt <= co.retries; attempt++ {
		if attempt > 0 {
			if err := co.wait(ctx, time.Duration(attempt)*co.retryDelay); err != nil {
				return nil, err
			}
		}

		actx, cancel := context.WithTimeout(ctx, timeout)
		payload, err := fetch(actx)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		lastErr = err
		co.logger.Debug("fetch attempt failed", "namespace", namespace, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (co *Coordinator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	t := co.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

func cached(e *cache.Entry) Result {
	return Result{Payload: e.Payload, FromCache: true, StoredAt: e.StoredAt}
}
