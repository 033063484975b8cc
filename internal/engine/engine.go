package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/booklet/internal/cache"
	"github.com/roach88/booklet/internal/clock"
	"github.com/roach88/booklet/internal/config"
	"github.com/roach88/booklet/internal/connectivity"
	"github.com/roach88/booklet/internal/fetch"
	"github.com/roach88/booklet/internal/queue"
	"github.com/roach88/booklet/internal/realtime"
	"github.com/roach88/booklet/internal/store"
)

// ErrNoTransport is returned by New when neither a transport nor a realtime
// URL is configured.
var ErrNoTransport = errors.New("no realtime transport configured")

// Engine owns every sync service for the process.
//
// Thread-safety: all methods are safe for concurrent use. Background work
// (drains, refetches) runs on goroutines tracked by the engine; Wait blocks
// until they finish and Close waits for them.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	cache *cache.Store
	queue *queue.Queue
	mux   *realtime.Multiplexer
	net   *connectivity.Monitor
	fetch *fetch.Coordinator

	onInvalidate func(namespace string)

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	started  bool
	closed   bool
	unsubNet func()
}

type options struct {
	clock        clock.Clock
	logger       *slog.Logger
	ids          queue.IDGenerator
	dispatcher   realtime.Dispatcher
	opener       realtime.Dispatcher
	lookup       realtime.BookingLookup
	initial      connectivity.State
	onFailure    func(queue.Failure)
	onChange     func([]queue.Action)
	onDegraded   func(topic string, err error)
	onInvalidate func(namespace string)
}

// Option configures an Engine.
type Option func(*options)

// WithClock sets the clock shared by every service.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger shared by every service.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator sets the queued action ID generator.
func WithIDGenerator(g queue.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithDispatcher sets the listener dispatcher of the multiplexer.
func WithDispatcher(d realtime.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithOpenDispatcher sets where realtime channels are first opened.
func WithOpenDispatcher(d realtime.Dispatcher) Option {
	return func(o *options) {
		o.opener = d
	}
}

// WithBookingLookup enables booking_tables relevance filtering.
func WithBookingLookup(l realtime.BookingLookup) Option {
	return func(o *options) {
		o.lookup = l
	}
}

// WithInitialConnectivity sets the connectivity state before the first
// platform observation. The default is offline.
func WithInitialConnectivity(s connectivity.State) Option {
	return func(o *options) {
		o.initial = s
	}
}

// WithFailureSink receives terminal queue failures.
func WithFailureSink(fn func(queue.Failure)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}

// WithQueueChangeHook observes every persisted queue change.
func WithQueueChangeHook(fn func([]queue.Action)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithDegradedHook observes topics that keep failing to resubscribe.
func WithDegradedHook(fn func(topic string, err error)) Option {
	return func(o *options) {
		o.onDegraded = fn
	}
}

// WithInvalidationHook observes namespaces invalidated by realtime events.
func WithInvalidationHook(fn func(namespace string)) Option {
	return func(o *options) {
		o.onInvalidate = fn
	}
}

// New builds the engine over kv. A nil transport falls back to a websocket
// transport dialing cfg.RealtimeURL.
func New(cfg config.Config, kv store.KV, transport realtime.Transport, handlers queue.Handlers, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.clock = clock.OrSystem(o.clock)

	if transport == nil {
		if cfg.RealtimeURL == "" {
			return nil, ErrNoTransport
		}
		ws := realtime.NewWebsocketTransport(cfg.RealtimeURL)
		ws.Logger = o.logger
		transport = ws
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		logger:       o.logger,
		net:          connectivity.NewMonitor(o.initial, connectivity.WithLogger(o.logger)),
		onInvalidate: o.onInvalidate,
		baseCtx:      ctx,
		cancel:       cancel,
	}

	e.cache = cache.New(kv, cache.WithClock(o.clock), cache.WithLogger(o.logger))

	qopts := []queue.Option{
		queue.WithClock(o.clock),
		queue.WithLogger(o.logger),
		queue.WithMaxRetries(cfg.Queue.MaxRetries),
		queue.WithRetryDelay(cfg.Queue.RetryDelay),
		queue.WithOnlineCheck(e.net.Online),
	}
	if o.ids != nil {
		qopts = append(qopts, queue.WithIDGenerator(o.ids))
	}
	if o.onFailure != nil {
		qopts = append(qopts, queue.WithFailureSink(o.onFailure))
	}
	if o.onChange != nil {
		qopts = append(qopts, queue.WithChangeHook(o.onChange))
	}
	e.queue = queue.New(kv, handlers, qopts...)

	mopts := []realtime.Option{
		realtime.WithClock(o.clock),
		realtime.WithLogger(o.logger),
		realtime.WithGracePeriod(cfg.Realtime.GracePeriod),
		realtime.WithResubscribeDelay(cfg.Realtime.ResubscribeDelay),
		realtime.WithMaxResubscribeFailures(cfg.Realtime.MaxResubscribeFailures),
		realtime.WithDegradedHook(e.degraded(o.onDegraded)),
	}
	if o.dispatcher != nil {
		mopts = append(mopts, realtime.WithDispatcher(o.dispatcher))
	}
	if o.opener != nil {
		mopts = append(mopts, realtime.WithOpenDispatcher(o.opener))
	}
	if o.lookup != nil {
		mopts = append(mopts, realtime.WithRelevance(realtime.BookingTableRelevance{Lookup: o.lookup}))
	}
	e.mux = realtime.New(transport, mopts...)

	e.fetch = fetch.New(e.cache, e.net,
		fetch.WithClock(o.clock),
		fetch.WithLogger(o.logger),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithRetries(cfg.Fetch.Retries),
		fetch.WithRetryDelay(cfg.Fetch.RetryDelay),
	)

	return e, nil
}

// Start restores the persisted queue and begins reacting to connectivity.
// If the device is already online with queued actions, a drain starts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("engine closed")
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if err := e.queue.Load(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	unsub := e.net.Subscribe(e.onConnectivity)
	e.mu.Lock()
	e.unsubNet = unsub
	e.mu.Unlock()

	if e.net.Online() && e.queue.HasPending() {
		e.background(e.drain)
	}
	e.logger.Info("engine started", "pending", e.queue.Len(), "online", e.net.Online())
	return nil
}

// Close stops every service and waits for background work.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsub := e.unsubNet
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	e.cancel()
	e.mux.Close()
	e.queue.Close()
	e.wg.Wait()
	e.logger.Info("engine stopped")
	return nil
}

// Wait blocks until background drains and refetches finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// SetConnectivity records a platform connectivity observation.
func (e *Engine) SetConnectivity(s connectivity.State) {
	e.net.Set(s)
}

// Register makes namespace refetchable. Its staleness window comes from
// the cache config.
func (e *Engine) Register(namespace string, fetcher fetch.Fetcher) {
	e.fetch.Register(namespace, e.cfg.Cache.MaxAgeFor(namespace), fetcher)
}

// Load reads a registered namespace through the cache.
func (e *Engine) Load(ctx context.Context, namespace string) (fetch.Result, error) {
	return e.fetch.Revalidate(ctx, namespace)
}

// WatchRestaurant subscribes to a restaurant's changes. Every relevant
// event invalidates namespaces; when online they are refetched in the
// background. The returned function unsubscribes.
func (e *Engine) WatchRestaurant(restaurantID string, namespaces ...string) func() {
	topic := realtime.RestaurantTopic(restaurantID)
	return e.mux.SubscribeFunc(topic, func(ev realtime.ChangeEvent) {
		e.logger.Debug("realtime change", "topic", topic.Key, "table", ev.Table, "event", ev.EventType)
		for _, ns := range namespaces {
			if err := e.cache.Invalidate(e.baseCtx, ns); err != nil {
				e.logger.Warn("invalidate failed", "namespace", ns, "error", err)
				continue
			}
			if e.onInvalidate != nil {
				e.onInvalidate(ns)
			}
		}
		if e.net.Online() {
			e.background(func(ctx context.Context) {
				e.revalidate(ctx, namespaces)
			})
		}
	})
}

// SubmitResult describes how Submit handled a mutation.
type SubmitResult struct {
	// Queued is set when the mutation was written to the queue instead of
	// executing.
	Queued bool
	// ActionID is the queued action's ID when Queued.
	ActionID string
}

// Submit performs a mutation. Online, it runs the handler directly and
// queues the mutation only on a retryable failure; terminal failures are
// returned. Offline, it queues.
func (e *Engine) Submit(ctx context.Context, kind queue.Kind, payload any) (SubmitResult, error) {
	if !e.net.Online() {
		return e.enqueue(ctx, kind, payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit %s: marshal payload: %w", kind, err)
	}
	herr := queue.Dispatch(ctx, e.queue.Handlers(), queue.Action{Kind: kind, Payload: data})
	switch {
	case herr == nil:
		return SubmitResult{}, nil
	case queue.IsTerminal(herr):
		return SubmitResult{}, fmt.Errorf("submit %s: %w", kind, herr)
	case ctx.Err() != nil:
		return SubmitResult{}, ctx.Err()
	}

	e.logger.Warn("mutation failed online, queueing", "type", kind, "error", herr)
	return e.enqueue(ctx, kind, payload)
}

// Enqueue queues a mutation and starts a drain when online.
func (e *Engine) Enqueue(ctx context.Context, kind queue.Kind, payload any) (string, error) {
	res, err := e.enqueue(ctx, kind, payload)
	return res.ActionID, err
}

func (e *Engine) enqueue(ctx context.Context, kind queue.Kind, payload any) (SubmitResult, error) {
	id, err := e.queue.Enqueue(ctx, kind, payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit %s: %w", kind, err)
	}
	if e.net.Online() {
		e.background(e.drain)
	}
	return SubmitResult{Queued: true, ActionID: id}, nil
}

func (e *Engine) onConnectivity(c connectivity.Change) {
	if c.WentOffline() {
		e.queue.CancelRetry()
		return
	}
	if !c.CameOnline() {
		return
	}
	e.logger.Info("back online, syncing", "pending", e.queue.Len())
	e.background(func(ctx context.Context) {
		e.drain(ctx)
		e.revalidate(ctx, e.fetch.Registered())
	})
}

func (e *Engine) drain(ctx context.Context) {
	res, err := e.queue.Drain(ctx)
	if err != nil {
		e.logger.Error("queue drain failed", "error", err)
		return
	}
	if !res.Skipped {
		e.logger.Debug("queue drained", "succeeded", res.Succeeded, "failed", res.Failed, "retrying", res.Retrying)
	}
}

func (e *Engine) revalidate(ctx context.Context, namespaces []string) {
	for _, ns := range namespaces {
		if ctx.Err() != nil {
			return
		}
		_, err := e.fetch.Revalidate(ctx, ns)
		switch {
		case err == nil:
		case errors.Is(err, fetch.ErrNotRegistered):
			e.logger.Debug("no fetcher for invalidated namespace", "namespace", ns)
		default:
			e.logger.Warn("background refresh failed", "namespace", ns, "error", err)
		}
	}
}

// background runs fn on a tracked goroutine unless the engine is closed.
func (e *Engine) background(fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.baseCtx)
	}()
}

func (e *Engine) degraded(next func(string, error)) func(string, error) {
	return func(topic string, err error) {
		e.logger.Warn("realtime topic degraded", "topic", topic, "error", err)
		if next != nil {
			next(topic, err)
		}
	}
}

// Cache returns the Cache Store.
func (e *Engine) Cache() *cache.Store { return e.cache }

// Queue returns the Mutation Queue.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// Multiplexer returns the Subscription Multiplexer.
func (e *Engine) Multiplexer() *realtime.Multiplexer { return e.mux }

// Connectivity returns the connectivity Monitor.
func (e *Engine) Connectivity() *connectivity.Monitor { return e.net }

// Fetch returns the fetch Coordinator.
func (e *Engine) Fetch() *fetch.Coordinator { return e.fetch }
