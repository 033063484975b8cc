package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/booklet/internal/clock"
	"github.com/roach88/booklet/internal/store"
)

const (
	// DefaultStorageKey is where the queue is persisted.
	DefaultStorageKey = "@offline_queue"

	// DefaultMaxRetries is the number of failed attempts after which an
	// action is dropped as terminal.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed delay before the deferred re-drain.
	DefaultRetryDelay = time.Second
)

var tracer = otel.Tracer("github.com/roach88/booklet/internal/queue")

// Result summarizes one drain pass.
type Result struct {
	// Succeeded counts actions whose handler succeeded (removed).
	Succeeded int
	// Failed counts terminal failures (removed and reported).
	Failed int
	// Retrying counts failed actions kept for a later drain.
	Retrying int
	// Skipped is set when another drain was already running, or when the
	// device was offline at the start of the pass.
	Skipped bool
	// Offline is set when the pass stopped because the device is offline.
	// Actions not attempted keep their retry count.
	Offline bool
}

// Failure is a terminal failure reported to the failure sink.
// The UI should tell the user the change needs to be redone.
type Failure struct {
	Action Action
	Err    error
}

// Queue is the Mutation Queue. Construct one per process and share it.
//
// Thread-safety: all methods are safe for concurrent use. Handlers run
// without the internal lock held, so they may call Enqueue.
type Queue struct {
	kv         store.KV
	handlers   Handlers
	key        string
	clock      clock.Clock
	logger     *slog.Logger
	ids        IDGenerator
	maxRetries int
	retryDelay time.Duration
	onFailure  func(Failure)
	onChange   func([]Action)
	online     func() bool

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	actions    []Action
	draining   bool
	retryTimer clock.Timer
	closed     bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the failed-attempt limit. Values < 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 1 {
			q.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed delay before the deferred re-drain.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.retryDelay = d
	}
}

// WithClock sets the clock used for enqueue timestamps and retry timers.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithIDGenerator overrides the action ID generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// WithStorageKey overrides the storage key (default "@offline_queue").
func WithStorageKey(key string) Option {
	return func(q *Queue) {
		q.key = key
	}
}

// WithFailureSink receives every terminal failure. The sink is called from
// the draining goroutine and must not block.
func WithFailureSink(fn func(Failure)) Option {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

// WithChangeHook is called with a snapshot after every persisted change.
func WithChangeHook(fn func([]Action)) Option {
	return func(q *Queue) {
		q.onChange = fn
	}
}

// WithOnlineCheck gates replays on connectivity. While fn reports false,
// Drain attempts nothing and no deferred re-drain is armed.
func WithOnlineCheck(fn func() bool) Option {
	return func(q *Queue) {
		q.online = fn
	}
}

// New creates a Queue persisted in kv and replayed through handlers.
// Call Load before the first Drain to pick up actions from a previous run.
func New(kv store.KV, handlers Handlers, opts ...Option) *Queue {
	q := &Queue{
		kv:         kv,
		handlers:   handlers,
		key:        DefaultStorageKey,
		clock:      clock.System{},
		logger:     slog.Default(),
		ids:        UUIDv7Generator{},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.clock = clock.OrSystem(q.clock)
	q.baseCtx, q.cancel = context.WithCancel(context.Background())
	return q
}

// Load replaces the in-memory queue with the persisted one. Actions found
// in flight (the process died mid-attempt) are reset to failed so their
// retry count is honored.
func (q *Queue) Load(ctx context.Context) error {
	raw, ok, err := q.kv.Get(ctx, q.key)
	if err != nil {
		return storageError("load queue", err)
	}

	var actions []Action
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &actions); err != nil {
			return storageError("decode queue", err)
		}
	}
	for i := range actions {
		if actions[i].Status == StatusInFlight {
			actions[i].Status = StatusFailed
		}
	}

	q.mu.Lock()
	q.actions = actions
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.logger.Info("queue loaded", "pending", len(snapshot))
	q.notifyChange(snapshot)
	return nil
}

// Enqueue appends a mutation and persists the queue. It fails only when
// storage is not writable; the action is then not queued.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: marshal payload: %w", kind, err)
	}

	a := Action{
		ID:         q.ids.NewID(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: q.clock.Now(),
		Status:     StatusPending,
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	if err := q.persistLocked(ctx); err != nil {
		q.actions = q.actions[:len(q.actions)-1]
		q.mu.Unlock()
		return "", err
	}
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.logger.Debug("action queued", "action_id", a.ID, "type", a.Kind)
	q.notifyChange(snapshot)
	return a.ID, nil
}

// Drain replays every currently queued action once, in FIFO order.
//
// If a drain is already running the call is a no-op returning
// Result{Skipped: true}. Actions enqueued during the pass wait for the next
// drain. A storage failure while persisting bookkeeping is returned with the
// partial Result; the pass still completes.
func (q *Queue) Drain(ctx context.Context) (Result, error) {
	if !q.isOnline() {
		return Result{Skipped: true, Offline: true}, nil
	}

	q.mu.Lock()
	if q.draining || q.closed {
		q.mu.Unlock()
		return Result{Skipped: true}, nil
	}
	q.draining = true
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	pass := make([]Action, len(q.actions))
	copy(pass, q.actions)
	q.mu.Unlock()

	ctx, span := tracer.Start(ctx, "queue.drain")
	defer span.End()

	var res Result
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, a := range pass {
		if ctx.Err() != nil {
			break
		}
		if !q.isOnline() {
			res.Offline = true
			break
		}

		found, err := q.update(ctx, a.ID, func(cur *Action) { cur.Status = StatusInFlight })
		keep(err)
		if !found {
			continue
		}

		herr := Dispatch(ctx, q.handlers, a)
		switch {
		case herr == nil:
			keep(q.remove(ctx, a.ID))
			res.Succeeded++
			q.logger.Debug("action synced", "action_id", a.ID, "type", a.Kind)

		case IsTerminal(herr):
			keep(q.remove(ctx, a.ID))
			res.Failed++
			q.logger.Error("action dropped", "action_id", a.ID, "type", a.Kind, "error", herr)
			q.reportFailure(a, herr)

		case ctx.Err() != nil:
			// Interrupted by shutdown, not a real attempt.
			_, err = q.update(context.WithoutCancel(ctx), a.ID, func(cur *Action) { cur.Status = a.Status })
			keep(err)

		default:
			a.RetryCount++
			a.LastError = herr.Error()
			if a.RetryCount >= q.maxRetries {
				keep(q.remove(ctx, a.ID))
				res.Failed++
				terminal := &Error{
					Code:     ErrCodeMaxRetriesExceeded,
					Message:  fmt.Sprintf("failed %d times", a.RetryCount),
					ActionID: a.ID,
					Kind:     a.Kind,
					Err:      herr,
				}
				q.logger.Error("action exhausted retries", "action_id", a.ID, "type", a.Kind, "retries", a.RetryCount, "error", herr)
				a.Status = StatusFailed
				q.reportFailure(a, terminal)
				continue
			}
			_, err = q.update(ctx, a.ID, func(cur *Action) {
				cur.RetryCount = a.RetryCount
				cur.LastError = a.LastError
				cur.Status = StatusFailed
			})
			keep(err)
			res.Retrying++
			q.logger.Warn("action will be retried", "action_id", a.ID, "type", a.Kind, "retries", a.RetryCount, "error", herr)
		}
	}

	span.SetAttributes(
		attribute.Int("queue.succeeded", res.Succeeded),
		attribute.Int("queue.failed", res.Failed),
		attribute.Int("queue.retrying", res.Retrying),
	)

	online := !res.Offline && q.isOnline()

	q.mu.Lock()
	q.draining = false
	if res.Retrying > 0 && online && !q.closed && q.retryTimer == nil {
		q.retryTimer = q.clock.AfterFunc(q.retryDelay, q.redrain)
	}
	q.mu.Unlock()

	return res, firstErr
}

func (q *Queue) redrain() {
	q.mu.Lock()
	q.retryTimer = nil
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	if _, err := q.Drain(q.baseCtx); err != nil {
		q.logger.Error("deferred drain failed", "error", err)
	}
}

// CancelRetry stops the deferred re-drain, if one is armed. Queued actions
// are kept and replay on the next Drain.
func (q *Queue) CancelRetry() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
}

func (q *Queue) isOnline() bool {
	return q.online == nil || q.online()
}

// Handlers returns the handlers actions are replayed through.
func (q *Queue) Handlers() Handlers {
	return q.handlers
}

// Pending returns a snapshot of the queued actions in FIFO order.
func (q *Queue) Pending() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// HasPending reports whether any action is queued.
func (q *Queue) HasPending() bool {
	return q.Len() > 0
}

// Draining reports whether a drain is in progress.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// RetryScheduled reports whether a deferred re-drain is pending.
func (q *Queue) RetryScheduled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retryTimer != nil
}

// Clear drops every queued action without replaying it.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	prev := q.actions
	q.actions = nil
	if err := q.persistLocked(ctx); err != nil {
		q.actions = prev
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()
	q.notifyChange(nil)
	return nil
}

// Close cancels the deferred re-drain and stops future drains. Persisted
// actions remain for the next process.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	q.cancel()
}

func (q *Queue) update(ctx context.Context, id string, fn func(*Action)) (bool, error) {
	q.mu.Lock()
	found := false
	for i := range q.actions {
		if q.actions[i].ID == id {
			fn(&q.actions[i])
			found = true
			break
		}
	}
	if !found {
		q.mu.Unlock()
		return false, nil
	}
	err := q.persistLocked(ctx)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notifyChange(snapshot)
	return true, err
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	out := q.actions[:0]
	for _, a := range q.actions {
		if a.ID != id {
			out = append(out, a)
		}
	}
	q.actions = out
	err := q.persistLocked(ctx)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()
	q.notifyChange(snapshot)
	return err
}

func (q *Queue) persistLocked(ctx context.Context) error {
	actions := q.actions
	if actions == nil {
		actions = []Action{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := q.kv.Set(ctx, q.key, string(data)); err != nil {
		q.logger.Error("failed to persist queue", "error", err)
		return storageError("persist queue", err)
	}
	return nil
}

func (q *Queue) snapshotLocked() []Action {
	out := make([]Action, len(q.actions))
	copy(out, q.actions)
	return out
}

func (q *Queue) notifyChange(snapshot []Action) {
	if q.onChange != nil {
		q.onChange(snapshot)
	}
}

func (q *Queue) reportFailure(a Action, err error) {
	if q.onFailure != nil {
		q.onFailure(Failure{Action: a, Err: err})
	}
}
