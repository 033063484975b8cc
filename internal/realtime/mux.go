package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/booklet/internal/clock"
)

// State is a topic's subscription state.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
	StateErroring     State = "erroring"
)

const (
	// DefaultGracePeriod is how long a channel outlives its last listener.
	DefaultGracePeriod = 5 * time.Second

	// DefaultResubscribeDelay is the fixed delay before reopening a failed channel.
	DefaultResubscribeDelay = 5 * time.Second

	// DefaultMaxResubscribeFailures is the number of consecutive channel
	// failures after which the degraded hook fires.
	DefaultMaxResubscribeFailures = 3
)

// Stats is a point-in-time summary of the multiplexer.
type Stats struct {
	ActiveChannels   int
	Listeners        int
	Retrying         int
	PendingTeardowns int
}

type topicState struct {
	topic     Topic
	listeners *ListenerSet
	state     State
	channel   Channel

	// gen identifies the current channel; callbacks from older channels
	// are ignored.
	gen uint64

	teardown    clock.Timer
	teardownSeq uint64
	retry       clock.Timer
	retrySeq    uint64
	failures    int
}

// Multiplexer is the Subscription Multiplexer. Construct one per process.
//
// Thread-safety: all methods are safe for concurrent use. The transport is
// called without the internal lock held.
type Multiplexer struct {
	transport        Transport
	clock            clock.Clock
	logger           *slog.Logger
	dispatcher       Dispatcher
	ownDispatcher    *AsyncDispatcher
	opener           Dispatcher
	opens            sync.WaitGroup
	relevance        Relevance
	grace            time.Duration
	resubscribeDelay time.Duration
	maxFailures      int
	onDegraded       func(topic string, err error)

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithClock sets the clock driving grace and resubscribe timers.
func WithClock(c clock.Clock) Option {
	return func(m *Multiplexer) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = l
	}
}

// WithDispatcher sets the listener dispatcher. The caller owns its lifecycle.
// By default the multiplexer runs its own AsyncDispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Multiplexer) {
		m.dispatcher = d
	}
}

// WithOpenDispatcher sets where a first subscription opens its channel. By
// default every open runs on its own goroutine, so Subscribe never waits on
// the transport. Resubscribes run on the retry timer.
func WithOpenDispatcher(d Dispatcher) Option {
	return func(m *Multiplexer) {
		m.opener = d
	}
}

// WithRelevance installs a relevance check run before fan-out. Checks run
// on the listener dispatcher in event order, never on the transport's
// read loop.
func WithRelevance(r Relevance) Option {
	return func(m *Multiplexer) {
		m.relevance = r
	}
}

// WithGracePeriod sets the teardown grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Multiplexer) {
		m.grace = d
	}
}

// WithResubscribeDelay sets the fixed resubscribe backoff.
func WithResubscribeDelay(d time.Duration) Option {
	return func(m *Multiplexer) {
		m.resubscribeDelay = d
	}
}

// WithMaxResubscribeFailures sets the degraded threshold. Values < 1 are ignored.
func WithMaxResubscribeFailures(n int) Option {
	return func(m *Multiplexer) {
		if n >= 1 {
			m.maxFailures = n
		}
	}
}

// WithDegradedHook is called once a topic has failed maxFailures times in a
// row. The topic keeps retrying; the hook lets the UI fall back to manual
// refresh.
func WithDegradedHook(fn func(topic string, err error)) Option {
	return func(m *Multiplexer) {
		m.onDegraded = fn
	}
}

// New creates a Multiplexer opening channels through transport.
func New(transport Transport, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		transport:        transport,
		clock:            clock.System{},
		logger:           slog.Default(),
		grace:            DefaultGracePeriod,
		resubscribeDelay: DefaultResubscribeDelay,
		maxFailures:      DefaultMaxResubscribeFailures,
		topics:           make(map[string]*topicState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.clock = clock.OrSystem(m.clock)
	if m.dispatcher == nil {
		m.ownDispatcher = NewAsyncDispatcher(m.logger)
		m.dispatcher = m.ownDispatcher
	}
	if m.opener == nil {
		m.opener = goDispatcher{wg: &m.opens}
	}
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Subscribe registers l on topic and returns the unsubscribe function. The
// first subscription to a topic opens its channel through the open
// dispatcher; Subscribe does not wait for it. Unsubscribe is idempotent and safe
// to call after the topic has been torn down.
func (m *Multiplexer) Subscribe(topic Topic, l Listener) (unsubscribe func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Warn("subscribe after close ignored", "topic", topic.Key)
		return func() {}
	}

	ts := m.topics[topic.Key]
	if ts == nil {
		ts = &topicState{
			topic:     topic,
			listeners: NewListenerSet(m.dispatcher),
			state:     StateUnsubscribed,
		}
		m.topics[topic.Key] = ts
	}
	if ts.teardown != nil {
		ts.teardown.Stop()
		ts.teardown = nil
		m.logger.Debug("teardown cancelled", "topic", topic.Key)
	}
	id := ts.listeners.Subscribe(l)

	var gen uint64
	needOpen := ts.state == StateUnsubscribed
	if needOpen {
		gen = m.beginOpenLocked(ts)
	}
	m.mu.Unlock()

	if needOpen {
		m.opener.Dispatch(func() { m.open(ts, gen) })
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(ts, id) })
	}
}

// SubscribeFunc is Subscribe with a function listener.
func (m *Multiplexer) SubscribeFunc(topic Topic, fn func(ChangeEvent)) func() {
	return m.Subscribe(topic, ListenerFunc(fn))
}

// State returns the state of a topic; unknown topics are unsubscribed.
func (m *Multiplexer) State(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.topics[key]; ok {
		return ts.state
	}
	return StateUnsubscribed
}

// Topics returns the known topic keys, sorted.
func (m *Multiplexer) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.topics))
	for k := range m.topics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a summary of channels, listeners and timers.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, ts := range m.topics {
		if ts.channel != nil {
			s.ActiveChannels++
		}
		s.Listeners += ts.listeners.Len()
		if ts.retry != nil {
			s.Retrying++
		}
		if ts.teardown != nil {
			s.PendingTeardowns++
		}
	}
	return s
}

// Close tears down every channel and cancels all timers. Subscribe after
// Close is a no-op.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var channels []Channel
	for key, ts := range m.topics {
		stopTimer(&ts.teardown)
		stopTimer(&ts.retry)
		if ts.channel != nil {
			channels = append(channels, ts.channel)
			ts.channel = nil
		}
		ts.gen++
		ts.state = StateUnsubscribed
		delete(m.topics, key)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			m.logger.Warn("channel close failed", "error", err)
		}
	}
	m.cancel()
	m.opens.Wait()
	if m.ownDispatcher != nil {
		m.ownDispatcher.Close()
	}
}

func (m *Multiplexer) beginOpenLocked(ts *topicState) uint64 {
	ts.state = StateSubscribing
	ts.gen++
	return ts.gen
}

func (m *Multiplexer) open(ts *topicState, gen uint64) {
	ch, err := m.transport.Open(m.baseCtx, ts.topic, &sink{m: m, ts: ts, gen: gen})

	m.mu.Lock()
	if m.closed || m.topics[ts.topic.Key] != ts || ts.gen != gen {
		// Torn down, closed or failed while opening.
		m.mu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}
		return
	}
	if err != nil {
		_, terr, degraded := m.failLocked(ts, StatusError, err)
		m.mu.Unlock()
		m.reportFailure(ts.topic.Key, terr, degraded)
		return
	}
	ts.channel = ch
	m.mu.Unlock()
	m.logger.Debug("channel opened", "topic", ts.topic.Key)
}

// failLocked drops the current channel and schedules a resubscribe if the
// topic still has listeners. The caller closes the returned channel.
func (m *Multiplexer) failLocked(ts *topicState, st Status, err error) (Channel, *TransportError, bool) {
	ch := ts.channel
	ts.channel = nil
	ts.gen++
	ts.failures++
	stopTimer(&ts.retry)

	terr := &TransportError{Topic: ts.topic.Key, Status: st, Err: err}
	if ts.listeners.Len() == 0 {
		// The pending teardown removes the topic.
		ts.state = StateUnsubscribed
		return ch, terr, false
	}

	ts.state = StateErroring
	ts.retrySeq++
	seq := ts.retrySeq
	ts.retry = m.clock.AfterFunc(m.resubscribeDelay, func() { m.resubscribe(ts, seq) })
	return ch, terr, ts.failures == m.maxFailures
}

func (m *Multiplexer) reportFailure(key string, terr *TransportError, degraded bool) {
	m.logger.Warn("channel failed, resubscribing", "topic", key, "status", terr.Status, "error", terr.Err, "delay", m.resubscribeDelay)
	if degraded {
		m.logger.Error("realtime degraded", "topic", key, "failures", m.maxFailures)
		if m.onDegraded != nil {
			m.onDegraded(key, terr)
		}
	}
}

func (m *Multiplexer) resubscribe(ts *topicState, seq uint64) {
	m.mu.Lock()
	if m.closed || m.topics[ts.topic.Key] != ts || ts.retry == nil || ts.retrySeq != seq {
		m.mu.Unlock()
		return
	}
	ts.retry = nil
	if ts.listeners.Len() == 0 {
		ts.state = StateUnsubscribed
		m.mu.Unlock()
		return
	}
	gen := m.beginOpenLocked(ts)
	m.mu.Unlock()

	m.logger.Info("resubscribing", "topic", ts.topic.Key)
	m.open(ts, gen)
}

func (m *Multiplexer) unsubscribe(ts *topicState, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.topics[ts.topic.Key] != ts {
		return
	}
	ts.listeners.Unsubscribe(id)
	if ts.listeners.Len() > 0 || ts.teardown != nil {
		return
	}
	ts.teardownSeq++
	seq := ts.teardownSeq
	ts.teardown = m.clock.AfterFunc(m.grace, func() { m.expire(ts, seq) })
}

func (m *Multiplexer) expire(ts *topicState, seq uint64) {
	m.mu.Lock()
	if m.topics[ts.topic.Key] != ts || ts.teardown == nil || ts.teardownSeq != seq || ts.listeners.Len() > 0 {
		m.mu.Unlock()
		return
	}
	ts.teardown = nil
	stopTimer(&ts.retry)
	delete(m.topics, ts.topic.Key)
	ch := ts.channel
	ts.channel = nil
	ts.gen++
	ts.state = StateUnsubscribed
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			m.logger.Warn("channel close failed", "topic", ts.topic.Key, "error", err)
		}
	}
	m.logger.Debug("channel torn down", "topic", ts.topic.Key)
}

func (m *Multiplexer) current(ts *topicState, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.topics[ts.topic.Key] == ts && ts.gen == gen
}

func (m *Multiplexer) handleEvent(ts *topicState, gen uint64, ev ChangeEvent) {
	if !m.current(ts, gen) {
		return
	}
	if m.relevance == nil {
		ts.listeners.Notify(ev)
		return
	}
	m.dispatcher.Dispatch(func() {
		ok, err := m.relevance.Relevant(m.baseCtx, ts.topic, ev)
		if err != nil {
			m.logger.Warn("relevance check failed, event skipped", "topic", ts.topic.Key, "table", ev.Table, "error", err)
			return
		}
		if ok {
			ts.listeners.Notify(ev)
		}
	})
}

func (m *Multiplexer) handleStatus(ts *topicState, gen uint64, st Status, err error) {
	m.mu.Lock()
	if m.closed || m.topics[ts.topic.Key] != ts || ts.gen != gen {
		m.mu.Unlock()
		return
	}
	if st == StatusSubscribed {
		ts.state = StateSubscribed
		ts.failures = 0
		m.mu.Unlock()
		m.logger.Info("subscribed", "topic", ts.topic.Key)
		return
	}
	ch, terr, degraded := m.failLocked(ts, st, err)
	m.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	m.reportFailure(ts.topic.Key, terr, degraded)
}

type sink struct {
	m   *Multiplexer
	ts  *topicState
	gen uint64
}

func (s *sink) Event(ev ChangeEvent) {
	s.m.handleEvent(s.ts, s.gen, ev)
}

func (s *sink) Status(st Status, err error) {
	s.m.handleStatus(s.ts, s.gen, st, err)
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
