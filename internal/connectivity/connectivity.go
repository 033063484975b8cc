// Package connectivity tracks whether the device is online.
//
// The platform feeds observations into a Monitor with Set; components
// subscribe to transitions. Offline→online transitions drive queue drains and
// cache refreshes in the engine package.
package connectivity

import (
	"log/slog"
	"sync"
)

// State is an observed connectivity state.
type State struct {
	Online bool `json:"online"`
	// Slow is the slow-link hint (poor or fair connection quality).
	Slow bool `json:"slow"`
}

// Quality is a coarse connection quality reported by the platform.
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
	QualityUnknown   Quality = "unknown"
)

// FromQuality builds a State from reachability and quality.
func FromQuality(online bool, q Quality) State {
	return State{Online: online, Slow: q == QualityPoor || q == QualityFair}
}

// Change is one transition delivered to subscribers.
type Change struct {
	Prev State
	Next State
}

// CameOnline reports an offline→online transition.
func (c Change) CameOnline() bool {
	return !c.Prev.Online && c.Next.Online
}

// WentOffline reports an online→offline transition.
func (c Change) WentOffline() bool {
	return c.Prev.Online && !c.Next.Online
}

// Monitor holds the current State and notifies subscribers on change.
//
// Thread-safety: safe for concurrent use. Subscribers run synchronously on
// the goroutine calling Set, in subscription order, without the lock held.
type Monitor struct {
	logger *slog.Logger

	mu    sync.Mutex
	state State
	next  uint64
	subs  map[uint64]func(Change)
	order []uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// NewMonitor creates a Monitor starting at initial.
func NewMonitor(initial State, opts ...Option) *Monitor {
	m := &Monitor{
		logger: slog.Default(),
		state:  initial,
		subs:   make(map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the device is online.
func (m *Monitor) Online() bool {
	return m.State().Online
}

// Set records a new observation. Subscribers are notified only when the
// state changed; the return value reports whether it did.
func (m *Monitor) Set(s State) bool {
	m.mu.Lock()
	prev := m.state
	if prev == s {
		m.mu.Unlock()
		return false
	}
	m.state = s
	subs := make([]func(Change), 0, len(m.order))
	for _, id := range m.order {
		subs = append(subs, m.subs[id])
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", s.Online, "slow", s.Slow, "was_online", prev.Online)
	ch := Change{Prev: prev, Next: s}
	for _, fn := range subs {
		fn(ch)
	}
	return true
}

// Subscribe registers fn for every change and returns an idempotent
// unsubscribe function.
func (m *Monitor) Subscribe(fn func(Change)) (unsubscribe func()) {
	m.mu.Lock()
	m.next++
	id := m.next
	m.subs[id] = fn
	m.order = append(m.order, id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			for i, cand := range m.order {
				if cand == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}
