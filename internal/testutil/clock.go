package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/booklet/internal/clock"
)

// FakeClock is a fast-forwardable clock.Clock for tests.
//
// Time only moves when Advance or Set is called. Timer callbacks run
// synchronously on the goroutine calling Advance, in due order, so tests
// observe retry backoff and grace-period expiry deterministically.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks are
// invoked without the internal lock held, so they may schedule new timers.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *FakeClock
	due     time.Time
	seq     int64
	fn      func()
	stopped bool
	fired   bool
}

// DefaultEpoch is the starting time of NewFakeClock.
var DefaultEpoch = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

// NewFakeClock creates a fake clock at DefaultEpoch.
func NewFakeClock() *FakeClock {
	return NewFakeClockAt(DefaultEpoch)
}

// NewFakeClockAt creates a fake clock at a specific instant.
func NewFakeClockAt(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

var _ clock.Clock = (*FakeClock)(nil)

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the fake time reaches now+d.
// A non-positive d fires on the next Advance (including Advance(0)).
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, due: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop cancels the timer.
func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.c.removeLocked(t)
	return true
}

// Advance moves time forward by d, firing every timer that becomes due.
// Timers created by callbacks are fired too if they fall within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.due.After(c.now) {
			c.now = next.due
		}
		next.fired = true
		c.removeLocked(next)
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// Set jumps the clock to t without firing timers in between when t is
// earlier than now. Moving forward behaves like Advance.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	now := c.now
	if !t.After(now) {
		c.now = t
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Advance(t.Sub(now))
}

// Pending returns the number of scheduled, unfired timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due.Equal(c.timers[j].due) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].due.Before(c.timers[j].due)
	})
	first := c.timers[0]
	if first.due.After(target) {
		return nil
	}
	return first
}

func (c *FakeClock) removeLocked(t *fakeTimer) {
	for i, cand := range c.timers {
		if cand == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
