// Package clock provides the wall-clock and timer abstraction used by every
// time-dependent component (cache staleness, queue backoff, subscription
// grace periods, resubscription delays).
//
// Components never call time.Now or time.AfterFunc directly. They take a
// Clock so tests can substitute testutil.FakeClock and fast-forward timers
// deterministically.
package clock

import "time"

// Timer is a pending callback scheduled by AfterFunc.
type Timer interface {
	// Stop cancels the timer. Returns false if the timer already fired or
	// was already stopped.
	Stop() bool
}

// Clock reports the current time and schedules deferred callbacks.
//
// Thread-safety: implementations must be safe for concurrent use.
// Callbacks run on a goroutine owned by the implementation.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the production Clock backed by the time package.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// OrSystem returns c, or System if c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
