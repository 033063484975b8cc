package availability

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultHorizonDays bounds the NextOpen search.
	DefaultHorizonDays = 7

	// DefaultSlotInterval is the step between enumerated slots.
	DefaultSlotInterval = 30 * time.Minute

	// DefaultServiceDuration is the time a booking needs before close.
	DefaultServiceDuration = 90 * time.Minute
)

// Reason explains a closed Result.
type Reason string

const (
	// ReasonClosedForPeriod: a full-day closure covers the date.
	ReasonClosedForPeriod Reason = "closed_for_period"
	// ReasonClosedSpecial: a closed special day.
	ReasonClosedSpecial Reason = "closed_special"
	// ReasonClosedToday: no hours on that date.
	ReasonClosedToday Reason = "closed_today"
	// ReasonClosedAtThisTime: the time is outside every interval.
	ReasonClosedAtThisTime Reason = "closed_at_this_time"
	// ReasonPartialClosure: the time is inside an interval and a partial closure.
	ReasonPartialClosure Reason = "partial_closure"
)

// Result is the answer of IsOpen and IsOpenAt.
//
// Detail carries the free-text reason of the closure or special day that
// closed the date. Hours is the matching interval for a timed query, or the
// date's intervals otherwise.
type Result struct {
	Open   bool       `json:"open" yaml:"open"`
	Reason Reason     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Detail string     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Hours  []Interval `json:"hours,omitempty" yaml:"hours,omitempty"`
}

// Slot is a bookable start time. Slots of a shift running past midnight
// carry the following Date.
type Slot struct {
	Date Date      `json:"date" yaml:"date"`
	Time TimeOfDay `json:"time" yaml:"time"`
}

// In returns the slot as an instant in loc.
func (s Slot) In(loc *time.Location) time.Time {
	return s.Date.At(s.Time, loc)
}

// String formats the slot as "YYYY-MM-DD HH:MM".
func (s Slot) String() string {
	return fmt.Sprintf("%s %s", s.Date, s.Time)
}

// window is [start, end) in minutes on a day's timeline.
type window struct {
	start, end int
}

func (w window) overlaps(start, end int) bool {
	return start < w.end && w.start < end
}

// dayPlan is the resolved schedule of one date.
type dayPlan struct {
	closed  Reason
	detail  string
	hours   []Interval
	blocked []window
}

func (s Schedule) plan(d Date) dayPlan {
	var p dayPlan
	for _, c := range s.Closures {
		if !c.Covers(d) {
			continue
		}
		if !c.Partial() {
			return dayPlan{closed: ReasonClosedForPeriod, detail: c.Reason}
		}
		p.blocked = append(p.blocked, window{int(*c.StartTime), int(*c.EndTime)})
	}

	if sd, ok := s.special(d); ok {
		if sd.Closed {
			return dayPlan{closed: ReasonClosedSpecial, detail: sd.Reason}
		}
		if sd.Open != nil && sd.Close != nil {
			p.hours = []Interval{{Open: *sd.Open, Close: *sd.Close}}
		} else {
			p.hours = []Interval{AllDay}
		}
		return p
	}

	for _, sh := range s.Shifts {
		if sh.Day.Weekday() == d.Weekday() {
			p.hours = append(p.hours, sh.Interval())
		}
	}
	sortIntervals(p.hours)
	return p
}

func (p dayPlan) blockedAt(t int) bool {
	for _, w := range p.blocked {
		if t >= w.start && t < w.end {
			return true
		}
	}
	return false
}

// tails returns the after-midnight parts, on d's timeline, of the previous
// day's wrapping intervals.
func (s Schedule) tails(d Date) []Interval {
	prev := s.plan(d.AddDays(-1))
	if prev.closed != "" {
		return nil
	}
	var out []Interval
	for _, iv := range prev.hours {
		if iv.Wraps() && iv.Close > 0 {
			out = append(out, Interval{Open: 0, Close: iv.Close})
		}
	}
	return out
}

// IsOpen reports whether the restaurant opens at all on d.
func (s Schedule) IsOpen(d Date) Result {
	p := s.plan(d)
	if p.closed != "" {
		return Result{Reason: p.closed, Detail: p.detail}
	}
	if len(p.hours) == 0 {
		return Result{Reason: ReasonClosedToday}
	}
	return Result{Open: true, Hours: p.hours}
}

// IsOpenAt reports whether the restaurant is open on d at t.
func (s Schedule) IsOpenAt(d Date, t TimeOfDay) Result {
	p := s.plan(d)
	if p.closed != "" {
		return Result{Reason: p.closed, Detail: p.detail}
	}

	var matched *Interval
	for i := range p.hours {
		if p.hours[i].Contains(t) {
			matched = &p.hours[i]
			break
		}
	}
	if matched == nil {
		for _, tail := range s.tails(d) {
			if tail.Contains(t) {
				matched = &tail
				break
			}
		}
	}

	switch {
	case matched == nil && len(p.hours) == 0:
		return Result{Reason: ReasonClosedToday}
	case matched == nil:
		return Result{Reason: ReasonClosedAtThisTime, Hours: p.hours}
	case p.blockedAt(int(t)):
		return Result{Reason: ReasonPartialClosure, Hours: []Interval{*matched}}
	}
	return Result{Open: true, Hours: []Interval{*matched}}
}

// timelineBlocks returns the windows blocked on d's two-day timeline: d's
// partial closures, then the next day's shifted by a day (all of it when
// the next day is closed).
func (s Schedule) timelineBlocks(d Date, p dayPlan) []window {
	blocked := append([]window(nil), p.blocked...)
	next := s.plan(d.AddDays(1))
	if next.closed != "" {
		return append(blocked, window{MinutesPerDay, 2 * MinutesPerDay})
	}
	for _, w := range next.blocked {
		blocked = append(blocked, window{w.start + MinutesPerDay, w.end + MinutesPerDay})
	}
	return blocked
}

// EnumerateSlots lists the start times on d, every interval apart, that
// leave at least duration before their interval's close and do not touch a
// partial closure. Slots are sorted and unique. Slots of the previous day's
// after-midnight hours belong to that day and are not listed.
func (s Schedule) EnumerateSlots(d Date, interval, duration time.Duration) []Slot {
	step := int(interval / time.Minute)
	need := int(duration / time.Minute)
	if step <= 0 || need < 0 {
		return nil
	}

	p := s.plan(d)
	if p.closed != "" || len(p.hours) == 0 {
		return nil
	}
	blocked := s.timelineBlocks(d, p)

	seen := make(map[int]bool)
	for _, iv := range p.hours {
		start, end := iv.span()
		for m := start; m+need <= end; m += step {
			occupied := need
			if occupied == 0 {
				occupied = 1
			}
			free := true
			for _, w := range blocked {
				if w.overlaps(m, m+occupied) {
					free = false
					break
				}
			}
			if free {
				seen[m] = true
			}
		}
	}

	minutes := make([]int, 0, len(seen))
	for m := range seen {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	slots := make([]Slot, len(minutes))
	for i, m := range minutes {
		slots[i] = Slot{Date: d.AddDays(m / MinutesPerDay), Time: TimeOfDay(m % MinutesPerDay)}
	}
	return slots
}

// NextOpen searches the days after from, up to horizon days ahead, and
// returns the earliest opening. The same closure, special-day and shift
// resolution applies to every candidate day, and an opening inside a partial
// closure moves to the closure's end.
func (s Schedule) NextOpen(from Date, horizon int) (Slot, bool) {
	for i := 1; i <= horizon; i++ {
		d := from.AddDays(i)
		p := s.plan(d)
		if p.closed != "" || len(p.hours) == 0 {
			continue
		}
		earliest := -1
		for _, iv := range p.hours {
			start, end := iv.span()
			m := firstFree(start, p.blocked)
			if m < end && (earliest < 0 || m < earliest) {
				earliest = m
			}
		}
		if earliest >= 0 {
			return Slot{Date: d.AddDays(earliest / MinutesPerDay), Time: TimeOfDay(earliest % MinutesPerDay)}, true
		}
	}
	return Slot{}, false
}

func firstFree(m int, blocked []window) int {
	for moved := true; moved; {
		moved = false
		for _, w := range blocked {
			if m >= w.start && m < w.end {
				m = w.end
				moved = true
			}
		}
	}
	return m
}
