package harness

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/booklet/internal/availability"
)

// Run evaluates every query of the scenario in order.
//
// It returns an error only for a malformed scenario; failed expectations
// are reported in Result.Errors.
func Run(s *Scenario) (*Result, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	result := &Result{Trace: Trace{Scenario: s.Name}}

	for i, c := range s.Checks {
		var res availability.Result
		ct := CheckTrace{Date: c.Date.String()}
		if c.Time != nil {
			ct.Time = c.Time.String()
			res = s.Schedule.IsOpenAt(c.Date, *c.Time)
		} else {
			res = s.Schedule.IsOpen(c.Date)
		}
		ct.Open = res.Open
		ct.Reason = string(res.Reason)
		ct.Detail = res.Detail
		ct.Hours = availability.FormatHours(res.Hours)

		result.Trace.Checks = append(result.Trace.Checks, ct)
		if err := assertCheck(i, c.Expect, ct); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	for i, q := range s.Slots {
		interval := minutesOr(q.Interval, availability.DefaultSlotInterval)
		duration := minutesOr(q.Duration, availability.DefaultServiceDuration)

		slots := s.Schedule.EnumerateSlots(q.Date, interval, duration)
		st := SlotTrace{
			Date:     q.Date.String(),
			Interval: int(interval / time.Minute),
			Duration: int(duration / time.Minute),
			Slots:    make([]string, len(slots)),
		}
		for j, slot := range slots {
			st.Slots[j] = slot.String()
		}

		result.Trace.Slots = append(result.Trace.Slots, st)
		if err := assertSlots(i, q.Expect, st); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	for i, q := range s.Next {
		horizon := q.Horizon
		if horizon == 0 {
			horizon = availability.DefaultHorizonDays
		}
		nt := NextTrace{From: q.From.String(), Horizon: horizon, Next: NoOpening}
		if slot, ok := s.Schedule.NextOpen(q.From, horizon); ok {
			nt.Next = slot.String()
		}

		result.Trace.Next = append(result.Trace.Next, nt)
		if err := assertNext(i, q.Expect, nt); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	result.Pass = len(result.Errors) == 0
	return result, nil
}

// MarshalTrace renders a trace as indented JSON with a trailing newline.
func MarshalTrace(t Trace) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}
	return append(data, '\n'), nil
}

func minutesOr(m int, def time.Duration) time.Duration {
	if m == 0 {
		return def
	}
	return time.Duration(m) * time.Minute
}
