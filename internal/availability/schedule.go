package availability

import (
	"errors"
	"fmt"
)

// Interval is an opening interval. Close earlier than Open means the
// interval runs past midnight.
type Interval struct {
	Open  TimeOfDay `json:"open" yaml:"open"`
	Close TimeOfDay `json:"close" yaml:"close"`
}

// Wraps reports whether the interval runs past midnight.
func (iv Interval) Wraps() bool {
	return iv.Close < iv.Open
}

// span returns [start, end) in minutes on the opening day's timeline;
// end exceeds MinutesPerDay for wrapping intervals.
func (iv Interval) span() (int, int) {
	end := int(iv.Close)
	if iv.Wraps() {
		end += MinutesPerDay
	}
	return int(iv.Open), end
}

// AllDay is the interval of an open special day that lists no times.
var AllDay = Interval{Open: 0, Close: MinutesPerDay}

// Contains reports whether t falls in [Open, Close) on the opening day.
// For a wrapping interval that is t >= Open.
func (iv Interval) Contains(t TimeOfDay) bool {
	start, end := iv.span()
	return int(t) >= start && int(t) < end
}

// RegularShift is a recurring weekly opening. A day may have several.
type RegularShift struct {
	Day   DayOfWeek `json:"day_of_week" yaml:"day"`
	Open  TimeOfDay `json:"open_time" yaml:"open"`
	Close TimeOfDay `json:"close_time" yaml:"close"`
}

// Interval returns the shift's hours.
func (s RegularShift) Interval() Interval {
	return Interval{Open: s.Open, Close: s.Close}
}

// SpecialDay overrides the regular shifts for one date. An open special day
// without times is open all day.
type SpecialDay struct {
	Date   Date       `json:"date" yaml:"date"`
	Closed bool       `json:"is_closed" yaml:"closed"`
	Open   *TimeOfDay `json:"open_time,omitempty" yaml:"open,omitempty"`
	Close  *TimeOfDay `json:"close_time,omitempty" yaml:"close,omitempty"`
	Reason string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ClosureRange closes the restaurant for every date in [Start, End].
// With StartTime and EndTime set, only that window of each day is closed.
type ClosureRange struct {
	Start     Date       `json:"start_date" yaml:"start"`
	End       Date       `json:"end_date" yaml:"end"`
	StartTime *TimeOfDay `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime   *TimeOfDay `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Reason    string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Covers reports whether d is within the range.
func (c ClosureRange) Covers(d Date) bool {
	return !d.Before(c.Start) && !d.After(c.End)
}

// Partial reports whether the closure only blocks a time window.
func (c ClosureRange) Partial() bool {
	return c.StartTime != nil && c.EndTime != nil
}

// Schedule is the reference data for one restaurant.
type Schedule struct {
	RestaurantID string         `json:"restaurant_id" yaml:"restaurant_id"`
	Shifts       []RegularShift `json:"shifts" yaml:"shifts"`
	Special      []SpecialDay   `json:"special_days,omitempty" yaml:"special_days,omitempty"`
	Closures     []ClosureRange `json:"closures,omitempty" yaml:"closures,omitempty"`
}

// Validate checks the structural rules the resolver relies on.
func (s Schedule) Validate() error {
	var errs []error
	for i, sh := range s.Shifts {
		if sh.Open == sh.Close {
			errs = append(errs, fmt.Errorf("shift %d (%s): open equals close", i, sh.Day))
		}
	}
	seen := make(map[Date]bool)
	for _, sd := range s.Special {
		if seen[sd.Date] {
			errs = append(errs, fmt.Errorf("special day %s: duplicate date", sd.Date))
		}
		seen[sd.Date] = true
		if !sd.Closed && (sd.Open == nil) != (sd.Close == nil) {
			errs = append(errs, fmt.Errorf("special day %s: open special day needs open and close together", sd.Date))
		}
	}
	for i, c := range s.Closures {
		if c.End.Before(c.Start) {
			errs = append(errs, fmt.Errorf("closure %d: end %s before start %s", i, c.End, c.Start))
		}
		if (c.StartTime == nil) != (c.EndTime == nil) {
			errs = append(errs, fmt.Errorf("closure %d: start_time and end_time must be set together", i))
		}
		if c.Partial() && *c.EndTime <= *c.StartTime {
			errs = append(errs, fmt.Errorf("closure %d: end_time must be after start_time", i))
		}
	}
	return errors.Join(errs...)
}

func (s Schedule) special(d Date) (SpecialDay, bool) {
	for _, sd := range s.Special {
		if sd.Date == d {
			return sd, true
		}
	}
	return SpecialDay{}, false
}
