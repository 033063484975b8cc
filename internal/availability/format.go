package availability

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FormatHours renders intervals as "9:00 AM - 5:00 PM, 6:00 PM - 10:00 PM".
// No intervals renders as "Closed".
func FormatHours(hours []Interval) string {
	if len(hours) == 0 {
		return "Closed"
	}
	parts := make([]string, len(hours))
	for i, iv := range hours {
		if iv == AllDay {
			parts[i] = "Open 24 hours"
			continue
		}
		parts[i] = iv.Open.Format12h() + " - " + iv.Close.Format12h()
	}
	return strings.Join(parts, ", ")
}

// DayHours is one row of a weekly schedule.
type DayHours struct {
	Day     string     `json:"day" yaml:"day"`
	Hours   []Interval `json:"hours,omitempty" yaml:"hours,omitempty"`
	Display string     `json:"display" yaml:"display"`
}

// weekOrder lists days Monday first.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeeklySchedule returns the regular shifts grouped by day, Monday first,
// with title-cased day names.
func (s Schedule) WeeklySchedule() []DayHours {
	title := cases.Title(language.English)
	out := make([]DayHours, 0, len(weekOrder))
	for _, wd := range weekOrder {
		var hours []Interval
		for _, sh := range s.Shifts {
			if sh.Day.Weekday() == wd {
				hours = append(hours, sh.Interval())
			}
		}
		sortIntervals(hours)
		out = append(out, DayHours{
			Day:     title.String(DayOfWeek(wd).String()),
			Hours:   hours,
			Display: FormatHours(hours),
		})
	}
	return out
}

func sortIntervals(hours []Interval) {
	sort.SliceStable(hours, func(i, j int) bool { return hours[i].Open < hours[j].Open })
}
