package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/booklet/internal/availability"
)

// loadSchedule reads a schedule file: JSON (the wire format) when the
// extension is .json, YAML otherwise.
func loadSchedule(path string) (availability.Schedule, error) {
	var s availability.Schedule
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&s)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&s)
	}
	if err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// HoursCheck is the output of "hours check".
type HoursCheck struct {
	Date   string `json:"date"`
	Time   string `json:"time,omitempty"`
	Open   bool   `json:"open"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
	Hours  string `json:"hours"`
}

// Text renders the check.
func (h HoursCheck) Text() string {
	when := h.Date
	if h.Time != "" {
		when += " " + h.Time
	}
	if h.Open {
		return fmt.Sprintf("Open %s (%s)", when, h.Hours)
	}
	msg := fmt.Sprintf("Closed %s: %s", when, h.Reason)
	if h.Detail != "" {
		msg += " (" + h.Detail + ")"
	}
	if h.Hours != "Closed" {
		msg += "; hours " + h.Hours
	}
	return msg
}

// HoursSlots is the output of "hours slots".
type HoursSlots struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// Text renders one slot per line.
func (h HoursSlots) Text() string {
	if len(h.Slots) == 0 {
		return "No slots available on " + h.Date
	}
	return strings.Join(h.Slots, "\n")
}

// HoursNext is the output of "hours next".
type HoursNext struct {
	From    string `json:"from"`
	Horizon int    `json:"horizon"`
	Found   bool   `json:"found"`
	Next    string `json:"next,omitempty"`
}

// Text renders the next opening.
func (h HoursNext) Text() string {
	if !h.Found {
		return fmt.Sprintf("No opening in the %d day(s) after %s", h.Horizon, h.From)
	}
	return "Next opening: " + h.Next
}

// HoursWeek is the output of "hours week".
type HoursWeek struct {
	Days []availability.DayHours `json:"days"`
}

// Text renders one day per line.
func (h HoursWeek) Text() string {
	var b strings.Builder
	for i, d := range h.Days {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-10s %s", d.Day, d.Display)
	}
	return b.String()
}

type hoursOptions struct {
	schedule string
	date     string
	time     string
	interval time.Duration
	duration time.Duration
	horizon  int
}

// NewHoursCommand creates the hours command group.
func NewHoursCommand(rootOpts *RootOptions) *cobra.Command {
	o := &hoursOptions{}

	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Query restaurant availability from a schedule file",
	}
	cmd.PersistentFlags().StringVar(&o.schedule, "schedule", "", "schedule file (YAML, or JSON with .json extension)")

	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether the restaurant is open on a date, or at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoursCheck(rootOpts, o, cmd)
		},
	}
	check.Flags().StringVar(&o.date, "date", "", "date (YYYY-MM-DD)")
	check.Flags().StringVar(&o.time, "time", "", "time of day (HH:MM)")
	cmd.AddCommand(check)

	slots := &cobra.Command{
		Use:   "slots",
		Short: "List bookable start times on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoursSlots(rootOpts, o, cmd)
		},
	}
	slots.Flags().StringVar(&o.date, "date", "", "date (YYYY-MM-DD)")
	slots.Flags().DurationVar(&o.interval, "interval", 0, "step between slots (default from config)")
	slots.Flags().DurationVar(&o.duration, "duration", 0, "service duration before close (default from config)")
	cmd.AddCommand(slots)

	next := &cobra.Command{
		Use:   "next",
		Short: "Find the next opening after a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoursNext(rootOpts, o, cmd)
		},
	}
	next.Flags().StringVar(&o.date, "date", "", "date (YYYY-MM-DD)")
	next.Flags().IntVar(&o.horizon, "horizon", 0, "days to search (default from config)")
	cmd.AddCommand(next)

	cmd.AddCommand(&cobra.Command{
		Use:   "week",
		Short: "Print the regular weekly hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoursWeek(rootOpts, o, cmd)
		},
	})

	return cmd
}

func (o *hoursOptions) load(f *OutputFormatter) (availability.Schedule, error) {
	if o.schedule == "" {
		return availability.Schedule{}, f.Fail(ExitCommandError, ErrCodeInvalidInput, "--schedule is required", nil)
	}
	s, err := loadSchedule(o.schedule)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schedule not found: %s", o.schedule), err)
		}
		return s, f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid schedule", err)
	}
	f.VerboseLog("Loaded schedule %s (%d shifts, %d special days, %d closures)",
		o.schedule, len(s.Shifts), len(s.Special), len(s.Closures))
	return s, nil
}

func (o *hoursOptions) parseDate(f *OutputFormatter) (availability.Date, error) {
	if o.date == "" {
		return availability.Date{}, f.Fail(ExitCommandError, ErrCodeInvalidInput, "--date is required", nil)
	}
	d, err := availability.ParseDate(o.date)
	if err != nil {
		return d, f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --date", err)
	}
	return d, nil
}

func runHoursCheck(opts *RootOptions, o *hoursOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := o.load(f)
	if err != nil {
		return err
	}
	d, err := o.parseDate(f)
	if err != nil {
		return err
	}

	out := HoursCheck{Date: d.String()}
	var res availability.Result
	if o.time != "" {
		t, err := availability.ParseTimeOfDay(o.time)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --time", err)
		}
		out.Time = t.String()
		res = s.IsOpenAt(d, t)
	} else {
		res = s.IsOpen(d)
	}
	out.Open = res.Open
	out.Reason = string(res.Reason)
	out.Detail = res.Detail
	out.Hours = availability.FormatHours(res.Hours)
	return f.Success(out)
}

func runHoursSlots(opts *RootOptions, o *hoursOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := o.load(f)
	if err != nil {
		return err
	}
	d, err := o.parseDate(f)
	if err != nil {
		return err
	}

	interval := o.interval
	if interval <= 0 {
		interval = opts.Config.Availability.SlotInterval
	}
	duration := o.duration
	if duration <= 0 {
		duration = opts.Config.Availability.ServiceDuration
	}

	slots := s.EnumerateSlots(d, interval, duration)
	out := HoursSlots{Date: d.String(), Slots: make([]string, len(slots))}
	for i, slot := range slots {
		out.Slots[i] = slot.String()
	}
	return f.Success(out)
}

func runHoursNext(opts *RootOptions, o *hoursOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := o.load(f)
	if err != nil {
		return err
	}
	d, err := o.parseDate(f)
	if err != nil {
		return err
	}

	horizon := o.horizon
	if horizon <= 0 {
		horizon = opts.Config.Availability.HorizonDays
	}
	out := HoursNext{From: d.String(), Horizon: horizon}
	if slot, ok := s.NextOpen(d, horizon); ok {
		out.Found = true
		out.Next = slot.String()
	}
	return f.Success(out)
}

func runHoursWeek(opts *RootOptions, o *hoursOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	s, err := o.load(f)
	if err != nil {
		return err
	}
	return f.Success(HoursWeek{Days: s.WeeklySchedule()})
}
