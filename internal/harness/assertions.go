package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an expectation fails.
type AssertionError struct {
	Query    string // e.g. "checks[2]"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Query)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

func assertCheck(i int, want *CheckExpect, got CheckTrace) error {
	if want == nil {
		return nil
	}
	if want.Open == got.Open && (want.Reason == "" || want.Reason == got.Reason) {
		return nil
	}
	return &AssertionError{
		Query:    fmt.Sprintf("checks[%d] %s %s", i, got.Date, got.Time),
		Expected: describeCheck(want.Open, want.Reason),
		Actual:   describeCheck(got.Open, got.Reason),
	}
}

func describeCheck(open bool, reason string) string {
	if open {
		return "open"
	}
	if reason == "" {
		return "closed"
	}
	return "closed (" + reason + ")"
}

func assertSlots(i int, want []string, got SlotTrace) error {
	if want == nil || equalStrings(want, got.Slots) {
		return nil
	}
	return &AssertionError{
		Query:    fmt.Sprintf("slots[%d] %s", i, got.Date),
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got.Slots),
	}
}

func assertNext(i int, want string, got NextTrace) error {
	if want == "" || want == got.Next {
		return nil
	}
	return &AssertionError{
		Query:    fmt.Sprintf("next[%d] from %s", i, got.From),
		Expected: want,
		Actual:   got.Next,
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
