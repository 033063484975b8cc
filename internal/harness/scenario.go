package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/booklet/internal/availability"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario covers.
	Description string `yaml:"description"`

	// Schedule is the restaurant schedule under test.
	Schedule availability.Schedule `yaml:"schedule"`

	Checks []Check     `yaml:"checks,omitempty"`
	Slots  []SlotQuery `yaml:"slots,omitempty"`
	Next   []NextQuery `yaml:"next,omitempty"`
}

// Check is an IsOpen query, or IsOpenAt when Time is set.
type Check struct {
	Date   availability.Date       `yaml:"date"`
	Time   *availability.TimeOfDay `yaml:"time,omitempty"`
	Expect *CheckExpect            `yaml:"expect,omitempty"`
}

// CheckExpect is the expected answer of a Check. An empty Reason is not
// compared.
type CheckExpect struct {
	Open   bool   `yaml:"open"`
	Reason string `yaml:"reason,omitempty"`
}

// SlotQuery is an EnumerateSlots query. Interval and Duration are minutes;
// zero selects the resolver defaults.
type SlotQuery struct {
	Date     availability.Date `yaml:"date"`
	Interval int               `yaml:"interval,omitempty"`
	Duration int               `yaml:"duration,omitempty"`
	// Expect lists "YYYY-MM-DD HH:MM" slots. Nil skips the comparison; an
	// empty list expects no slots.
	Expect []string `yaml:"expect"`
}

// NextQuery is a NextOpen query. Horizon zero selects the default.
type NextQuery struct {
	From    availability.Date `yaml:"from"`
	Horizon int               `yaml:"horizon,omitempty"`
	// Expect is "YYYY-MM-DD HH:MM", NoOpening, or empty to skip.
	Expect string `yaml:"expect,omitempty"`
}

// NoOpening is the trace value of a NextOpen query that found nothing.
const NoOpening = "none"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Checks)+len(s.Slots)+len(s.Next) == 0 {
		return fmt.Errorf("at least one check, slots or next query is required")
	}
	if err := s.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	for i, c := range s.Checks {
		if c.Date.IsZero() {
			return fmt.Errorf("checks[%d]: date is required", i)
		}
	}
	for i, q := range s.Slots {
		if q.Date.IsZero() {
			return fmt.Errorf("slots[%d]: date is required", i)
		}
		if q.Interval < 0 || q.Duration < 0 {
			return fmt.Errorf("slots[%d]: interval and duration must not be negative", i)
		}
	}
	for i, q := range s.Next {
		if q.From.IsZero() {
			return fmt.Errorf("next[%d]: from is required", i)
		}
		if q.Horizon < 0 {
			return fmt.Errorf("next[%d]: horizon must not be negative", i)
		}
	}
	return nil
}
