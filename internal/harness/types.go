package harness

// Trace is the evaluated output of a scenario, in query order.
type Trace struct {
	Scenario string       `json:"scenario"`
	Checks   []CheckTrace `json:"checks,omitempty"`
	Slots    []SlotTrace  `json:"slots,omitempty"`
	Next     []NextTrace  `json:"next,omitempty"`
}

// CheckTrace is the answer of one Check.
type CheckTrace struct {
	Date   string `json:"date"`
	Time   string `json:"time,omitempty"`
	Open   bool   `json:"open"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
	Hours  string `json:"hours"`
}

// SlotTrace is the answer of one SlotQuery.
type SlotTrace struct {
	Date     string   `json:"date"`
	Interval int      `json:"interval"`
	Duration int      `json:"duration"`
	Slots    []string `json:"slots"`
}

// NextTrace is the answer of one NextQuery.
type NextTrace struct {
	From    string `json:"from"`
	Horizon int    `json:"horizon"`
	Next    string `json:"next"`
}

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass is true when every stated expectation held.
	Pass bool

	Trace Trace

	// Errors holds one AssertionError per failed expectation.
	Errors []error
}
