// Package harness runs availability conformance scenarios.
//
// A scenario is a YAML file holding one restaurant schedule and the queries
// to evaluate against it:
//
//   - checks: IsOpen / IsOpenAt with the expected open flag and reason
//   - slots: EnumerateSlots with the expected start times
//   - next: NextOpen with the expected first opening
//
// Run evaluates every query and returns the result trace together with any
// expectation that did not hold. RunWithGolden additionally compares the
// trace JSON with testdata/golden/<name>.golden, so changes to resolver
// output show up as golden diffs even when a scenario states no
// expectation for them.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
