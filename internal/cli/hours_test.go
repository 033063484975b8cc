package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bistroSchedule = `restaurant_id: r-bistro
shifts:
  - {day: tuesday, open: "11:30", close: "14:30"}
  - {day: tuesday, open: "17:30", close: "22:00"}
  - {day: wednesday, open: "17:30", close: "22:00"}
  - {day: friday, open: "17:00", close: "23:00"}
special_days:
  - {date: 2025-03-05, closed: true, reason: Staff training}
closures:
  - {start: 2025-03-04, end: 2025-03-04, start_time: "12:00", end_time: "13:00", reason: Kitchen inspection}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHoursCheck_OpenAtTime(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "check", "--schedule", path, "--date", "2025-03-04", "--time", "18:00")
	require.NoError(t, err)
	assert.Equal(t, "Open 2025-03-04 18:00 (5:30 PM - 10:00 PM)\n", out)
}

func TestHoursCheck_ClosedSpecial(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "check", "--schedule", path, "--date", "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, "Closed 2025-03-05: closed_special (Staff training)\n", out)
}

func TestHoursCheck_JSON(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "--format", "json", "hours", "check", "--schedule", path, "--date", "2025-03-04", "--time", "12:15")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   HoursCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.Open)
	assert.Equal(t, "partial_closure", resp.Data.Reason)
	assert.Equal(t, "12:15", resp.Data.Time)
}

func TestHoursSlots_JSON(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "--format", "json", "hours", "slots", "--schedule", path, "--date", "2025-03-04")
	require.NoError(t, err)

	var resp struct {
		Data HoursSlots `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{
		"2025-03-04 13:00",
		"2025-03-04 17:30",
		"2025-03-04 18:00",
		"2025-03-04 18:30",
		"2025-03-04 19:00",
		"2025-03-04 19:30",
		"2025-03-04 20:00",
		"2025-03-04 20:30",
	}, resp.Data.Slots)
}

func TestHoursSlots_IntervalFlag(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "slots", "--schedule", path, "--date", "2025-03-04", "--interval", "1h")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04 17:30\n2025-03-04 18:30\n2025-03-04 19:30\n2025-03-04 20:30\n", out)
}

func TestHoursSlots_IntervalFromConfig(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)
	cfg := writeFile(t, "booklet.yaml", "availability:\n  slot_interval: 60m\n")

	out, _, err := execute(t, nil, "--config", cfg, "hours", "slots", "--schedule", path, "--date", "2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04 17:30\n2025-03-04 18:30\n2025-03-04 19:30\n2025-03-04 20:30\n", out)
}

func TestHoursSlots_ClosedDay(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "slots", "--schedule", path, "--date", "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, "No slots available on 2025-03-05\n", out)
}

func TestHoursNext(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "next", "--schedule", path, "--date", "2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, "Next opening: 2025-03-07 17:00\n", out)
}

func TestHoursNext_NoneInHorizon(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "next", "--schedule", path, "--date", "2025-03-07", "--horizon", "3")
	require.NoError(t, err)
	assert.Equal(t, "No opening in the 3 day(s) after 2025-03-07\n", out)
}

func TestHoursWeek(t *testing.T) {
	path := writeFile(t, "bistro.yaml", bistroSchedule)

	out, _, err := execute(t, nil, "hours", "week", "--schedule", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Monday     Closed", lines[0])
	assert.Equal(t, "Tuesday    11:30 AM - 2:30 PM, 5:30 PM - 10:00 PM", lines[1])
	assert.True(t, strings.HasPrefix(lines[6], "Sunday"))
}

func TestHours_JSONSchedule(t *testing.T) {
	path := writeFile(t, "bistro.json", `{
  "restaurant_id": "r-bistro",
  "shifts": [
    {"day_of_week": "tuesday", "open_time": "17:30", "close_time": "22:00"}
  ],
  "special_days": [
    {"date": "2025-03-11", "is_closed": true, "reason": "Private event"}
  ]
}`)

	out, _, err := execute(t, nil, "hours", "check", "--schedule", path, "--date", "2025-03-04", "--time", "18:00")
	require.NoError(t, err)
	assert.Equal(t, "Open 2025-03-04 18:00 (5:30 PM - 10:00 PM)\n", out)

	out, _, err = execute(t, nil, "hours", "check", "--schedule", path, "--date", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, "Closed 2025-03-11: closed_special (Private event)\n", out)
}

func TestHours_InputErrors(t *testing.T) {
	valid := writeFile(t, "bistro.yaml", bistroSchedule)
	invalid := writeFile(t, "broken.yaml", "shifts:\n  - {day: monday, open: \"09:00\", close: \"09:00\"}\n")
	unknown := writeFile(t, "unknown.yaml", "shifts: []\nholidays: []\n")

	tests := []struct {
		name    string
		args    []string
		code    string
		message string
	}{
		{"missing schedule flag", []string{"hours", "week"}, ErrCodeInvalidInput, "--schedule is required"},
		{"schedule not found", []string{"hours", "week", "--schedule", filepath.Join(t.TempDir(), "nope.yaml")}, ErrCodeNotFound, "schedule not found"},
		{"invalid schedule", []string{"hours", "week", "--schedule", invalid}, ErrCodeInvalidInput, "invalid schedule"},
		{"unknown field", []string{"hours", "week", "--schedule", unknown}, ErrCodeInvalidInput, "invalid schedule"},
		{"missing date", []string{"hours", "check", "--schedule", valid}, ErrCodeInvalidInput, "--date is required"},
		{"bad date", []string{"hours", "next", "--schedule", valid, "--date", "03/04/2025"}, ErrCodeInvalidInput, "invalid --date"},
		{"bad time", []string{"hours", "check", "--schedule", valid, "--date", "2025-03-04", "--time", "25:00"}, ErrCodeInvalidInput, "invalid --time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, nil, append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.message)
		})
	}
}
