package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Value")
	table.AddRow("key1", "value1")
	table.AddRow("key2", "value2")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "VALUE")
	assert.Contains(t, out, "key1")
	assert.Contains(t, out, "value2")
}

func TestPrintKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, [][2]string{
		{"Run ID", "abc"},
		{"Processed", "3"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Run ID")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "Processed")
}

func TestLocationsView(t *testing.T) {
	view := LocationsView{
		location.LocationLocal:      {Objects: 1, Bytes: 512},
		location.LocationDuplicated: {Objects: 3, Bytes: 3 * 1024 * 1024},
	}

	rows := view.Rows()
	require.Len(t, rows, len(location.All)+1)
	assert.Equal(t, []string{"ERROR", "0", "0B"}, rows[0])
	assert.Equal(t, "LOCAL", rows[1][0])
	assert.Equal(t, "3", rows[2][1])
	assert.Equal(t, []string{"TOTAL", "4"}, rows[4][:2])
}

func TestRunsView(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	view := RunsView{
		{RunID: "0123456789abcdef", Manipulator: "puller", StartedAt: started, DurationMs: 1500, Candidates: 4, Processed: 3, TotalBytes: 2048},
		{RunID: "fedcba9876543210", Manipulator: "deleter", StartedAt: started, Error: "store unavailable"},
	}

	rows := view.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "01234567", rows[0][0])
	assert.Equal(t, "puller", rows[0][1])
	assert.Equal(t, "1s", rows[0][3])
	assert.Equal(t, "ok", rows[0][7])
	assert.Equal(t, "error", rows[1][7])
	assert.Len(t, rows[0], len(view.Headers()))
}

func TestRunResultsView(t *testing.T) {
	view := RunResultsView{{
		RunID:      "short",
		Action:     manipulator.ActionDelete,
		Candidates: 5,
		Stats: manipulator.RunStats{
			Processed:       2,
			TotalBytes:      10,
			Duration:        250 * time.Millisecond,
			DeadlineReached: true,
			Transitions: map[location.Location]int{
				location.LocationRemote: 1,
				location.LocationError:  1,
			},
		},
	}}

	row := view.Rows()[0]
	assert.Equal(t, []string{"deleter", "short", "5", "2", "10B", "250ms", "ERROR=1 REMOTE=1", "deadline"}, row)
}

func TestJobsView(t *testing.T) {
	view := JobsView{{
		Manipulator: "recoverer",
		Interval:    time.Hour,
		Runs:        2,
		Failures:    1,
		LastError:   "boom",
	}}

	row := view.Rows()[0]
	assert.Equal(t, []string{"recoverer", "1h0m0s", "2", "1", "-", "boom"}, row)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0s"},
		{in: 1234 * time.Microsecond, want: "1ms"},
		{in: 45 * time.Second, want: "45s"},
		{in: 2*time.Minute + 5*time.Second, want: "2m 5s"},
		{in: 3*time.Hour + 30*time.Second, want: "3h 0m 30s"},
		{in: 72*time.Hour + 30*time.Minute + 15*time.Second, want: "3d 0h 30m 15s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestFormatTransitions(t *testing.T) {
	assert.Equal(t, "-", FormatTransitions(nil))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "01234567", ShortID("0123456789"))
	assert.Equal(t, "-", FormatTime(time.Time{}))
}
