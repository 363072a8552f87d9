package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
)

// TimeFormat is used for timestamps in tables.
const TimeFormat = "Mon Jan 2 15:04:05 2006"

// LocationsView renders the object count per location.
type LocationsView map[location.Location]location.LocationSummary

func (LocationsView) Headers() []string {
	return []string{"Location", "Objects", "Size"}
}

func (v LocationsView) Rows() [][]string {
	rows := make([][]string, 0, len(location.All)+1)
	var total location.LocationSummary
	for _, loc := range location.All {
		s := v[loc]
		total.Objects += s.Objects
		total.Bytes += s.Bytes
		rows = append(rows, []string{loc.String(), strconv.FormatInt(s.Objects, 10), bytesize.Format(s.Bytes)})
	}
	rows = append(rows, []string{"TOTAL", strconv.FormatInt(total.Objects, 10), bytesize.Format(total.Bytes)})
	return rows
}

// RunsView renders persisted runs, most recent first.
type RunsView []*history.Run

func (RunsView) Headers() []string {
	return []string{"Run ID", "Manipulator", "Started", "Duration", "Candidates", "Processed", "Size", "Status"}
}

func (v RunsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		rows = append(rows, []string{
			ShortID(r.RunID),
			r.Manipulator,
			FormatTime(r.StartedAt),
			FormatDuration(time.Duration(r.DurationMs) * time.Millisecond),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.Processed),
			bytesize.Format(r.TotalBytes),
			r.Status(),
		})
	}
	return rows
}

// RunResultsView renders runs performed by this process.
type RunResultsView []manipulator.RunResult

func (RunResultsView) Headers() []string {
	return []string{"Manipulator", "Run ID", "Candidates", "Processed", "Size", "Duration", "Transitions", "Status"}
}

func (v RunResultsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		rows = append(rows, []string{
			r.Action.Kind(),
			ShortID(r.RunID),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.Stats.Processed),
			bytesize.Format(r.Stats.TotalBytes),
			FormatDuration(r.Stats.Duration),
			FormatTransitions(r.Stats.Transitions),
			runStatus(r.Stats),
		})
	}
	return rows
}

// JobsView renders the scheduler's jobs.
type JobsView []scheduler.JobStatus

func (JobsView) Headers() []string {
	return []string{"Manipulator", "Interval", "Runs", "Failures", "Next Run", "Last Error"}
}

func (v JobsView) Rows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, j := range v {
		rows = append(rows, []string{
			j.Manipulator,
			j.Interval.String(),
			strconv.Itoa(j.Runs),
			strconv.Itoa(j.Failures),
			FormatTime(j.NextRun),
			j.LastError,
		})
	}
	return rows
}

// FormatTransitions renders transition counts as "DUPLICATED=3 REMOTE=1",
// ordered by location.
func FormatTransitions(t map[location.Location]int) string {
	if len(t) == 0 {
		return "-"
	}
	locs := make([]location.Location, 0, len(t))
	for l := range t {
		locs = append(locs, l)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })

	parts := make([]string, 0, len(locs))
	for _, l := range locs {
		parts = append(parts, fmt.Sprintf("%s=%d", l, t[l]))
	}
	return strings.Join(parts, " ")
}

// FormatDuration renders d as "3d 0h 30m 15s", dropping leading zero units.
// Durations under a second keep millisecond precision.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatTime renders t in local time, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(TimeFormat)
}

// ShortID returns the first eight characters of a run ID.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func runStatus(s manipulator.RunStats) string {
	switch {
	case s.Canceled:
		return "canceled"
	case s.DeadlineReached:
		return "deadline"
	default:
		return "ok"
	}
}
