package manipulator

import (
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// RunStats summarizes one Execute call.
type RunStats struct {
	// Processed counts the candidates the loop handled, including those
	// whose transition failed or whose update lost a race.
	Processed int `json:"processed"`

	// TotalBytes is the sum of the processed candidates' file sizes.
	TotalBytes int64 `json:"total_bytes"`

	Duration time.Duration `json:"duration"`

	// Failures counts adapter transitions that returned an error and were
	// reconciled by probing.
	Failures int `json:"failures"`

	// Unresolved counts objects whose location stayed ERROR.
	Unresolved int `json:"unresolved"`

	// Conflicts counts compare-and-set updates that found the record changed
	// or removed since selection.
	Conflicts int `json:"conflicts"`

	// DeadlineReached is set when candidates were left for the next run
	// because the deadline elapsed.
	DeadlineReached bool `json:"deadline_reached"`

	// Canceled is set when the context was canceled mid-run.
	Canceled bool `json:"canceled"`

	// Transitions counts written records by their new location.
	Transitions map[location.Location]int `json:"transitions,omitempty"`
}

// Skipped returns how many of total candidates were not reached.
func (s RunStats) Skipped(total int) int {
	if total <= s.Processed {
		return 0
	}
	return total - s.Processed
}

func (s *RunStats) recordTransition(next location.Location) {
	if s.Transitions == nil {
		s.Transitions = make(map[location.Location]int)
	}
	s.Transitions[next]++
}
