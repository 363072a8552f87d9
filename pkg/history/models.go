package history

import (
	"errors"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

// ErrRunNotFound is returned when no run matches a lookup.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted manipulator run.
type Run struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	RunID       string    `gorm:"uniqueIndex;not null;size:36" json:"run_id"`
	Manipulator string    `gorm:"index:idx_runs_manipulator_started;not null;size:16" json:"manipulator"`
	StartedAt   time.Time `gorm:"index:idx_runs_manipulator_started;not null" json:"started_at"`
	Deadline    time.Time `json:"deadline"`
	DurationMs  int64     `json:"duration_ms"`

	Candidates int   `json:"candidates"`
	Processed  int   `json:"processed"`
	TotalBytes int64 `json:"total_bytes"`
	Failures   int   `json:"failures"`
	Unresolved int   `json:"unresolved"`
	Conflicts  int   `json:"conflicts"`

	// Records written per new location.
	ToLocal      int `json:"to_local"`
	ToDuplicated int `json:"to_duplicated"`
	ToRemote     int `json:"to_remote"`
	ToError      int `json:"to_error"`

	DeadlineReached bool   `gorm:"default:false" json:"deadline_reached"`
	Canceled        bool   `gorm:"default:false" json:"canceled"`
	Error           string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Run.
func (Run) TableName() string {
	return "runs"
}

// Status summarizes how the run ended: ok, deadline, canceled or error.
func (r *Run) Status() string {
	switch {
	case r.Error != "":
		return "error"
	case r.Canceled:
		return "canceled"
	case r.DeadlineReached:
		return "deadline"
	default:
		return "ok"
	}
}

// FromResult converts a run result and its error into a Run.
func FromResult(res manipulator.RunResult, runErr error) *Run {
	s := res.Stats
	r := &Run{
		RunID:           res.RunID,
		Manipulator:     res.Action.Kind(),
		StartedAt:       res.StartedAt.UTC(),
		Deadline:        res.Deadline.UTC(),
		DurationMs:      s.Duration.Milliseconds(),
		Candidates:      res.Candidates,
		Processed:       s.Processed,
		TotalBytes:      s.TotalBytes,
		Failures:        s.Failures,
		Unresolved:      s.Unresolved,
		Conflicts:       s.Conflicts,
		ToLocal:         s.Transitions[location.LocationLocal],
		ToDuplicated:    s.Transitions[location.LocationDuplicated],
		ToRemote:        s.Transitions[location.LocationRemote],
		ToError:         s.Transitions[location.LocationError],
		DeadlineReached: s.DeadlineReached,
		Canceled:        s.Canceled,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}
