// Package scheduler runs the manipulators periodically for `tierkeeper serve`.
//
// Runs never overlap: a single loop picks the job that is due first, runs
// it to completion (or to its deadline) and only then looks at the next one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

// Job is one manipulator and the interval between two of its runs.
type Job struct {
	Manipulator manipulator.Manipulator
	Interval    time.Duration
}

// Recorder persists finished runs. *history.GORMStore implements it.
type Recorder interface {
	Record(ctx context.Context, res manipulator.RunResult, runErr error) error
}

// LocationGauge publishes the object count per location.
type LocationGauge interface {
	Set(counts map[location.Location]location.LocationSummary)
}

// Config holds the collaborators shared by every run. Only Store is required.
type Config struct {
	// Store is read after each run to refresh Locations.
	Store location.Store

	MaxRunDuration time.Duration
	Clock          manipulator.Clock
	Metrics        manipulator.Metrics
	History        Recorder
	Locations      LocationGauge
}

// JobStatus is a snapshot of one job.
type JobStatus struct {
	Action      manipulator.Action     `json:"action"`
	Manipulator string                 `json:"manipulator"`
	Interval    time.Duration          `json:"interval"`
	Runs        int                    `json:"runs"`
	Failures    int                    `json:"failures"`
	NextRun     time.Time              `json:"next_run"`
	LastRun     *manipulator.RunResult `json:"last_run,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	LastErrorAt time.Time              `json:"last_error_at,omitzero"`
}

type job struct {
	Job
	next time.Time

	runs        int
	failures    int
	last        *manipulator.RunResult
	lastError   error
	lastErrorAt time.Time
}

// Scheduler runs jobs sequentially at their intervals.
type Scheduler struct {
	cfg  Config
	jobs []*job

	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancelRun context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a scheduler. Jobs are tried in the given order when several
// are due at once.
func New(cfg Config, jobs ...Job) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler: location store is required")
	}
	if len(jobs) == 0 {
		return nil, errors.New("scheduler: no job to schedule")
	}
	if cfg.Clock == nil {
		cfg.Clock = manipulator.SystemClock()
	}

	s := &Scheduler{
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	for _, j := range jobs {
		if j.Manipulator == nil {
			return nil, errors.New("scheduler: job without manipulator")
		}
		if j.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: %s interval must be positive", j.Manipulator.Action().Kind())
		}
		s.jobs = append(s.jobs, &job{Job: j})
	}
	return s, nil
}

// Start launches the scheduling loop. Every job runs once right away, then
// at its interval measured from the start of its previous run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	now := s.cfg.Clock.Now()
	for _, j := range s.jobs {
		j.next = now
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.mu.Unlock()

	logger.Info("Starting scheduler", "jobs", len(s.jobs))

	go func() {
		defer close(s.stoppedCh)
		defer cancel()
		s.loop(runCtx)
	}()
}

// Stop cancels the run in progress, which ends before its next candidate,
// and waits up to timeout for the loop to exit.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancelRun
	s.mu.Unlock()

	logger.Info("Stopping scheduler")

	close(s.stopCh)
	cancel()

	select {
	case <-s.stoppedCh:
		logger.Info("Scheduler stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Scheduler stop timed out", "timeout", timeout)
	}
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stoppedCh
}

// Status returns a snapshot of every job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		action := j.Manipulator.Action()
		st := JobStatus{
			Action:      action,
			Manipulator: action.Kind(),
			Interval:    j.Interval,
			Runs:        j.runs,
			Failures:    j.failures,
			NextRun:     j.next,
			LastErrorAt: j.lastErrorAt,
		}
		if j.last != nil {
			last := *j.last
			st.LastRun = &last
		}
		if j.lastError != nil {
			st.LastError = j.lastError.Error()
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if j := s.due(); j != nil {
			s.runJob(ctx, j)
		}

		timer.Reset(s.untilNext())
	}
}

// due returns the first job whose next run is not in the future.
func (s *Scheduler) due() *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	var pick *job
	for _, j := range s.jobs {
		if j.next.After(now) {
			continue
		}
		if pick == nil || j.next.Before(pick.next) {
			pick = j
		}
	}
	return pick
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	wait := time.Duration(-1)
	for _, j := range s.jobs {
		d := j.next.Sub(now)
		if wait < 0 || d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	started := s.cfg.Clock.Now()

	res, err := manipulator.Run(ctx, j.Manipulator, manipulator.RunOptions{
		MaxRunDuration: s.cfg.MaxRunDuration,
		Clock:          s.cfg.Clock,
		Metrics:        s.cfg.Metrics,
	})

	s.mu.Lock()
	j.runs++
	j.last = &res
	j.next = started.Add(j.Interval)
	if err != nil {
		j.failures++
		j.lastError = err
		j.lastErrorAt = s.cfg.Clock.Now()
	}
	s.mu.Unlock()

	// The run context may be canceled by Stop; bookkeeping still completes.
	bg := context.WithoutCancel(ctx)

	if s.cfg.History != nil {
		if herr := s.cfg.History.Record(bg, res, err); herr != nil {
			logger.Warn("Failed to record run history",
				logger.KeyRunID, res.RunID,
				logger.KeyError, herr.Error(),
			)
		}
	}

	if s.cfg.Locations != nil {
		counts, cerr := s.cfg.Store.CountByLocation(bg)
		if cerr != nil {
			logger.Warn("Failed to count objects by location", logger.KeyError, cerr.Error())
			return
		}
		s.cfg.Locations.Set(counts)
	}
}
