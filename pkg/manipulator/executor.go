package manipulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// Deps are the collaborators shared by every manipulator.
type Deps struct {
	Store   location.Store
	Adapter tier.Adapter

	// Reporter defaults to NopReporter.
	Reporter Reporter

	// Clock defaults to SystemClock.
	Clock Clock
}

func (d Deps) validate() error {
	if d.Store == nil {
		return errors.New("location store is required")
	}
	if d.Adapter == nil {
		return errors.New("storage adapter is required")
	}
	return nil
}

func (d Deps) withDefaults() Deps {
	if d.Reporter == nil {
		d.Reporter = NopReporter{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	return d
}

// transitionFunc mutates the tiers for one object. A nil error means the
// nominal target location was reached.
type transitionFunc func(ctx context.Context, hash location.ContentHash) error

// executor is the time-boxed loop shared by all manipulators.
type executor struct {
	deps   Deps
	action Action

	// from is the location candidates were selected in and the expected
	// value of every compare-and-set update.
	from location.Location

	// nominal is the location assumed after a successful transition.
	nominal location.Location

	// transition is nil for probe-only runs.
	transition transitionFunc
}

// run processes candidates in order until they are exhausted, the deadline
// elapses or ctx is canceled. Store errors abort the run; adapter errors are
// reconciled into the recorded location.
func (e *executor) run(ctx context.Context, candidates []location.Candidate, deadline time.Time) (RunStats, error) {
	clock := e.deps.Clock
	reporter := e.deps.Reporter

	var stats RunStats
	start := clock.Now()
	reporter.StartTiming()
	defer func() {
		reporter.EndTiming()
		reporter.FlushSummary()
	}()

	for _, c := range candidates {
		if ctx.Err() != nil {
			stats.Canceled = true
			break
		}
		if !clock.Now().Before(deadline) {
			stats.DeadlineReached = true
			break
		}

		if err := e.process(ctx, c, &stats); err != nil {
			stats.Duration = clock.Now().Sub(start)
			return stats, err
		}

		stats.Processed++
		stats.TotalBytes += c.FileSize
		reporter.RecordTransition(c.FileSize)
	}

	stats.Duration = clock.Now().Sub(start)

	if stats.DeadlineReached {
		logger.InfoCtx(ctx, "Deadline reached, leaving remaining candidates for the next run",
			logger.KeyProcessed, stats.Processed,
			"remaining", stats.Skipped(len(candidates)),
		)
	}

	return stats, nil
}

// process handles one candidate. Once the transition has been attempted its
// outcome is always recorded: the probe and the location update run on a
// context that cancellation does not reach, bounded by settleTimeout.
func (e *executor) process(ctx context.Context, c location.Candidate, stats *RunStats) error {
	ctx, span := telemetry.StartObjectSpan(ctx, string(e.action), string(c.ContentHash),
		telemetry.FileSize(c.FileSize),
		telemetry.ExpectedLocation(e.from.String()),
	)
	defer span.End()

	next := e.resolve(ctx, c, stats)
	span.SetAttributes(telemetry.Location(next.String()))

	if next == location.LocationError {
		stats.Unresolved++
		// Leave ERROR records alone rather than rewriting them to ERROR.
		if e.from == location.LocationError {
			logger.DebugCtx(ctx, "Object still unresolved",
				logger.KeyContentHash, string(c.ContentHash),
			)
			return nil
		}
	}

	settle, cancel := settleContext(ctx)
	defer cancel()
	updated, err := e.deps.Store.UpdateLocation(settle, c.ContentHash, e.from, next, e.deps.Clock.Now())
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("update location of %s: %w", c.ContentHash, err)
	}
	if !updated {
		stats.Conflicts++
		logger.WarnCtx(ctx, "Location changed concurrently, skipping update",
			logger.KeyContentHash, string(c.ContentHash),
			logger.KeyExpected, e.from.String(),
			logger.KeyLocation, next.String(),
		)
		return nil
	}

	stats.recordTransition(next)
	logger.DebugCtx(ctx, "Location updated",
		logger.KeyContentHash, string(c.ContentHash),
		logger.KeyFileSize, c.FileSize,
		logger.KeyExpected, e.from.String(),
		logger.KeyLocation, next.String(),
	)
	return nil
}

// settleTimeout bounds the probe and update that follow a transition once
// the run's context has been canceled.
const settleTimeout = 30 * time.Second

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// resolve applies the transition and returns the location to record. The
// adapter's success is advisory: on failure the actual location is probed,
// and a failed probe yields ERROR.
func (e *executor) resolve(ctx context.Context, c location.Candidate, stats *RunStats) location.Location {
	if e.transition != nil {
		err := e.transition(ctx, c.ContentHash)
		if err == nil {
			return e.nominal
		}
		stats.Failures++
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Transition failed, probing actual location",
			logger.KeyContentHash, string(c.ContentHash),
			logger.KeyOperation, string(e.action),
			logger.KeyError, err.Error(),
		)
	}

	settle, cancel := settleContext(ctx)
	defer cancel()
	loc, err := e.deps.Adapter.ProbeLocation(settle, c.ContentHash)
	if err != nil {
		logger.WarnCtx(ctx, "Location probe failed",
			logger.KeyContentHash, string(c.ContentHash),
			logger.KeyError, err.Error(),
		)
		return location.LocationError
	}
	return loc
}
