package manipulator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/internal/telemetry"
)

// DefaultMaxRunDuration bounds a run when RunOptions leaves it unset.
const DefaultMaxRunDuration = 5 * time.Minute

// RunOptions configures one invocation of Run.
type RunOptions struct {
	// MaxRunDuration is the run's wall-clock budget, candidate query
	// included.
	MaxRunDuration time.Duration

	// Clock defaults to SystemClock. It should be the manipulator's clock.
	Clock Clock

	// Metrics is optional.
	Metrics Metrics
}

// RunResult describes a finished run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Action     Action    `json:"action"`
	StartedAt  time.Time `json:"started_at"`
	Deadline   time.Time `json:"deadline"`
	Candidates int       `json:"candidates"`
	Stats      RunStats  `json:"stats"`
}

// Run performs one time-boxed run of m: the deadline is fixed before the
// candidate query, then the candidates are executed against it.
//
// The returned error is non-nil only when the location store failed; the
// result then carries what was done before the failure.
func Run(ctx context.Context, m Manipulator, opts RunOptions) (RunResult, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.MaxRunDuration <= 0 {
		opts.MaxRunDuration = DefaultMaxRunDuration
	}

	action := m.Action()
	result := RunResult{
		RunID:     uuid.NewString(),
		Action:    action,
		StartedAt: opts.Clock.Now(),
	}
	result.Deadline = result.StartedAt.Add(opts.MaxRunDuration)

	ctx, span := telemetry.StartRunSpan(ctx, action.Kind(), result.RunID)
	defer span.End()

	lc := logger.NewRunContext(result.RunID, action.Kind()).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	logger.DebugCtx(ctx, "Run started", logger.KeyDeadline, result.Deadline.Format(time.RFC3339))

	err := run(ctx, m, &result)

	span.SetAttributes(
		telemetry.Candidates(result.Candidates),
		telemetry.Processed(result.Stats.Processed),
		telemetry.TotalBytes(result.Stats.TotalBytes),
		telemetry.Conflicts(result.Stats.Conflicts),
		telemetry.DeadlineReached(result.Stats.DeadlineReached),
	)
	if opts.Metrics != nil {
		opts.Metrics.ObserveRun(action, result.Candidates, result.Stats, err)
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Run aborted",
			logger.KeyProcessed, result.Stats.Processed,
			logger.KeyError, err.Error(),
		)
		return result, err
	}

	logger.InfoCtx(ctx, "Run finished",
		logger.KeyCandidates, result.Candidates,
		logger.KeyProcessed, result.Stats.Processed,
		logger.KeyTotalBytes, bytesize.Format(result.Stats.TotalBytes),
		logger.KeyFailures, result.Stats.Failures,
		logger.KeyConflicts, result.Stats.Conflicts,
		logger.KeyDurationMs, lc.DurationMs(),
	)
	return result, nil
}

func run(ctx context.Context, m Manipulator, result *RunResult) error {
	candidates, err := m.GetCandidates(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", result.Action.Kind(), err)
	}
	result.Candidates = len(candidates)

	stats, err := m.Execute(ctx, candidates, result.Deadline)
	result.Stats = stats
	if err != nil {
		return fmt.Errorf("%s: %w", result.Action.Kind(), err)
	}
	return nil
}
