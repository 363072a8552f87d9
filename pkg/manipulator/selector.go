package manipulator

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/location"
)

// DeleteQuery selects DUPLICATED objects that have been duplicated for at
// least delay at now.
func DeleteQuery(now time.Time, delay time.Duration) location.CandidateQuery {
	before := now.Add(-delay)
	return location.CandidateQuery{
		Location:         location.LocationDuplicated,
		DuplicatedBefore: &before,
	}
}

// PullQuery selects REMOTE objects no larger than threshold bytes.
func PullQuery(threshold int64) location.CandidateQuery {
	return location.CandidateQuery{
		Location:    location.LocationRemote,
		MaxFileSize: &threshold,
	}
}

// RecoverQuery selects every object in ERROR.
func RecoverQuery() location.CandidateQuery {
	return location.CandidateQuery{Location: location.LocationError}
}

// selectCandidates runs a single read-only query and reports its timing and
// result count.
func selectCandidates(ctx context.Context, store location.Store, reporter Reporter, action Action, q location.CandidateQuery) ([]location.Candidate, error) {
	ctx, span := telemetry.StartLocationStoreSpan(ctx, "find_candidates",
		telemetry.Action(string(action)),
		telemetry.Location(q.Location.String()),
	)
	defer span.End()

	start := time.Now()
	reporter.StartTiming()
	candidates, err := store.FindCandidates(ctx, q)
	reporter.EndTiming()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("find %s candidates: %w", action, err)
	}
	if candidates == nil {
		candidates = []location.Candidate{}
	}

	reporter.RecordQueryResult(len(candidates))
	span.SetAttributes(telemetry.Candidates(len(candidates)))
	logger.DebugCtx(ctx, "Candidate query finished",
		logger.KeyCandidates, len(candidates),
		logger.KeyLocation, q.Location.String(),
		logger.KeyDurationMs, logger.Duration(start),
	)

	return candidates, nil
}
