// Package manipulator implements the time-boxed batch jobs that move objects
// between the local and remote tiers and keep their location records
// consistent.
//
// Each manipulator selects candidates with one read-only query against the
// location store, then processes them sequentially until the run deadline.
// Transition outcomes reported by the storage adapter are advisory: a failed
// transition is reconciled by probing the actual location, and the result is
// written back with a compare-and-set update.
package manipulator

import (
	"context"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// Manipulator binds a candidate selection policy to a tier transition.
//
// Execute never fails because of a single candidate: adapter failures are
// recorded as locations. It returns an error only when the location store
// cannot be updated.
type Manipulator interface {
	Action() Action
	GetCandidates(ctx context.Context) ([]location.Candidate, error)
	Execute(ctx context.Context, candidates []location.Candidate, deadline time.Time) (RunStats, error)
}
