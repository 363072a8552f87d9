package manipulator

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/location"
)

// DeleterConfig configures local copy reclamation.
type DeleterConfig struct {
	// ConsistencyDelay is the minimum time an object must have been
	// DUPLICATED before its local copy may be deleted.
	ConsistencyDelay time.Duration

	// DeleteLocal enables local deletion. When false the deleter selects
	// nothing and writes nothing.
	DeleteLocal bool
}

// Deleter removes local copies of objects duplicated to the remote tier,
// moving them from DUPLICATED to REMOTE.
type Deleter struct {
	cfg  DeleterConfig
	deps Deps
	exec *executor
}

var _ Manipulator = (*Deleter)(nil)

// NewDeleter creates a Deleter.
func NewDeleter(cfg DeleterConfig, deps Deps) (*Deleter, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("deleter: %w", err)
	}
	if cfg.ConsistencyDelay < 0 {
		return nil, fmt.Errorf("deleter: negative consistency delay %s", cfg.ConsistencyDelay)
	}
	deps = deps.withDefaults()

	return &Deleter{
		cfg:  cfg,
		deps: deps,
		exec: &executor{
			deps:       deps,
			action:     ActionDelete,
			from:       location.LocationDuplicated,
			nominal:    location.LocationRemote,
			transition: deps.Adapter.DeleteLocal,
		},
	}, nil
}

func (d *Deleter) Action() Action { return ActionDelete }

// GetCandidates returns DUPLICATED objects older than the consistency delay.
// When local deletion is disabled the store is not queried and an empty
// result is reported.
func (d *Deleter) GetCandidates(ctx context.Context) ([]location.Candidate, error) {
	if !d.cfg.DeleteLocal {
		logger.InfoCtx(ctx, "Delete local disabled, skipping candidate query")
		d.deps.Reporter.StartTiming()
		d.deps.Reporter.EndTiming()
		d.deps.Reporter.RecordQueryResult(0)
		return []location.Candidate{}, nil
	}
	q := DeleteQuery(d.deps.Clock.Now(), d.cfg.ConsistencyDelay)
	return selectCandidates(ctx, d.deps.Store, d.deps.Reporter, ActionDelete, q)
}

// Execute deletes local copies until deadline.
func (d *Deleter) Execute(ctx context.Context, candidates []location.Candidate, deadline time.Time) (RunStats, error) {
	if !d.cfg.DeleteLocal {
		d.deps.Reporter.FlushSummary()
		return RunStats{}, nil
	}
	return d.exec.run(ctx, candidates, deadline)
}
