package manipulator

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// Recoverer probes objects in ERROR and records their actual location when
// it can be determined. It never mutates the tiers and never writes ERROR.
type Recoverer struct {
	deps Deps
	exec *executor
}

var _ Manipulator = (*Recoverer)(nil)

// NewRecoverer creates a Recoverer.
func NewRecoverer(deps Deps) (*Recoverer, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("recoverer: %w", err)
	}
	deps = deps.withDefaults()

	return &Recoverer{
		deps: deps,
		exec: &executor{
			deps:   deps,
			action: ActionRecover,
			from:   location.LocationError,
		},
	}, nil
}

func (r *Recoverer) Action() Action { return ActionRecover }

func (r *Recoverer) GetCandidates(ctx context.Context) ([]location.Candidate, error) {
	return selectCandidates(ctx, r.deps.Store, r.deps.Reporter, ActionRecover, RecoverQuery())
}

// Execute probes candidates until deadline. Every probed object counts as
// processed, resolved or not.
func (r *Recoverer) Execute(ctx context.Context, candidates []location.Candidate, deadline time.Time) (RunStats, error) {
	return r.exec.run(ctx, candidates, deadline)
}
