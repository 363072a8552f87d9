package manipulator

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/pkg/location"
)

// PullerConfig configures restoring local copies.
type PullerConfig struct {
	// SizeThreshold is the largest object pulled back to the local tier.
	SizeThreshold bytesize.ByteSize
}

// Puller copies small remote-only objects back to the local tier, moving
// them from REMOTE to DUPLICATED.
type Puller struct {
	cfg  PullerConfig
	deps Deps
	exec *executor
}

var _ Manipulator = (*Puller)(nil)

// NewPuller creates a Puller.
func NewPuller(cfg PullerConfig, deps Deps) (*Puller, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("puller: %w", err)
	}
	if cfg.SizeThreshold.Int64() < 0 {
		return nil, fmt.Errorf("puller: size threshold %d overflows", uint64(cfg.SizeThreshold))
	}
	deps = deps.withDefaults()

	return &Puller{
		cfg:  cfg,
		deps: deps,
		exec: &executor{
			deps:       deps,
			action:     ActionPull,
			from:       location.LocationRemote,
			nominal:    location.LocationDuplicated,
			transition: deps.Adapter.CopyRemoteToLocal,
		},
	}, nil
}

func (p *Puller) Action() Action { return ActionPull }

// GetCandidates returns REMOTE objects no larger than the size threshold.
func (p *Puller) GetCandidates(ctx context.Context) ([]location.Candidate, error) {
	return selectCandidates(ctx, p.deps.Store, p.deps.Reporter, ActionPull, PullQuery(p.cfg.SizeThreshold.Int64()))
}

// Execute pulls remote copies until deadline.
func (p *Puller) Execute(ctx context.Context, candidates []location.Candidate, deadline time.Time) (RunStats, error) {
	return p.exec.run(ctx, candidates, deadline)
}
