package config

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/location/badger"
	locationmemory "github.com/marmos91/tierkeeper/pkg/location/memory"
	"github.com/marmos91/tierkeeper/pkg/location/postgres"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/tier"
	tierlocal "github.com/marmos91/tierkeeper/pkg/tier/local"
	tiers3 "github.com/marmos91/tierkeeper/pkg/tier/s3"
)

// CreateLocationStore opens the configured location store.
func CreateLocationStore(ctx context.Context, cfg LocationStoreConfig) (location.Store, error) {
	switch cfg.Type {
	case "memory":
		return locationmemory.New(), nil
	case "badger", "":
		store, err := badger.New(ctx, cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger location store: %w", err)
		}
		return store, nil
	case "postgres":
		pgCfg := cfg.Postgres
		pgCfg.ApplyDefaults()
		store, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres location store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown location store type: %q", cfg.Type)
	}
}

// CreateRemoteTier creates the remote tier.
func CreateRemoteTier(ctx context.Context, cfg RemoteConfig) (tier.Tier, error) {
	switch cfg.Type {
	case "s3":
		store, err := tiers3.NewFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 tier: %w", err)
		}
		return store, nil
	case "local":
		store, err := tierlocal.New(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote directory tier: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown remote tier type: %q", cfg.Type)
	}
}

// CreateAdapter creates both tiers and the adapter moving objects between
// them. metrics may be nil.
func CreateAdapter(ctx context.Context, cfg StorageConfig, metrics tier.Metrics) (*tier.Tiered, error) {
	digest, err := tier.ParseDigestAlgorithm(cfg.VerifyDigest)
	if err != nil {
		return nil, err
	}

	local, err := tierlocal.New(cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to create local tier: %w", err)
	}

	remote, err := CreateRemoteTier(ctx, cfg.Remote)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	return tier.New(local, remote, tier.Options{
		Digest:  digest,
		Metrics: metrics,
	}), nil
}

// CreateHistory opens the run history database. It returns nil, nil when
// history is disabled.
func CreateHistory(cfg history.Config) (*history.GORMStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return history.New(&cfg)
}

// CreateManipulator builds the manipulator performing action.
func CreateManipulator(action manipulator.Action, cfg ManipulatorsConfig, deps manipulator.Deps) (manipulator.Manipulator, error) {
	var (
		m   manipulator.Manipulator
		err error
	)
	switch action {
	case manipulator.ActionDelete:
		m, err = manipulator.NewDeleter(manipulator.DeleterConfig{
			ConsistencyDelay: cfg.Deleter.ConsistencyDelay,
			DeleteLocal:      cfg.Deleter.DeleteLocal,
		}, deps)
	case manipulator.ActionPull:
		m, err = manipulator.NewPuller(manipulator.PullerConfig{
			SizeThreshold: cfg.Puller.SizeThreshold,
		}, deps)
	case manipulator.ActionRecover:
		m, err = manipulator.NewRecoverer(deps)
	default:
		return nil, fmt.Errorf("unknown manipulator action: %q", action)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Schedule is one manipulator and its run interval.
type Schedule struct {
	Action   manipulator.Action
	Interval time.Duration
}

// EnabledSchedules lists the enabled manipulators in manipulator.Actions
// order: recoverer, deleter, puller.
func (c ManipulatorsConfig) EnabledSchedules() []Schedule {
	var out []Schedule
	for _, action := range manipulator.Actions() {
		var (
			enabled  bool
			interval time.Duration
		)
		switch action {
		case manipulator.ActionRecover:
			enabled, interval = c.Recoverer.Enabled, c.Recoverer.Interval
		case manipulator.ActionDelete:
			enabled, interval = c.Deleter.Enabled, c.Deleter.Interval
		case manipulator.ActionPull:
			enabled, interval = c.Puller.Enabled, c.Puller.Interval
		}
		if enabled {
			out = append(out, Schedule{Action: action, Interval: interval})
		}
	}
	return out
}
