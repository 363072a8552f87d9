package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	promstore "github.com/marmos91/tierkeeper/pkg/metrics/prometheus"
	"github.com/marmos91/tierkeeper/pkg/report"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initTelemetry starts tracing and profiling. The returned function stops both.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(), error) {
	tcfg := cfg.Telemetry
	tcfg.ServiceVersion = Version
	if tcfg.ServiceName == "" {
		tcfg.ServiceName = "tierkeeper"
	}

	traceShutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	pcfg := tcfg.Profiling
	pcfg.ServiceName = tcfg.ServiceName
	pcfg.ServiceVersion = tcfg.ServiceVersion
	profilingShutdown, err := telemetry.InitProfiling(pcfg)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", tcfg.Endpoint, "sample_rate", tcfg.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", pcfg.Endpoint, "profile_types", pcfg.ProfileTypes)
	}

	return func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err.Error())
		}
		// The caller's ctx may already be canceled; flushing spans needs its own.
		if err := traceShutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err.Error())
		}
	}, nil
}

// stack holds the components built from a loaded configuration.
type stack struct {
	cfg *config.Config

	store   location.Store
	adapter *tier.Tiered

	// history is nil when run history is disabled.
	history *history.GORMStore

	manipulatorMetrics manipulator.Metrics
	locationMetrics    *promstore.LocationMetrics
}

type stackOptions struct {
	tiers   bool
	history bool
}

// openStack builds the components a command needs. Prometheus collectors are
// created only when the registry was initialized beforehand.
func openStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	s := &stack{
		cfg:                cfg,
		manipulatorMetrics: promstore.NewManipulatorMetrics(),
		locationMetrics:    promstore.NewLocationMetrics(),
	}

	store, err := config.CreateLocationStore(ctx, cfg.LocationStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open location store: %w", err)
	}
	s.store = store
	logger.Debug("Location store opened", logger.KeyStore, cfg.LocationStore.Type)

	if opts.tiers {
		adapter, err := config.CreateAdapter(ctx, cfg.Storage, promstore.NewTierMetrics())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open storage tiers: %w", err)
		}
		s.adapter = adapter
		logger.Debug("Storage tiers opened",
			"local", adapter.Local().Name(),
			"remote", adapter.Remote().Name(),
		)
	}

	if opts.history {
		hist, err := config.CreateHistory(cfg.History)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		s.history = hist
	}

	return s, nil
}

// manipulator builds the manipulator for action with its own log reporter.
func (s *stack) manipulator(action manipulator.Action) (manipulator.Manipulator, error) {
	if s.adapter == nil {
		return nil, errors.New("storage tiers not opened")
	}
	return config.CreateManipulator(action, s.cfg.Manipulators, manipulator.Deps{
		Store:    s.store,
		Adapter:  s.adapter,
		Reporter: report.NewLogReporter(action),
	})
}

// record persists a run when history is enabled.
func (s *stack) record(ctx context.Context, res manipulator.RunResult, runErr error) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, res, runErr); err != nil {
		logger.Warn("Failed to record run history", logger.KeyRunID, res.RunID, logger.KeyError, err.Error())
	}
}

func (s *stack) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			logger.Warn("Failed to close run history", logger.KeyError, err.Error())
		}
	}
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			logger.Warn("Failed to close storage tiers", logger.KeyError, err.Error())
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Failed to close location store", logger.KeyError, err.Error())
		}
	}
}
