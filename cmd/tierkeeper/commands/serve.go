package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/metrics"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
	"github.com/marmos91/tierkeeper/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manipulators on a schedule",
	Long: `Run every enabled manipulator at its configured interval until interrupted.

Runs never overlap. All manipulators run once at startup, then each one again
after its interval. The daemon serves /healthz, /status and /metrics on
metrics.port.

On SIGINT or SIGTERM the run in progress stops before its next candidate and
the daemon waits up to shutdown_timeout for it.

Examples:
  # Start with the default config
  tierkeeper serve

  # Start with environment variable overrides
  TIERKEEPER_LOGGING_LEVEL=DEBUG tierkeeper serve --config /etc/tierkeeper/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	// The registry must exist before the collectors are created.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	s, err := openStack(ctx, cfg, stackOptions{tiers: true, history: true})
	if err != nil {
		return err
	}
	defer s.Close()

	schedules := cfg.Manipulators.EnabledSchedules()
	if len(schedules) == 0 {
		return errors.New("no manipulator is enabled in the configuration")
	}

	jobs := make([]scheduler.Job, 0, len(schedules))
	for _, sc := range schedules {
		m, err := s.manipulator(sc.Action)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", sc.Action.Kind(), err)
		}
		jobs = append(jobs, scheduler.Job{Manipulator: m, Interval: sc.Interval})
		logger.Info("Manipulator scheduled", logger.KeyManipulator, sc.Action.Kind(), "interval", sc.Interval)
	}

	schedCfg := scheduler.Config{
		Store:          s.store,
		MaxRunDuration: cfg.Manipulators.MaxRunDuration,
		Metrics:        s.manipulatorMetrics,
	}
	if s.locationMetrics != nil {
		schedCfg.Locations = s.locationMetrics
	}
	srvDeps := server.Deps{Store: s.store, Tiers: s.adapter}
	if s.history != nil {
		schedCfg.History = s.history
		srvDeps.History = s.history
	}

	sched, err := scheduler.New(schedCfg, jobs...)
	if err != nil {
		return err
	}
	srvDeps.Scheduler = sched

	srv, err := server.New(server.Config{Port: cfg.Metrics.Port}, srvDeps)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sched.Start(ctx)
	logger.Info("Daemon is running. Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		serveErr = <-serverDone
	case serveErr = <-serverDone:
		logger.Error("HTTP server stopped unexpectedly", logger.KeyError, fmt.Sprint(serveErr))
	}

	sched.Stop(cfg.ShutdownTimeout)
	logger.Info("Daemon stopped")
	return serveErr
}

// getConfigSource describes where the configuration was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return config.GetDefaultConfigPath()
}
