package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/cli/output"
	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

var (
	runMaxDuration time.Duration
	runOutput      string
)

var runCmd = &cobra.Command{
	Use:   "run <deleter|puller|recoverer|all>",
	Short: "Run manipulators once",
	Long: `Run one manipulator, or every enabled one, a single time and exit.

Each run selects its candidates from the location store, then works through
them until it is done or its max run duration elapses. Candidates left over
are picked up by the next run.

"all" runs the enabled manipulators in the order recoverer, deleter, puller.

Examples:
  # Drop local copies of duplicated objects
  tierkeeper run deleter

  # Run everything with a one minute budget per manipulator
  tierkeeper run all --max-run-duration 1m

  # Print the results as JSON
  tierkeeper run puller --output json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"deleter", "puller", "recoverer", "all"},
	RunE:      runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runMaxDuration, "max-run-duration", 0, "Wall-clock budget per manipulator (default: manipulators.max_run_duration)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// selectActions resolves the run argument against the configuration.
func selectActions(arg string, cfg config.ManipulatorsConfig) ([]manipulator.Action, error) {
	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		schedules := cfg.EnabledSchedules()
		if len(schedules) == 0 {
			return nil, errors.New("no manipulator is enabled in the configuration")
		}
		actions := make([]manipulator.Action, 0, len(schedules))
		for _, s := range schedules {
			actions = append(actions, s.Action)
		}
		return actions, nil
	}

	action, err := manipulator.ParseKind(arg)
	if err != nil {
		return nil, err
	}
	return []manipulator.Action{action}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(runOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	actions, err := selectActions(args[0], cfg.Manipulators)
	if err != nil {
		return err
	}

	maxRun := cfg.Manipulators.MaxRunDuration
	if runMaxDuration > 0 {
		maxRun = runMaxDuration
	}

	// SIGINT ends the run in progress after its current candidate.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	s, err := openStack(ctx, cfg, stackOptions{tiers: true, history: true})
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		results []manipulator.RunResult
		errs    []error
	)
	for _, action := range actions {
		if ctx.Err() != nil {
			break
		}

		m, err := s.manipulator(action)
		if err != nil {
			return err
		}

		res, runErr := manipulator.Run(ctx, m, manipulator.RunOptions{
			MaxRunDuration: maxRun,
			Metrics:        s.manipulatorMetrics,
		})
		s.record(context.WithoutCancel(ctx), res, runErr)
		results = append(results, res)
		if runErr != nil {
			logger.Error("Run failed", logger.KeyManipulator, action.Kind(), logger.KeyError, runErr.Error())
			errs = append(errs, fmt.Errorf("%s: %w", action.Kind(), runErr))
		}
	}

	if err := output.NewPrinter(cmd.OutOrStdout(), format, false).Print(output.RunResultsView(results)); err != nil {
		return err
	}
	return errors.Join(errs...)
}
