package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/cli/output"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show objects per location and the last runs",
	Long: `Show the number and total size of objects in each location, read from
the location store, followed by the last run of every manipulator when run
history is enabled.

Examples:
  tierkeeper status
  tierkeeper status --output json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type statusReport struct {
	Locations output.LocationsView `json:"locations" yaml:"locations"`
	LastRuns  output.RunsView      `json:"last_runs,omitempty" yaml:"last_runs,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
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

	ctx := context.Background()
	s, err := openStack(ctx, cfg, stackOptions{history: true})
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.store.CountByLocation(ctx)
	if err != nil {
		return fmt.Errorf("failed to count objects: %w", err)
	}

	report := statusReport{Locations: output.LocationsView(counts)}
	if s.history != nil {
		for _, action := range manipulator.Actions() {
			run, err := s.history.Last(ctx, action.Kind())
			if errors.Is(err, history.ErrRunNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			report.LastRuns = append(report.LastRuns, run)
		}
	}

	p := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if format != output.FormatTable {
		return p.Print(report)
	}

	if err := p.Print(report.Locations); err != nil {
		return err
	}
	if len(report.LastRuns) > 0 {
		p.Printf("\nLast runs:\n")
		return p.Print(report.LastRuns)
	}
	return nil
}
