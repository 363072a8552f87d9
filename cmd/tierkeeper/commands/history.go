package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/bytesize"
	"github.com/marmos91/tierkeeper/internal/cli/output"
	"github.com/marmos91/tierkeeper/internal/cli/prompt"
	"github.com/marmos91/tierkeeper/pkg/config"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
)

var (
	historyOutput      string
	historyManipulator string
	historyLimit       int
	historySince       time.Duration

	pruneOlderThan time.Duration
	pruneForce     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past manipulator runs",
	Long: `List the runs recorded in the run history, most recent first.

Examples:
  # Last 50 runs
  tierkeeper history

  # Puller runs of the last day
  tierkeeper history --manipulator puller --since 24h

  # Details of one run
  tierkeeper history show 0f1e2d3c-...

  # Drop runs older than 30 days
  tierkeeper history prune --older-than 720h`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyOutput, "output", "o", "table", "Output format (table|json|yaml)")
	historyCmd.Flags().StringVarP(&historyManipulator, "manipulator", "m", "", "Only runs of this manipulator (deleter|puller|recoverer)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of runs")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only runs started within this duration")

	historyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Delete runs started before now minus this duration")
	historyPruneCmd.Flags().BoolVarP(&pruneForce, "force", "f", false, "Skip confirmation prompt")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

// openHistory loads the configuration and opens the run history.
func openHistory() (*history.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, errors.New("run history is disabled (history.enabled: false)")
	}
	store, err := config.CreateHistory(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	opts := history.ListOptions{Limit: historyLimit}
	if historyManipulator != "" {
		action, err := manipulator.ParseKind(historyManipulator)
		if err != nil {
			return err
		}
		opts.Manipulator = action.Kind()
	}
	if historySince > 0 {
		opts.Since = time.Now().Add(-historySince)
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(context.Background(), opts)
	if err != nil {
		return err
	}

	p := output.NewPrinter(cmd.OutOrStdout(), format, false)
	if len(runs) == 0 && format == output.FormatTable {
		p.Printf("No runs recorded.\n")
		return nil
	}
	return p.Print(output.RunsView(runs))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(run)
	}

	pairs := [][2]string{
		{"Run ID", run.RunID},
		{"Manipulator", run.Manipulator},
		{"Status", run.Status()},
		{"Started", output.FormatTime(run.StartedAt)},
		{"Deadline", output.FormatTime(run.Deadline)},
		{"Duration", output.FormatDuration(time.Duration(run.DurationMs) * time.Millisecond)},
		{"Candidates", strconv.Itoa(run.Candidates)},
		{"Processed", strconv.Itoa(run.Processed)},
		{"Total size", bytesize.Format(run.TotalBytes)},
		{"Failures", strconv.Itoa(run.Failures)},
		{"Unresolved", strconv.Itoa(run.Unresolved)},
		{"Conflicts", strconv.Itoa(run.Conflicts)},
		{"To LOCAL", strconv.Itoa(run.ToLocal)},
		{"To DUPLICATED", strconv.Itoa(run.ToDuplicated)},
		{"To REMOTE", strconv.Itoa(run.ToRemote)},
		{"To ERROR", strconv.Itoa(run.ToError)},
	}
	if run.Error != "" {
		pairs = append(pairs, [2]string{"Error", run.Error})
	}
	return output.PrintKeyValues(cmd.OutOrStdout(), pairs)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if pruneOlderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	cutoff := time.Now().Add(-pruneOlderThan)

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete runs started before %s", output.FormatTime(cutoff)), pruneForce)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.Prune(context.Background(), cutoff)
	if err != nil {
		return err
	}
	output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, true).Success(fmt.Sprintf("Deleted %d runs", n))
	return nil
}
