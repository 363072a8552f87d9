package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

// maxLogLine bounds a single scanned log line.
const maxLogLine = 1024 * 1024

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail the tierkeeper log file",
	Long: `Display and optionally follow the log file written by tierkeeper.

The file is the one configured in logging.output. When tierkeeper logs to
stdout or stderr there is no file to read and the command fails.

Examples:
  # Show the last 100 lines (default)
  tierkeeper logs

  # Show the last 20 lines, then follow new entries
  tierkeeper logs -n 20 -f

  # Entries of the last hour
  tierkeeper logs --since 1h

  # Entries since a point in time
  tierkeeper logs --since 2026-03-01T10:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since a timestamp (RFC3339) or a duration ago (e.g. 2h)")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	logFile := cfg.Logging.Output
	if logFile == "stdout" || logFile == "stderr" {
		return fmt.Errorf("tierkeeper is configured to log to %s, not a file\nSet logging.output to a file path to use this command", logFile)
	}
	if _, err := os.Stat(logFile); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("log file not found: %s\ntierkeeper may not have run yet", logFile)
	}
	if logsLines < 0 {
		return fmt.Errorf("--lines must not be negative, got %d", logsLines)
	}

	since, err := parseSince(logsSince, time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !logsFollow {
		return showLogs(out, logFile, logsLines, since)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)...\n", logFile)
	return followLogs(ctx, out, logFile, logsLines, since)
}

// parseSince accepts an RFC3339 timestamp or a duration before now.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: use RFC3339 or a positive duration", value)
	}
	return now.Add(-d), nil
}

// showLogs writes the last lines entries of logFile at or after since.
// Lines without a recognizable timestamp are always kept.
func showLogs(w io.Writer, logFile string, lines int, since time.Time) error {
	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Ring of the last `lines` matching entries.
	tail := make([]string, 0, lines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		line := scanner.Text()
		if !since.IsZero() {
			if ts := extractTimestamp(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		if lines == 0 {
			continue
		}
		if len(tail) == lines {
			copy(tail, tail[1:])
			tail = tail[:lines-1]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	for _, line := range tail {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// followLogs shows the tail of logFile, then streams appended lines until ctx
// is done. A truncated file is read again from the start.
func followLogs(ctx context.Context, w io.Writer, logFile string, lines int, since time.Time) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(logFile); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}
	if err := showLogs(w, logFile, lines, since); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	var partial string
	drain := func() error {
		if info, err := file.Stat(); err == nil && info.Size() < offset {
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind truncated log file: %w", err)
			}
			offset, partial = 0, ""
			reader.Reset(file)
		}
		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				partial += chunk
				return nil
			}
			if _, err := io.WriteString(w, partial+chunk); err != nil {
				return err
			}
			partial = ""
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// consoleTimeLayout is the timestamp prefix of the text log format.
const consoleTimeLayout = "2006-01-02T15:04:05.000"

// extractTimestamp reads the time of a text or JSON log line, or returns the
// zero time.
func extractTimestamp(line string) time.Time {
	if len(line) >= len(consoleTimeLayout) {
		if t, err := time.ParseInLocation(consoleTimeLayout, line[:len(consoleTimeLayout)], time.Local); err == nil {
			return t
		}
	}

	const timeKey = `"time":"`
	idx := strings.Index(line, timeKey)
	if idx < 0 {
		return time.Time{}
	}
	rest := line[idx+len(timeKey):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, rest[:end])
	if err != nil {
		return time.Time{}
	}
	return t
}
