package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the tierkeeper configuration file.

Checks for syntax errors, missing required fields and invalid values, then
prints a summary and warnings for settings that are valid but likely
unintended.

Examples:
  tierkeeper config validate
  tierkeeper config validate --config /etc/tierkeeper/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

// Warnings lists valid settings that are likely unintended.
func Warnings(cfg *config.Config) []string {
	var warnings []string

	m := cfg.Manipulators
	if !m.Deleter.Enabled && !m.Puller.Enabled && !m.Recoverer.Enabled {
		warnings = append(warnings, "No manipulator enabled - 'tierkeeper serve' will refuse to start")
	}
	if m.Deleter.Enabled && !m.Deleter.DeleteLocal {
		warnings = append(warnings, "Deleter enabled with delete_local: false - local copies are kept, only records change")
	}
	if cfg.Storage.Remote.Type == "local" {
		warnings = append(warnings, "Remote tier is a local directory - use type s3 for object storage")
	}
	if cfg.Storage.VerifyDigest == "none" {
		warnings = append(warnings, "Digest verification disabled - pulled content is not checked")
	}
	if cfg.LocationStore.Type == "memory" {
		warnings = append(warnings, "Memory location store - records are lost on exit")
	}
	return warnings
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := Warnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Location store:  %s\n", cfg.LocationStore.Type)
	_, _ = fmt.Fprintf(out, "  Local tier:      %s\n", cfg.Storage.Local.Path)
	_, _ = fmt.Fprintf(out, "  Remote tier:     %s\n", cfg.Storage.Remote.Type)
	_, _ = fmt.Fprintf(out, "  Verify digest:   %s\n", cfg.Storage.VerifyDigest)
	_, _ = fmt.Fprintf(out, "  Max run:         %s\n", cfg.Manipulators.MaxRunDuration)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
