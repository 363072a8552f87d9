package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/cli/output"
	"github.com/marmos91/tierkeeper/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration: the file merged with environment
variables and defaults.

Examples:
  # Show default config as YAML
  tierkeeper config show

  # Show as JSON
  tierkeeper config show --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
