package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/internal/cli/prompt"
	"github.com/marmos91/tierkeeper/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample tierkeeper configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tierkeeper/config.yaml.
Use --config to specify a custom path. An existing file is replaced only after
confirmation, or with --force.

Examples:
  # Initialize with default location
  tierkeeper init

  # Initialize with custom path
  tierkeeper init --config /etc/tierkeeper/config.yaml

  # Force overwrite existing config
  tierkeeper init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		ok, err := prompt.Confirm(fmt.Sprintf("Overwrite %s", configPath), false)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Point storage.local.path at the directory holding your content")
	_, _ = fmt.Fprintln(out, "  2. Configure the remote tier (storage.remote)")
	_, _ = fmt.Fprintln(out, "  3. Check the result with: tierkeeper config validate")
	_, _ = fmt.Fprintf(out, "  4. Start the daemon with: tierkeeper serve --config %s\n", configPath)
	return nil
}
