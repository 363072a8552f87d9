// Package commands implements the tierkeeper CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/tierkeeper/cmd/tierkeeper/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "tierkeeper",
	Short: "tierkeeper - keep file content in the right storage tier",
	Long: `tierkeeper moves file content between a local filesystem tier and a
remote object store tier, and keeps a per-object location record
(LOCAL, DUPLICATED, REMOTE or ERROR) consistent with where the bytes are.

Three time-boxed manipulators do the work:
  deleter    drops local copies of objects already duplicated remotely
  puller     brings small remote-only objects back to local storage
  recoverer  probes both tiers to repair records in the ERROR state

Use "tierkeeper [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/tierkeeper/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
