// Package cli holds the autoshout command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

// NewRootCmd returns the root command. Without a subcommand it behaves like serve.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "autoshout",
		Short:         "Post a message to tracker shoutboxes on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file, .json or .yaml (default ./config.yaml, then ./config.json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatsCmd())
	return rootCmd
}

// configPath resolves --config, preferring an existing default file.
func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	for _, p := range []string{"./config.yaml", "./config.yml", "./config.json"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "./config.yaml"
}
