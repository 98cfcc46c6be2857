// Package cli wires the statwatch commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "statwatch",
	Short:        "Live host metrics service",
	Long:         "statwatch polls host statistics, derives network and disk I/O rates and serves cached snapshots to dashboards.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML); STATWATCH_* environment variables override it")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
