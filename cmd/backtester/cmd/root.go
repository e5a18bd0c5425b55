// Package cmd wires the backtester CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Daily rank driven portfolio backtester",
	Long: `Backtester replays a universe of stocks day by day, ranks them by a model's
predictions and trades a long-only portfolio at the next day's open.

Examples:
  backtester config init -o backtest.yaml
  backtester run -c backtest.yaml --strategy stop
  backtester ranks -c backtest.yaml --day 20240102 -k 20
  backtester runs --db out/runs.db`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "backtest.yaml", "path to the YAML config file")
}
