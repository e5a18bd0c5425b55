package cmd

import (
	"fmt"

	"rankbacktester/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configuration file loads",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "backtest.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintf(out, "Edit the data section and run with:\n  backtester run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configPath)
	fmt.Fprintf(out, "  Run:      %s (cash %.2f)\n", cfg.Run.Name, cfg.Run.InitialCash)
	fmt.Fprintf(out, "  Data:     %s\n", cfg.Data.Source)
	fmt.Fprintf(out, "  Strategy: %s %v\n", cfg.Strategy.Kind, cfg.Strategy.Params)
	fmt.Fprintf(out, "  Journal:  %s\n", cfg.Journal.Type)
	return nil
}
