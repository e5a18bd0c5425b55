package cmd

import (
	"context"
	"fmt"
	"io"

	"rankbacktester/internal/journal"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the runs stored in a SQLite journal",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var runsDBPath string

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVarP(&runsDBPath, "db", "d", "./out/runs.db", "path to the SQLite journal")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	db, err := journal.OpenSQLite(ctx, runsDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	runs, err := journal.ListRuns(ctx, db)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []journal.RunRow) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	fmt.Fprintf(w, "%-26s  %-16s  %-8s  %-16s  %12s  %9s  %9s  %6s\n",
		"id", "name", "strategy", "created", "final", "return", "max dd", "trades")
	for _, r := range runs {
		final, ret, dd := "-", "-", "-"
		if r.Finished {
			final = r.Summary.FinalEquity.StringFixed(2)
			ret = r.Summary.TotalReturn.Shift(2).StringFixed(2) + "%"
			dd = r.Summary.MaxDrawdown.Shift(2).StringFixed(2) + "%"
		}
		fmt.Fprintf(w, "%-26s  %-16s  %-8s  %-16s  %12s  %9s  %9s  %6d\n",
			r.ID, r.Name, r.Strategy, r.Created.Format("2006-01-02 15:04"), final, ret, dd, r.Summary.Trades)
	}
}
