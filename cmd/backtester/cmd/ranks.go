package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"rankbacktester/internal/config"
	"rankbacktester/internal/logging"
	"rankbacktester/internal/repository"
	"rankbacktester/types"

	"github.com/spf13/cobra"
)

var ranksCmd = &cobra.Command{
	Use:   "ranks",
	Short: "Show the top ranked stocks of a day",
	Long: `Print the k best ranked codes of a trading day with their names, prices and a
marker for special-treatment (ST) stocks.

Example:
  backtester ranks -c backtest.yaml --day 20240102 -k 20`,
	Args: cobra.NoArgs,
	RunE: runRanks,
}

var (
	ranksDay string
	ranksTop int
)

func init() {
	rootCmd.AddCommand(ranksCmd)

	ranksCmd.Flags().StringVar(&ranksDay, "day", "", "trading day as YYYYMMDD (required)")
	ranksCmd.Flags().IntVarP(&ranksTop, "top", "k", 20, "number of ranks to show")
	ranksCmd.MarkFlagRequired("day")
}

func runRanks(cmd *cobra.Command, args []string) error {
	day, err := types.ParseDay(ranksDay)
	if err != nil {
		return fmt.Errorf("--day: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	market, err := loadMarket(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	return printRanks(cmd.OutOrStdout(), market, day, ranksTop)
}

func printRanks(w io.Writer, market *repository.MarketData, day time.Time, k int) error {
	codes := market.TopRanked(day, k)
	if len(codes) == 0 {
		return fmt.Errorf("%w on %s", repository.ErrUnranked, types.FormatDay(day))
	}

	fmt.Fprintf(w, "Top %d on %s\n", len(codes), day.Format("2006-01-02"))
	fmt.Fprintf(w, "%4s  %-6s  %-12s  %10s  %10s  %s\n", "rank", "code", "name", "open", "close", "flag")
	for rank, code := range codes {
		open, _ := market.Open(code, day)
		closePrice, _ := market.Close(code, day)
		flag := ""
		if market.IsSpecialTreatment(code) {
			flag = "ST"
		}
		fmt.Fprintf(w, "%4d  %-6s  %-12s  %10s  %10s  %s\n",
			rank, code, market.Name(code), open.StringFixed(2), closePrice.StringFixed(2), flag)
	}
	return nil
}
