package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"rankbacktester/internal/config"
	"rankbacktester/internal/engine"
	"rankbacktester/internal/id"
	"rankbacktester/internal/journal"
	"rankbacktester/internal/logging"
	"rankbacktester/internal/repository"
	"rankbacktester/strategies"
	"rankbacktester/types"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest",
	Long: `Load market data and predictions, replay every trading day and print the report.

Orders decided on a day's close execute at the next day's open. Orders decided on the
last day are printed as the next session's orders.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runStrategy string
	runSeed     uint64
	runExport   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "strategy kind (rank, stop, screen, random); overrides the config")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "seed for the random strategy; overrides the config")
	runCmd.Flags().StringVar(&runExport, "export", "", "directory to write equity.csv and fills.csv to")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if runStrategy != "" {
		if err := cfg.UseStrategy(runStrategy); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Strategy.Seed = runSeed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := runBacktest(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if runExport != "" {
		return exportResult(runExport, res)
	}
	return nil
}

// runBacktest wires data, strategy, journal and engine for one run and prints the report to out.
func runBacktest(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*engine.Result, error) {
	market, err := loadMarket(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("load market data: %w", err)
	}

	stratCfg, err := cfg.StrategyConfig()
	if err != nil {
		return nil, err
	}
	strat, err := strategies.New(stratCfg)
	if err != nil {
		return nil, err
	}

	pc := engine.NewPortfolioConfig(cfg.InitialCash(), cfg.FeeSchedule())
	if cfg.WarmStart.PositionsFile != "" {
		positions, err := journal.LoadPositionsFile(cfg.WarmStart.PositionsFile)
		if err != nil {
			return nil, fmt.Errorf("warm start: %w", err)
		}
		logger.Info("warm start", "file", cfg.WarmStart.PositionsFile, "positions", len(positions))
		pc.WithPositions(positions)
	}

	start, end, err := cfg.Period()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	info := journal.RunInfo{
		ID:          id.NewRunID(now),
		Name:        cfg.Run.Name,
		Strategy:    stratCfg.Kind().String(),
		Created:     now,
		InitialCash: cfg.InitialCash(),
	}
	j, err := openJournal(cfg.Journal, info)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			logger.Error("close journal", "err", err)
		}
	}()

	eng, err := engine.NewEngine(
		engine.NewRunConfig(cfg.Run.Name, start, end, cfg.Run.CandidatePool, cfg.Run.Progress),
		pc,
		engine.NewReportingConfig(cfg.RiskFreeRate()),
		market,
		strat,
		j,
		logger.With("run_id", info.ID),
	)
	if err != nil {
		return nil, err
	}

	res, err := eng.Run()
	if err != nil {
		return nil, err
	}

	perf := res.Report.Performance
	err = j.RecordSummary(journal.Summary{
		FinalEquity:      perf.FinalEquity,
		TotalReturn:      perf.TotalReturn,
		AnnualizedReturn: perf.AnnualizedReturn,
		MaxDrawdown:      perf.Drawdown.MaxDrawdown,
		Trades:           res.Report.TotalTrades,
	})
	if err != nil {
		logger.Error("journal summary", "err", err)
	}

	res.Report.Print(out)
	printNextOrders(out, res.NextOrders, market)
	return res, nil
}

func loadMarket(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repository.MarketData, error) {
	if cfg.Data.Source == config.SourcePostgres {
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		start, end, err := cfg.Period()
		if err != nil {
			return nil, err
		}
		return db.LoadMarketData(ctx, start, end, logger)
	}
	return repository.LoadFiles(ctx, repository.FileSources{
		BarsFile:        cfg.Data.BarsFile,
		PredictionsFile: cfg.Data.PredictionsFile,
		NamesFile:       cfg.Data.NamesFile,
	}, logger)
}

func openJournal(cfg config.JournalConfig, info journal.RunInfo) (journal.Journal, error) {
	switch cfg.Type {
	case config.JournalCSV:
		return journal.NewCSV(cfg.Dir)
	case config.JournalSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return journal.NewSQLite(cfg.DBPath, info)
	}
	return journal.Nop{}, nil
}

func printNextOrders(w io.Writer, orders []types.Order, market *repository.MarketData) {
	if len(orders) == 0 {
		return
	}
	fmt.Fprintln(w, "\n-- Orders for next open --")
	for _, o := range orders {
		fmt.Fprintf(w, "%-4s %s %-10s %8d  %s\n", o.Side(), o.Code, market.Name(o.Code), abs(o.Quantity), o.Reason)
	}
}

func exportResult(dir string, res *engine.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := engine.WriteEquityCSVFile(filepath.Join(dir, "equity.csv"), res.Curve); err != nil {
		return fmt.Errorf("export equity: %w", err)
	}
	if err := engine.WriteFillsCSVFile(filepath.Join(dir, "fills.csv"), res.Fills); err != nil {
		return fmt.Errorf("export fills: %w", err)
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
