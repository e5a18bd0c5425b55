package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var ErrMissingDependency = errors.New("missing engine dependency")

type Engine struct {
	runConfig       *RunConfig
	portfolioConfig *PortfolioConfig
	reportingConfig *ReportingConfig
	market          marketData
	strategy        strategy
	journal         journal
	logger          *slog.Logger
	backtester      *backtester
}

// Result is everything a finished run produced.
type Result struct {
	Curve      []types.EquityPoint
	Fills      []types.Fill
	Holdings   []types.Position
	Cash       decimal.Decimal
	NextOrders []types.Order
	Report     *Report
}

// NewEngine validates its inputs and seeds the ledger. A nil journal discards output and a nil
// logger uses slog.Default.
func NewEngine(run *RunConfig, pc *PortfolioConfig, rc *ReportingConfig, market marketData, strat strategy, j journal, logger *slog.Logger) (*Engine, error) {
	if run == nil || pc == nil || market == nil || strat == nil {
		return nil, ErrMissingDependency
	}
	if rc == nil {
		rc = NewReportingConfig(decimal.Zero)
	}
	if j == nil {
		j = noopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := pc.fees.Validate(); err != nil {
		return nil, err
	}
	if pc.initialCash.IsNegative() {
		return nil, fmt.Errorf("%w: initial cash %s", ErrInvalidPosition, pc.initialCash)
	}

	ledger := newPortfolio(pc.initialCash, pc.fees, market)
	if len(pc.positions) > 0 {
		if err := ledger.seed(pc.positions, pc.initialCash); err != nil {
			return nil, err
		}
	}

	days := tradingDaysInRange(market.TradingDays(), run.start, run.end)
	return &Engine{
		runConfig:       run,
		portfolioConfig: pc,
		reportingConfig: rc,
		market:          market,
		strategy:        strat,
		journal:         j,
		logger:          logger,
		backtester:      newBacktester(days, run.candidatePool, run.showProgress, market, strat, ledger, j, logger),
	}, nil
}

func (e *Engine) Run() (*Result, error) {
	e.logger.Info("backtest starting",
		"run", e.runConfig.name,
		"days", len(e.backtester.days),
		"cash", e.backtester.portfolio.cash.StringFixed(2),
		"positions", len(e.backtester.portfolio.positions))

	if err := e.backtester.run(); err != nil {
		return nil, err
	}

	bt := e.backtester
	report := e.generateReport(bt.curve, bt.portfolio.fills)
	e.logger.Info("backtest finished",
		"run", e.runConfig.name,
		"total_return", report.Performance.TotalReturn.StringFixed(4),
		"max_drawdown", report.Performance.Drawdown.MaxDrawdown.StringFixed(4))

	return &Result{
		Curve:      append([]types.EquityPoint(nil), bt.curve...),
		Fills:      append([]types.Fill(nil), bt.portfolio.fills...),
		Holdings:   bt.portfolio.holdings(),
		Cash:       bt.portfolio.cash,
		NextOrders: append([]types.Order(nil), bt.pending...),
		Report:     report,
	}, nil
}

// tradingDaysInRange returns the days within [start, end] in strictly increasing order.
func tradingDaysInRange(days []time.Time, start, end time.Time) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		if !start.IsZero() && d.Before(start) {
			continue
		}
		if !end.IsZero() && d.After(end) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	deduped := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(deduped[len(deduped)-1]) {
			continue
		}
		deduped = append(deduped, d)
	}
	return deduped
}

type noopJournal struct{}

func (noopJournal) RecordFills([]types.Fill) error                      { return nil }
func (noopJournal) RecordEquity(types.EquityPoint) error                { return nil }
func (noopJournal) RecordPositions(time.Time, []types.PositionRow) error { return nil }
