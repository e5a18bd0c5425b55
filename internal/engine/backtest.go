package engine

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"rankbacktester/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

var (
	ErrNoTradingDays = errors.New("no trading days in range")
	ErrAlreadyRan    = errors.New("simulation already ran")
)

type loopState int

const (
	stateIdle loopState = iota
	stateRunning
	stateFinished
)

func (s loopState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateFinished:
		return "finished"
	}
	return "unknown"
}

// backtester replays the trading days. Orders decided on a day's close are only
// executed at the next day's open.
type backtester struct {
	market        marketData
	strategy      strategy
	portfolio     *portfolio
	journal       journal
	logger        *slog.Logger
	days          []time.Time
	candidatePool int
	showProgress  bool

	state      loopState
	pending    []types.Order
	stratState types.StrategyState
	curve      []types.EquityPoint
}

func newBacktester(days []time.Time, candidatePool int, showProgress bool, market marketData, strat strategy, portfolio *portfolio, j journal, logger *slog.Logger) *backtester {
	return &backtester{
		market:        market,
		strategy:      strat,
		portfolio:     portfolio,
		journal:       j,
		logger:        logger,
		days:          days,
		candidatePool: candidatePool,
		showProgress:  showProgress,
		state:         stateIdle,
	}
}

func (b *backtester) run() error {
	if b.state != stateIdle {
		return ErrAlreadyRan
	}
	if len(b.days) == 0 {
		return ErrNoTradingDays
	}
	b.state = stateRunning

	bar := initProgressBar(len(b.days), b.showProgress)
	for _, day := range b.days {
		b.step(day)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	b.state = stateFinished
	return nil
}

func (b *backtester) step(day time.Time) {
	fillsBefore := len(b.portfolio.fills)
	b.executePending(day)
	if fills := b.portfolio.fills[fillsBefore:]; len(fills) > 0 {
		if err := b.journal.RecordFills(fills); err != nil {
			b.logger.Error("journal fills", "day", types.FormatDay(day), "err", err)
		}
	}

	equity := b.recordEquity(day)

	snapshot := b.buildSnapshot(day)
	orders, next := b.strategy.Decide(b.stratState, snapshot, b.portfolio.cash, equity)
	b.pending = dropEmptyOrders(orders)
	b.stratState = next
}

// executePending runs all sells before any buy so freed cash is usable the same day.
func (b *backtester) executePending(day time.Time) {
	for _, sells := range []bool{true, false} {
		for _, order := range b.pending {
			if (order.Quantity < 0) != sells {
				continue
			}
			if _, err := b.portfolio.executeOrder(day, order); err != nil {
				if errors.Is(err, ErrNoOpenPrice) {
					b.logger.Warn("order dropped", "day", types.FormatDay(day), "code", order.Code, "qty", order.Quantity, "err", err)
					continue
				}
				b.logger.Debug("order rejected", "day", types.FormatDay(day), "code", order.Code, "qty", order.Quantity, "err", err)
			}
		}
	}
	b.pending = nil
}

func (b *backtester) recordEquity(day time.Time) decimal.Decimal {
	holdingsValue, err := b.portfolio.markToMarket(day)
	if err != nil {
		b.logger.Warn("mark to market incomplete", "day", types.FormatDay(day), "err", err)
	}
	equity := b.portfolio.cash.Add(holdingsValue)
	point := types.EquityPoint{Day: day, Equity: equity, Cash: b.portfolio.cash}
	b.curve = append(b.curve, point)
	b.logger.Debug("equity", "day", types.FormatDay(day), "equity", equity.StringFixed(2), "cash", b.portfolio.cash.StringFixed(2))

	if err := b.journal.RecordEquity(point); err != nil {
		b.logger.Error("journal equity", "day", types.FormatDay(day), "err", err)
	}
	if err := b.journal.RecordPositions(day, b.positionRows(day)); err != nil {
		b.logger.Error("journal positions", "day", types.FormatDay(day), "err", err)
	}
	return equity
}

func (b *backtester) positionRows(day time.Time) []types.PositionRow {
	holdings := b.portfolio.holdings()
	rows := make([]types.PositionRow, 0, len(holdings))
	for _, pos := range holdings {
		open, _ := b.market.Open(pos.Code, day)
		closePrice, _ := b.market.Close(pos.Code, day)
		rank, _ := b.market.Rank(pos.Code, day)
		rows = append(rows, types.PositionRow{
			Day:         day,
			Code:        pos.Code,
			Amount:      pos.Amount,
			CostBasis:   pos.CostBasis,
			Open:        open,
			Close:       closePrice,
			MarketValue: closePrice.Mul(decimal.NewFromInt(pos.Amount)),
			Rank:        rank,
		})
	}
	return rows
}

// buildSnapshot merges holdings with the day's top ranked codes at the closing price.
// Held securities stay in even when unranked, but one without a close is left out.
func (b *backtester) buildSnapshot(day time.Time) types.MarketSnapshot {
	snapshot := make(types.MarketSnapshot)
	for _, pos := range b.portfolio.holdings() {
		price, err := b.market.Close(pos.Code, day)
		if err != nil || !price.IsPositive() {
			b.logger.Warn("held security left out of snapshot", "day", types.FormatDay(day), "code", pos.Code)
			continue
		}
		rank, err := b.market.Rank(pos.Code, day)
		if err != nil {
			rank = types.Unranked
		}
		snapshot[pos.Code] = types.SnapshotEntry{
			Code:             pos.Code,
			Rank:             rank,
			Price:            price,
			Amount:           pos.Amount,
			CostBasis:        pos.CostBasis,
			SpecialTreatment: b.market.IsSpecialTreatment(pos.Code),
		}
	}

	for rank := 0; rank < b.candidatePool; rank++ {
		code, ok := b.market.CodeAtRank(rank, day)
		if !ok {
			break
		}
		if _, held := b.portfolio.position(code); held {
			continue
		}
		price, err := b.market.Close(code, day)
		if err != nil || !price.IsPositive() {
			continue
		}
		snapshot[code] = types.SnapshotEntry{
			Code:             code,
			Rank:             rank,
			Price:            price,
			SpecialTreatment: b.market.IsSpecialTreatment(code),
		}
	}
	return snapshot
}

func dropEmptyOrders(orders []types.Order) []types.Order {
	out := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if o.Quantity != 0 {
			out = append(out, o)
		}
	}
	return out
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !visible {
		w = io.Discard
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
