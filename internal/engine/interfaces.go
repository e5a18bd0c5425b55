package engine

import (
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// priceOracle returns a zero price and a non-nil error when data for the day is missing.
type priceOracle interface {
	Open(code string, day time.Time) (decimal.Decimal, error)
	Close(code string, day time.Time) (decimal.Decimal, error)
}

// rankOracle returns types.Unranked and a non-nil error for a security without a rank.
type rankOracle interface {
	Rank(code string, day time.Time) (int, error)
	CodeAtRank(rank int, day time.Time) (string, bool)
	TradingDays() []time.Time
	IsSpecialTreatment(code string) bool
}

type marketData interface {
	priceOracle
	rankOracle
}

type strategy interface {
	Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState)
}

type journal interface {
	RecordFills(fills []types.Fill) error
	RecordEquity(point types.EquityPoint) error
	RecordPositions(day time.Time, rows []types.PositionRow) error
}
