package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an accepted order as executed by the ledger.
type Fill struct {
	Day         time.Time
	Code        string
	Side        Side
	Quantity    int64
	Price       decimal.Decimal
	Notional    decimal.Decimal
	Commission  decimal.Decimal
	Transfer    decimal.Decimal
	StampDuty   decimal.Decimal
	CashAfter   decimal.Decimal
	RealizedPnL decimal.Decimal
	Reason      string
}

func (f Fill) Fees() decimal.Decimal {
	return f.Commission.Add(f.Transfer).Add(f.StampDuty)
}

// EquityPoint is one day of the equity curve.
type EquityPoint struct {
	Day    time.Time
	Equity decimal.Decimal
	Cash   decimal.Decimal
}

// PositionRow is one held position on one day, as persisted for audit.
type PositionRow struct {
	Day         time.Time
	Code        string
	Amount      int64
	CostBasis   decimal.Decimal
	Open        decimal.Decimal
	Close       decimal.Decimal
	MarketValue decimal.Decimal
	Rank        int
}
