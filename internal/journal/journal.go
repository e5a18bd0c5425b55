// Package journal persists a run as it happens: the equity curve, every fill and a per-day
// snapshot of held positions.
package journal

import (
	"errors"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var ErrMalformedSnapshot = errors.New("malformed positions snapshot")

type Journal interface {
	RecordFills(fills []types.Fill) error
	RecordEquity(point types.EquityPoint) error
	RecordPositions(day time.Time, rows []types.PositionRow) error
	RecordSummary(summary Summary) error
	Close() error
}

// RunInfo identifies a run in a journal that can hold several.
type RunInfo struct {
	ID          string
	Name        string
	Strategy    string
	Created     time.Time
	InitialCash decimal.Decimal
}

// Summary is the headline result written once a run finishes.
type Summary struct {
	FinalEquity      decimal.Decimal
	TotalReturn      decimal.Decimal
	AnnualizedReturn decimal.Decimal
	MaxDrawdown      decimal.Decimal
	Trades           int
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFills([]types.Fill) error                      { return nil }
func (Nop) RecordEquity(types.EquityPoint) error                { return nil }
func (Nop) RecordPositions(time.Time, []types.PositionRow) error { return nil }
func (Nop) RecordSummary(Summary) error                         { return nil }
func (Nop) Close() error                                        { return nil }
