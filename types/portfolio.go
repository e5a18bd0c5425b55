package types

import (
	"github.com/shopspring/decimal"
)

// Position is a held security. Amount is never stored as zero.
type Position struct {
	Code      string          `json:"code"`
	Amount    int64           `json:"amount"`
	CostBasis decimal.Decimal `json:"costBasis"`
}

// SnapshotEntry is what a strategy sees of one security at the close of a day.
type SnapshotEntry struct {
	Code             string
	Rank             int
	Price            decimal.Decimal
	Amount           int64
	CostBasis        decimal.Decimal
	SpecialTreatment bool
}

func (e SnapshotEntry) Held() bool {
	return e.Amount > 0
}

// MarketSnapshot maps security code to its entry for a single day.
type MarketSnapshot map[string]SnapshotEntry
