package engine

import (
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// DefaultCandidatePool is how many top ranked securities are offered to the strategy each day.
const DefaultCandidatePool = 50

type RunConfig struct {
	name          string
	start         time.Time
	end           time.Time
	candidatePool int
	showProgress  bool
}

// NewRunConfig limits the replay to [start, end]; a zero bound is open.
func NewRunConfig(name string, start, end time.Time, candidatePool int, showProgress bool) *RunConfig {
	if candidatePool <= 0 {
		candidatePool = DefaultCandidatePool
	}
	return &RunConfig{
		name:          name,
		start:         start,
		end:           end,
		candidatePool: candidatePool,
		showProgress:  showProgress,
	}
}

type PortfolioConfig struct {
	initialCash decimal.Decimal
	fees        FeeSchedule
	positions   []types.Position
}

func NewPortfolioConfig(initialCash decimal.Decimal, fees FeeSchedule) *PortfolioConfig {
	return &PortfolioConfig{
		initialCash: initialCash,
		fees:        fees,
	}
}

// WithPositions seeds the ledger with positions loaded from a persisted snapshot.
func (c *PortfolioConfig) WithPositions(positions []types.Position) *PortfolioConfig {
	c.positions = positions
	return c
}

type ReportingConfig struct {
	sharpeRiskFreeRate decimal.Decimal
}

func NewReportingConfig(sharpeRiskFreeRate decimal.Decimal) *ReportingConfig {
	return &ReportingConfig{
		sharpeRiskFreeRate: sharpeRiskFreeRate,
	}
}
