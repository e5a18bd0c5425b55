package strategies

import (
	"rankbacktester/types"
)

// stopTriggered checks a held entry against the stop-loss and take-profit levels of its cost basis.
// A position without a cost basis is never stopped out.
func stopTriggered(cfg *Config, e types.SnapshotEntry) (string, bool) {
	if !e.Held() || !e.CostBasis.IsPositive() {
		return "", false
	}
	if e.Price.LessThanOrEqual(e.CostBasis.Mul(cfg.stopLossRatio)) {
		return "stop loss", true
	}
	if e.Price.GreaterThanOrEqual(e.CostBasis.Mul(cfg.takeProfitRatio)) {
		return "take profit", true
	}
	return "", false
}
