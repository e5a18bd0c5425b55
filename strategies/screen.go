package strategies

import (
	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// screen splits the ranking into a buy band [0, top), a hold band [top, top+mid) and sells
// everything ranked beyond. Cash is spread equally over the new buy band entries.
type screen struct {
	cfg *Config
}

func (s *screen) Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState) {
	_, next := gate(state, 1)

	ranked := byRank(snapshot)
	moneyLeft := cash
	var orders []types.Order

	sellFrom := s.cfg.thresholdTop + s.cfg.thresholdMid
	for _, e := range byCode(held(ranked)) {
		if e.Rank < sellFrom {
			continue
		}
		order, proceeds := liquidate(e, "screened out")
		orders = append(orders, order)
		moneyLeft = moneyLeft.Add(proceeds)
	}

	candidates := make([]types.SnapshotEntry, 0, s.cfg.thresholdTop)
	for _, e := range ranked {
		if e.Rank >= s.cfg.thresholdTop {
			break
		}
		if s.cfg.buyable(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 || !moneyLeft.IsPositive() {
		return orders, next
	}

	b := &buyer{
		cfg:       s.cfg,
		moneyLeft: moneyLeft,
		perStock:  moneyLeft.Div(decimal.NewFromInt(int64(len(candidates)))),
	}
	for _, e := range candidates {
		if !b.moneyLeft.IsPositive() {
			break
		}
		b.buy(e, "screen top band")
	}
	return append(orders, b.orders...), next
}
