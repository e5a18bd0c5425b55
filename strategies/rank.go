package strategies

import (
	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// rankRebalancer sells the worst ranked holdings at or beyond min_sell_rank and refills from
// the top of the ranking. With stops enabled it first liquidates positions hitting the
// stop-loss or take-profit level.
type rankRebalancer struct {
	cfg   *Config
	stops bool
}

func (r *rankRebalancer) Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState) {
	trade, next := gate(state, r.cfg.rebalanceFreq)
	if !trade {
		return nil, next
	}

	ranked := byRank(snapshot)
	holdings := held(ranked)
	moneyLeft := cash
	var orders []types.Order
	sold := make(map[string]bool)

	if r.stops {
		for _, e := range holdings {
			reason, hit := stopTriggered(r.cfg, e)
			if !hit {
				continue
			}
			order, proceeds := liquidate(e, reason)
			orders = append(orders, order)
			moneyLeft = moneyLeft.Add(proceeds)
			sold[e.Code] = true
		}
	}

	laggards := make([]types.SnapshotEntry, 0)
	for _, e := range holdings {
		if !sold[e.Code] && e.Rank >= r.cfg.minSellRank {
			laggards = append(laggards, e)
		}
	}
	// worst ranks first
	for i := len(laggards) - 1; i >= 0 && len(laggards)-i <= r.cfg.sellCount; i-- {
		order, proceeds := liquidate(laggards[i], "rank below threshold")
		orders = append(orders, order)
		moneyLeft = moneyLeft.Add(proceeds)
		sold[laggards[i].Code] = true
	}

	b := &buyer{
		cfg:        r.cfg,
		moneyLeft:  moneyLeft,
		perStock:   equity.Div(decimal.NewFromInt(int64(r.cfg.maxHolding))),
		positions:  len(holdings) - len(sold),
		maxHolding: r.cfg.maxHolding,
	}
	for _, e := range ranked {
		if b.moneyLeft.LessThan(b.perStock) || b.full() {
			break
		}
		b.buy(e, "top ranked")
	}
	return append(orders, b.orders...), next
}
