package strategies

import (
	"math/rand/v2"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// random is the baseline: it liquidates sell_count random holdings and buys random snapshot
// entries. The generator is seeded from the config seed and the decision step, so a run is
// reproducible.
type random struct {
	cfg *Config
}

func (r *random) Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState) {
	_, next := gate(state, 1)
	rng := rand.New(rand.NewPCG(r.cfg.seed, state.Step))

	entries := byCode(byRank(snapshot))
	holdings := held(entries)
	rng.Shuffle(len(holdings), func(i, j int) { holdings[i], holdings[j] = holdings[j], holdings[i] })

	moneyLeft := cash
	var orders []types.Order
	sells := min(r.cfg.sellCount, len(holdings))
	for _, e := range holdings[:sells] {
		order, proceeds := liquidate(e, "random exit")
		orders = append(orders, order)
		moneyLeft = moneyLeft.Add(proceeds)
	}

	candidates := make([]types.SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		if r.cfg.buyable(e) {
			candidates = append(candidates, e)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	b := &buyer{
		cfg:        r.cfg,
		moneyLeft:  moneyLeft,
		perStock:   equity.Div(decimal.NewFromInt(int64(r.cfg.maxHolding))),
		positions:  len(holdings) - sells,
		maxHolding: r.cfg.maxHolding,
	}
	for _, e := range candidates {
		if !b.moneyLeft.GreaterThan(r.cfg.minBuyValue) || b.full() {
			break
		}
		b.buy(e, "random entry")
	}
	return append(orders, b.orders...), next
}
