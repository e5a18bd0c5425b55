package strategies

import (
	"sort"
	"strings"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// gate applies the rebalance frequency. A zero state trades on its first call.
func gate(state types.StrategyState, freq int) (bool, types.StrategyState) {
	next := types.StrategyState{Step: state.Step + 1}
	if state.Wait > 0 {
		next.Wait = state.Wait - 1
		return false, next
	}
	if freq > 1 {
		next.Wait = freq - 1
	}
	return true, next
}

// byRank orders the snapshot by rank, ties by code. Unranked entries sort last.
func byRank(snapshot types.MarketSnapshot) []types.SnapshotEntry {
	entries := make([]types.SnapshotEntry, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rank != entries[j].Rank {
			return entries[i].Rank < entries[j].Rank
		}
		return entries[i].Code < entries[j].Code
	})
	return entries
}

func byCode(entries []types.SnapshotEntry) []types.SnapshotEntry {
	out := append([]types.SnapshotEntry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func held(entries []types.SnapshotEntry) []types.SnapshotEntry {
	out := make([]types.SnapshotEntry, 0)
	for _, e := range entries {
		if e.Held() {
			out = append(out, e)
		}
	}
	return out
}

// buyable reports whether e may be bought. Exclusions never block selling a held position.
func (c *Config) buyable(e types.SnapshotEntry) bool {
	if e.Held() || !e.Price.IsPositive() {
		return false
	}
	if _, banned := c.bannedCodes[e.Code]; banned {
		return false
	}
	for _, p := range c.excludedPrefixes {
		if p != "" && strings.HasPrefix(e.Code, p) {
			return false
		}
	}
	if c.filterST && e.SpecialTreatment {
		return false
	}
	return true
}

// lots returns the largest board lot multiple affordable with budget at price.
func lots(budget, price decimal.Decimal) int64 {
	if !budget.IsPositive() || !price.IsPositive() {
		return 0
	}
	units := budget.Div(price).Floor().IntPart()
	return units / types.BoardLot * types.BoardLot
}

// liquidate sells the whole held amount of e and returns the expected proceeds at the snapshot price.
func liquidate(e types.SnapshotEntry, reason string) (types.Order, decimal.Decimal) {
	return types.NewOrder(e.Code, -e.Amount, reason), e.Price.Mul(decimal.NewFromInt(e.Amount))
}

// buyer accumulates buy orders against a running cash estimate.
type buyer struct {
	cfg        *Config
	moneyLeft  decimal.Decimal
	perStock   decimal.Decimal
	positions  int
	maxHolding int
	orders     []types.Order
}

// buy sizes e to min(perStock, moneyLeft) in whole lots. It reports whether an order was emitted.
func (b *buyer) buy(e types.SnapshotEntry, reason string) bool {
	if b.maxHolding > 0 && b.positions >= b.maxHolding {
		return false
	}
	if !b.cfg.buyable(e) {
		return false
	}
	qty := lots(decimal.Min(b.perStock, b.moneyLeft), e.Price)
	if qty == 0 {
		return false
	}
	notional := e.Price.Mul(decimal.NewFromInt(qty))
	if notional.LessThan(b.cfg.minBuyValue) {
		return false
	}
	b.orders = append(b.orders, types.NewOrder(e.Code, qty, reason))
	b.moneyLeft = b.moneyLeft.Sub(notional)
	b.positions++
	return true
}

func (b *buyer) full() bool {
	return b.maxHolding > 0 && b.positions >= b.maxHolding
}
