package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientCash     = errors.New("insufficient cash for buy order")
	ErrInsufficientHoldings = errors.New("insufficient holdings for sell order")
	ErrNoOpenPrice          = errors.New("no opening price on execution day")
	ErrZeroQuantity         = errors.New("order quantity is zero")
	ErrMissingPrice         = errors.New("missing close price")
	ErrInvalidPosition      = errors.New("invalid seeded position")
)

// portfolio is the position ledger. It is mutated only through executeOrder and seed.
type portfolio struct {
	cash      decimal.Decimal
	positions map[string]*types.Position
	fills     []types.Fill
	fees      FeeSchedule
	prices    priceOracle
}

func newPortfolio(initialCash decimal.Decimal, fees FeeSchedule, prices priceOracle) *portfolio {
	return &portfolio{
		cash:      initialCash,
		positions: make(map[string]*types.Position),
		fees:      fees,
		prices:    prices,
	}
}

// seed replaces the ledger content, used for warm starts from a persisted snapshot.
func (p *portfolio) seed(positions []types.Position, cash decimal.Decimal) error {
	if cash.IsNegative() {
		return fmt.Errorf("%w: negative cash %s", ErrInvalidPosition, cash)
	}
	seeded := make(map[string]*types.Position, len(positions))
	for _, pos := range positions {
		if pos.Amount <= 0 || pos.CostBasis.IsNegative() {
			return fmt.Errorf("%w: %s amount %d cost basis %s", ErrInvalidPosition, pos.Code, pos.Amount, pos.CostBasis)
		}
		if _, dup := seeded[pos.Code]; dup {
			return fmt.Errorf("%w: duplicate code %s", ErrInvalidPosition, pos.Code)
		}
		cp := pos
		seeded[pos.Code] = &cp
	}
	p.positions = seeded
	p.cash = cash
	return nil
}

// executeOrder fills the order at the day's open or rejects it whole.
// A rejected order leaves cash and positions untouched and returns the unchanged cash.
func (p *portfolio) executeOrder(day time.Time, order types.Order) (decimal.Decimal, error) {
	if order.Quantity == 0 {
		return p.cash, ErrZeroQuantity
	}
	pos := p.positions[order.Code]
	if order.Quantity < 0 {
		if pos == nil || pos.Amount+order.Quantity < 0 {
			return p.cash, fmt.Errorf("%s sell %d: %w", order.Code, -order.Quantity, ErrInsufficientHoldings)
		}
	}

	price, err := p.prices.Open(order.Code, day)
	if err != nil || !price.IsPositive() {
		return p.cash, fmt.Errorf("%s on %s: %w", order.Code, types.FormatDay(day), ErrNoOpenPrice)
	}

	cost := p.fees.OrderCost(price, order.Quantity)
	var newCash decimal.Decimal
	if order.Quantity > 0 {
		newCash = p.cash.Sub(cost.Total)
		if newCash.IsNegative() {
			return p.cash, fmt.Errorf("%s buy %d needs %s, have %s: %w", order.Code, order.Quantity, cost.Total, p.cash, ErrInsufficientCash)
		}
	} else {
		newCash = p.cash.Add(cost.Total)
	}

	fill := types.Fill{
		Day:        day,
		Code:       order.Code,
		Side:       order.Side(),
		Quantity:   abs(order.Quantity),
		Price:      price,
		Notional:   cost.Notional,
		Commission: cost.Commission,
		Transfer:   cost.Transfer,
		StampDuty:  cost.StampDuty,
		CashAfter:  newCash,
		Reason:     order.Reason,
	}

	if pos == nil {
		pos = &types.Position{Code: order.Code}
		p.positions[order.Code] = pos
	}
	if order.Quantity > 0 {
		pos.CostBasis = weightedAvg(pos.CostBasis, decimal.NewFromInt(pos.Amount), price, decimal.NewFromInt(order.Quantity))
	} else {
		fill.RealizedPnL = price.Sub(pos.CostBasis).Mul(decimal.NewFromInt(-order.Quantity)).Sub(cost.Fees())
	}
	pos.Amount += order.Quantity
	if pos.Amount == 0 {
		delete(p.positions, order.Code)
	}

	p.cash = newCash
	p.fills = append(p.fills, fill)
	return newCash, nil
}

// markToMarket values every held position at the day's close. A missing close contributes zero
// for that day only; the position is kept and the gap is reported through the returned error.
func (p *portfolio) markToMarket(day time.Time) (decimal.Decimal, error) {
	value := decimal.Zero
	var warnings []error
	for _, pos := range p.holdings() {
		price, err := p.prices.Close(pos.Code, day)
		if err != nil || !price.IsPositive() {
			warnings = append(warnings, fmt.Errorf("%s on %s: %w", pos.Code, types.FormatDay(day), ErrMissingPrice))
			continue
		}
		value = value.Add(price.Mul(decimal.NewFromInt(pos.Amount)))
	}
	return value, errors.Join(warnings...)
}

// holdings returns copies of the held positions sorted by code.
func (p *portfolio) holdings() []types.Position {
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (p *portfolio) position(code string) (types.Position, bool) {
	pos, ok := p.positions[code]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
