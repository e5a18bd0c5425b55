package engine

import (
	"errors"
	"fmt"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var ErrInvalidFeeSchedule = errors.New("invalid fee schedule")

// FeeSchedule holds the per-order charges of an A-share style broker.
type FeeSchedule struct {
	CommissionRate decimal.Decimal
	MinCommission  decimal.Decimal
	TransferRate   decimal.Decimal
	StampDutyRate  decimal.Decimal
}

// CostBreakdown is the result of pricing one order. Total is the buy debit or the sell credit.
type CostBreakdown struct {
	Notional   decimal.Decimal
	Commission decimal.Decimal
	Transfer   decimal.Decimal
	StampDuty  decimal.Decimal
	Total      decimal.Decimal
}

func (c CostBreakdown) Fees() decimal.Decimal {
	return c.Commission.Add(c.Transfer).Add(c.StampDuty)
}

// DefaultFeeSchedule is 0.03% commission with a 5 floor, 0.001% transfer fee and 0.05% stamp duty on sells.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		CommissionRate: decimal.RequireFromString("0.0003"),
		MinCommission:  decimal.NewFromInt(5),
		TransferRate:   decimal.RequireFromString("0.00001"),
		StampDutyRate:  decimal.RequireFromString("0.0005"),
	}
}

func (f FeeSchedule) Validate() error {
	rates := map[string]decimal.Decimal{
		"commission rate": f.CommissionRate,
		"min commission":  f.MinCommission,
		"transfer rate":   f.TransferRate,
		"stamp duty rate": f.StampDutyRate,
	}
	for name, v := range rates {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s %s is negative", ErrInvalidFeeSchedule, name, v)
		}
	}
	return nil
}

// Cost prices an order with the given notional. Nothing is rounded here.
func (f FeeSchedule) Cost(notional decimal.Decimal, side types.Side) CostBreakdown {
	commission := decimal.Max(notional.Mul(f.CommissionRate), f.MinCommission)
	transfer := notional.Mul(f.TransferRate)

	if side == types.SideTypeSell {
		stamp := notional.Mul(f.StampDutyRate)
		return CostBreakdown{
			Notional:   notional,
			Commission: commission,
			Transfer:   transfer,
			StampDuty:  stamp,
			Total:      notional.Sub(commission).Sub(transfer).Sub(stamp),
		}
	}
	return CostBreakdown{
		Notional:   notional,
		Commission: commission,
		Transfer:   transfer,
		StampDuty:  decimal.Zero,
		Total:      notional.Add(commission).Add(transfer),
	}
}

// OrderCost prices quantity units at price. The sign of quantity picks the side.
func (f FeeSchedule) OrderCost(price decimal.Decimal, quantity int64) CostBreakdown {
	side := types.SideTypeBuy
	if quantity < 0 {
		side = types.SideTypeSell
		quantity = -quantity
	}
	return f.Cost(price.Mul(decimal.NewFromInt(quantity)), side)
}
