package types

type Side string

const (
	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"
)

// Order is a signed quantity for one security: positive buys, negative sells.
type Order struct {
	Code     string
	Quantity int64
	Reason   string
}

func NewOrder(code string, quantity int64, reason string) Order {
	return Order{
		Code:     code,
		Quantity: quantity,
		Reason:   reason,
	}
}

func (o Order) Side() Side {
	if o.Quantity < 0 {
		return SideTypeSell
	}
	return SideTypeBuy
}
