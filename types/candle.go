package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBar is the end-of-day open/close pair of one security.
type DailyBar struct {
	Code  string          `json:"code"`
	Day   time.Time       `json:"day"`
	Open  decimal.Decimal `json:"open"`
	Close decimal.Decimal `json:"close"`
}

// Prediction is the model's predicted forward return for a security on a day.
type Prediction struct {
	Code string    `json:"code"`
	Day  time.Time `json:"day"`
	Pred float64   `json:"pred"`
}
