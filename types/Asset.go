package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Unranked is the rank reported for a security that has no prediction on a day.
const Unranked = 9999

// BoardLot is the minimum tradable unit for non-liquidating orders.
const BoardLot = 100

type Stock struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// IsSpecialTreatment reports whether the stock carries a special-treatment (ST) flag in its name.
func (s Stock) IsSpecialTreatment() bool {
	return strings.Contains(strings.ToUpper(s.Name), "ST")
}

// NormalizeCode turns "1", "000001" or "000001.SZ" into the zero padded six digit form "000001".
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[:i]
	}
	if code == "" {
		return "", fmt.Errorf("empty security code")
	}
	n, err := strconv.ParseUint(code, 10, 32)
	if err != nil {
		return "", fmt.Errorf("security code %q: %w", raw, err)
	}
	if n > 999999 {
		return "", fmt.Errorf("security code %q out of range", raw)
	}
	return fmt.Sprintf("%06d", n), nil
}
