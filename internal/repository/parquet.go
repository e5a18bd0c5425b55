package repository

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"rankbacktester/types"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// BarRecord is the Parquet schema of the daily bar file.
type BarRecord struct {
	Code  string  `parquet:"code"`
	Day   string  `parquet:"day"` // YYYYMMDD
	Open  float64 `parquet:"open"`
	Close float64 `parquet:"close"`
}

// ReadBarsFile reads daily bars from a Parquet file. NaN prices are kept as zero so the
// oracle reports them missing.
func ReadBarsFile(path string) ([]types.DailyBar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", path, err)
	}
	bars := make([]types.DailyBar, 0, len(records))
	for i, r := range records {
		bar, err := r.toBar()
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoBars)
	}
	return bars, nil
}

// WriteBarsFile writes daily bars to a Parquet file, creating parent directories.
func WriteBarsFile(path string, bars []types.DailyBar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, BarRecord{
			Code:  b.Code,
			Day:   types.FormatDay(b.Day),
			Open:  b.Open.InexactFloat64(),
			Close: b.Close.InexactFloat64(),
		})
	}
	return parquet.WriteFile(path, records)
}

func (r BarRecord) toBar() (types.DailyBar, error) {
	code, err := types.NormalizeCode(r.Code)
	if err != nil {
		return types.DailyBar{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	day, err := types.ParseDay(r.Day)
	if err != nil {
		return types.DailyBar{}, fmt.Errorf("%w: day %q", ErrMalformedRow, r.Day)
	}
	return types.DailyBar{
		Code:  code,
		Day:   day,
		Open:  priceFromFloat(r.Open),
		Close: priceFromFloat(r.Close),
	}, nil
}

func priceFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
