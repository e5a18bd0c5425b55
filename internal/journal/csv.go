package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rankbacktester/internal/engine"
	"rankbacktester/types"
)

// PositionsHeader is the column layout of a per-day positions file.
var PositionsHeader = []string{"code", "amount", "cost_basis", "open", "close", "market_value", "rank"}

// CSV writes equity.csv, fills.csv and positions/<YYYY-MM-DD>.csv under one directory.
type CSV struct {
	dir    string
	fills  *csv.Writer
	equity *csv.Writer
	ff, ef *os.File
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Join(dir, "positions"), 0o755); err != nil {
		return nil, err
	}
	ff, err := os.Create(filepath.Join(dir, "fills.csv"))
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(filepath.Join(dir, "equity.csv"))
	if err != nil {
		ff.Close()
		return nil, err
	}

	j := &CSV{dir: dir, fills: csv.NewWriter(ff), equity: csv.NewWriter(ef), ff: ff, ef: ef}
	if err := j.fills.Write(engine.FillsCSVHeader); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.equity.Write([]string{"day", "equity", "cash"}); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.flush(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordFills(fills []types.Fill) error {
	for _, f := range fills {
		if err := j.fills.Write(engine.FillRecord(f)); err != nil {
			return err
		}
	}
	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSV) RecordEquity(p types.EquityPoint) error {
	if err := j.equity.Write([]string{types.FormatDay(p.Day), p.Equity.String(), p.Cash.String()}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) RecordPositions(day time.Time, rows []types.PositionRow) error {
	path := filepath.Join(j.dir, "positions", day.Format("2006-01-02")+".csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(PositionsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		err := w.Write([]string{
			r.Code,
			strconv.FormatInt(r.Amount, 10),
			r.CostBasis.String(),
			r.Open.StringFixed(2),
			r.Close.StringFixed(2),
			r.MarketValue.StringFixed(2),
			strconv.Itoa(r.Rank),
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// RecordSummary writes summary.csv as key/value rows.
func (j *CSV) RecordSummary(s Summary) error {
	f, err := os.Create(filepath.Join(j.dir, "summary.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	records := [][]string{
		{"key", "value"},
		{"final_equity", s.FinalEquity.String()},
		{"total_return", s.TotalReturn.String()},
		{"annualized_return", s.AnnualizedReturn.String()},
		{"max_drawdown", s.MaxDrawdown.String()},
		{"trades", strconv.Itoa(s.Trades)},
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (j *CSV) flush() error {
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	flushErr := j.flush()
	if err := j.ff.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return flushErr
}
