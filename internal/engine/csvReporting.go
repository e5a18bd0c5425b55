package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"rankbacktester/types"
)

// WriteEquityCSVFile writes the equity curve to a CSV file at the given path.
func WriteEquityCSVFile(path string, curve []types.EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create equity file: %w", err)
	}
	defer f.Close()

	return WriteEquityCSV(f, curve)
}

// WriteEquityCSV writes the equity curve to any io.Writer as CSV.
func WriteEquityCSV(w io.Writer, curve []types.EquityPoint) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"day", "equity", "cash"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range curve {
		record := []string{types.FormatDay(p.Day), p.Equity.String(), p.Cash.String()}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteFillsCSVFile writes fills to a CSV file at the given path.
func WriteFillsCSVFile(path string, fills []types.Fill) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fills file: %w", err)
	}
	defer f.Close()

	return WriteFillsCSV(f, fills)
}

// FillsCSVHeader is the column layout of WriteFillsCSV.
var FillsCSVHeader = []string{
	"day",
	"code",
	"side",
	"quantity",
	"price",
	"notional",
	"commission",
	"transfer",
	"stamp_duty",
	"cash_after",
	"realized_pnl",
	"reason",
}

// WriteFillsCSV writes fills to any io.Writer as CSV.
func WriteFillsCSV(w io.Writer, fills []types.Fill) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(FillsCSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, f := range fills {
		if err := cw.Write(FillRecord(f)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FillRecord converts a single fill into one CSV row matching FillsCSVHeader.
func FillRecord(f types.Fill) []string {
	return []string{
		types.FormatDay(f.Day),
		f.Code,
		string(f.Side),
		strconv.FormatInt(f.Quantity, 10),
		f.Price.String(),
		f.Notional.String(),
		f.Commission.String(),
		f.Transfer.String(),
		f.StampDuty.String(),
		f.CashAfter.String(),
		f.RealizedPnL.String(),
		f.Reason,
	}
}
