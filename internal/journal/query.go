package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// RunRow is one entry of the runs table. Result fields are zero until the run finished.
type RunRow struct {
	RunInfo
	Finished bool
	Summary  Summary
}

// ListRuns returns every run, newest first.
func ListRuns(ctx context.Context, db *sql.DB) ([]RunRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, name, strategy, created, initial_cash,
		       final_equity, total_return, annualized_return, max_drawdown, trades
		FROM runs
		ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			r                             RunRow
			created, initialCash          string
			finalEquity, totalReturn      sql.NullString
			annualizedReturn, maxDrawdown sql.NullString
			trades                        sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Strategy, &created, &initialCash,
			&finalEquity, &totalReturn, &annualizedReturn, &maxDrawdown, &trades); err != nil {
			return nil, err
		}
		if r.Created, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("run %s created: %w", r.ID, err)
		}
		if r.InitialCash, err = decimal.NewFromString(initialCash); err != nil {
			return nil, fmt.Errorf("run %s initial cash: %w", r.ID, err)
		}
		if finalEquity.Valid {
			r.Finished = true
			r.Summary.FinalEquity = decimalOrZero(finalEquity)
			r.Summary.TotalReturn = decimalOrZero(totalReturn)
			r.Summary.AnnualizedReturn = decimalOrZero(annualizedReturn)
			r.Summary.MaxDrawdown = decimalOrZero(maxDrawdown)
			r.Summary.Trades = int(trades.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EquityCurve returns the recorded curve of a run in day order.
func EquityCurve(ctx context.Context, db *sql.DB, runID string) ([]types.EquityPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day, equity, cash FROM equity
		WHERE run_id = ?
		ORDER BY day`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.EquityPoint
	for rows.Next() {
		var day, equity, cash string
		if err := rows.Scan(&day, &equity, &cash); err != nil {
			return nil, err
		}
		p := types.EquityPoint{}
		if p.Day, err = types.ParseDay(day); err != nil {
			return nil, err
		}
		if p.Equity, err = decimal.NewFromString(equity); err != nil {
			return nil, err
		}
		if p.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decimalOrZero(s sql.NullString) decimal.Decimal {
	if !s.Valid {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero
	}
	return d
}
