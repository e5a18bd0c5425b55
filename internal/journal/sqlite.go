package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rankbacktester/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// SQLite stores runs side by side, every row keyed by run id.
type SQLite struct {
	db    *sql.DB
	runID string
	seq   int
}

// NewSQLite opens (or creates) the database at path and registers run.
func NewSQLite(path string, run RunInfo) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	created := run.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = db.Exec(`
		INSERT INTO runs (run_id, name, strategy, created, initial_cash)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Strategy, created.Format(time.RFC3339), run.InitialCash.String(),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run %s: %w", run.ID, err)
	}
	return &SQLite{db: db, runID: run.ID}, nil
}

func (j *SQLite) RecordFills(fills []types.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO fills
		(run_id, seq, day, code, side, quantity, price, notional, commission, transfer, stamp_duty, cash_after, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seq := j.seq
	for _, f := range fills {
		_, err := stmt.Exec(j.runID, seq, types.FormatDay(f.Day), f.Code, string(f.Side), f.Quantity,
			f.Price.String(), f.Notional.String(), f.Commission.String(), f.Transfer.String(),
			f.StampDuty.String(), f.CashAfter.String(), f.RealizedPnL.String(), f.Reason)
		if err != nil {
			return err
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	j.seq = seq
	return nil
}

func (j *SQLite) RecordEquity(p types.EquityPoint) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, day, equity, cash)
		VALUES (?, ?, ?, ?)`,
		j.runID, types.FormatDay(p.Day), p.Equity.String(), p.Cash.String(),
	)
	return err
}

func (j *SQLite) RecordPositions(day time.Time, rows []types.PositionRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.Exec(`
			INSERT INTO positions (run_id, day, code, amount, cost_basis, open, close, market_value, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.runID, types.FormatDay(day), r.Code, r.Amount, r.CostBasis.String(),
			r.Open.String(), r.Close.String(), r.MarketValue.String(), r.Rank,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) RecordSummary(s Summary) error {
	_, err := j.db.Exec(`
		UPDATE runs
		SET final_equity = ?, total_return = ?, annualized_return = ?, max_drawdown = ?, trades = ?
		WHERE run_id = ?`,
		s.FinalEquity.String(), s.TotalReturn.String(), s.AnnualizedReturn.String(), s.MaxDrawdown.String(), s.Trades,
		j.runID,
	)
	return err
}

func (j *SQLite) RunID() string {
	return j.runID
}

// DB exposes the handle for read queries such as ListRuns.
func (j *SQLite) DB() *sql.DB {
	return j.db
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// OpenSQLite opens an existing journal database for reading.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
