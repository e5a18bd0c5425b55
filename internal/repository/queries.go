package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const getDailyBars = `-- name: GetDailyBars :many
SELECT ts_code, trade_date, open, close
FROM stock_daily
WHERE trade_date BETWEEN $1 AND $2
ORDER BY trade_date, ts_code`

const getStocks = `-- name: GetStocks :many
SELECT ts_code, name
FROM stock_basic
ORDER BY ts_code`

const getPredictions = `-- name: GetPredictions :many
SELECT security_id, trade_date, pred
FROM predictions
WHERE trade_date BETWEEN $1 AND $2 AND pred IS NOT NULL
ORDER BY trade_date, security_id`

type dailyBarRow struct {
	TsCode    string              `db:"ts_code"`
	TradeDate string              `db:"trade_date"`
	Open      decimal.NullDecimal `db:"open"`
	Close     decimal.NullDecimal `db:"close"`
}

type stockRow struct {
	TsCode string `db:"ts_code"`
	Name   string `db:"name"`
}

type predictionRow struct {
	SecurityID string  `db:"security_id"`
	TradeDate  string  `db:"trade_date"`
	Pred       float64 `db:"pred"`
}

// queries runs the statements against the pool.
type queries struct {
	pool *pgxpool.Pool
}

func (q *queries) GetDailyBars(ctx context.Context, start, end string) ([]dailyBarRow, error) {
	rows, err := q.pool.Query(ctx, getDailyBars, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[dailyBarRow])
}

func (q *queries) GetStocks(ctx context.Context) ([]stockRow, error) {
	rows, err := q.pool.Query(ctx, getStocks)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[stockRow])
}

func (q *queries) GetPredictions(ctx context.Context, start, end string) ([]predictionRow, error) {
	rows, err := q.pool.Query(ctx, getPredictions, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[predictionRow])
}
