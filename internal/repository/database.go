package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rankbacktester/types"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type barsRepository interface {
	GetDailyBars(ctx context.Context, start, end string) ([]dailyBarRow, error)
}
type stocksRepository interface {
	GetStocks(ctx context.Context) ([]stockRow, error)
}
type predictionsRepository interface {
	GetPredictions(ctx context.Context, start, end string) ([]predictionRow, error)
}

// Database struct that holds the database connection and queries.
type Database struct {
	bars        barsRepository
	stocks      stocksRepository
	predictions predictionsRepository
	conn        *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	q := &queries{pool: conn}
	return &Database{
		bars:        q,
		stocks:      q,
		predictions: q,
		conn:        conn,
	}, nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

// LoadMarketData reads bars and predictions within [start, end] plus all stock names. A zero
// bound is open.
func (db *Database) LoadMarketData(ctx context.Context, start, end time.Time, logger *slog.Logger) (*MarketData, error) {
	if logger == nil {
		logger = slog.Default()
	}
	from, to := dayBounds(start, end)

	barRows, err := db.bars.GetDailyBars(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily bars: %w", err)
	}
	if len(barRows) == 0 {
		return nil, ErrNoBars
	}
	bars, err := convertBars(barRows)
	if err != nil {
		return nil, err
	}

	predRows, err := db.predictions.GetPredictions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("predictions: %w", err)
	}
	if len(predRows) == 0 {
		return nil, ErrNoPredictions
	}
	preds, err := convertPredictions(predRows)
	if err != nil {
		return nil, err
	}

	stockRows, err := db.stocks.GetStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("stock names: %w", err)
	}
	stocks, err := convertStocks(stockRows)
	if err != nil {
		return nil, err
	}

	logger.Info("market data loaded", "source", "postgres", "bars", len(bars), "predictions", len(preds), "names", len(stocks))
	return NewMarketData(bars, preds, stocks, logger)
}

func dayBounds(start, end time.Time) (string, string) {
	from, to := "00000000", "99999999"
	if !start.IsZero() {
		from = types.FormatDay(start)
	}
	if !end.IsZero() {
		to = types.FormatDay(end)
	}
	return from, to
}

func convertBars(rows []dailyBarRow) ([]types.DailyBar, error) {
	bars := make([]types.DailyBar, 0, len(rows))
	for _, r := range rows {
		code, err := types.NormalizeCode(r.TsCode)
		if err != nil {
			return nil, fmt.Errorf("stock_daily: %w: %v", ErrMalformedRow, err)
		}
		day, err := types.ParseDay(r.TradeDate)
		if err != nil {
			return nil, fmt.Errorf("stock_daily %s: %w: trade_date %q", code, ErrMalformedRow, r.TradeDate)
		}
		bar := types.DailyBar{Code: code, Day: day}
		if r.Open.Valid {
			bar.Open = r.Open.Decimal
		}
		if r.Close.Valid {
			bar.Close = r.Close.Decimal
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func convertPredictions(rows []predictionRow) ([]types.Prediction, error) {
	preds := make([]types.Prediction, 0, len(rows))
	for _, r := range rows {
		code, err := types.NormalizeCode(r.SecurityID)
		if err != nil {
			return nil, fmt.Errorf("predictions: %w: %v", ErrMalformedRow, err)
		}
		day, err := types.ParseDay(r.TradeDate)
		if err != nil {
			return nil, fmt.Errorf("predictions %s: %w: trade_date %q", code, ErrMalformedRow, r.TradeDate)
		}
		preds = append(preds, types.Prediction{Code: code, Day: day, Pred: r.Pred})
	}
	return preds, nil
}

func convertStocks(rows []stockRow) ([]types.Stock, error) {
	stocks := make([]types.Stock, 0, len(rows))
	for _, r := range rows {
		code, err := types.NormalizeCode(r.TsCode)
		if err != nil {
			return nil, fmt.Errorf("stock_basic: %w: %v", ErrMalformedRow, err)
		}
		stocks = append(stocks, types.Stock{Code: code, Name: r.Name})
	}
	return stocks, nil
}
