package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"rankbacktester/types"
)

// FileSources names the on-disk inputs of a run. NamesFile is optional.
type FileSources struct {
	BarsFile        string
	PredictionsFile string
	NamesFile       string
}

// LoadFiles builds the market oracle from a Parquet bar file, a prediction CSV and an optional
// names CSV.
func LoadFiles(ctx context.Context, src FileSources, logger *slog.Logger) (*MarketData, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bars, err := ReadBarsFile(src.BarsFile)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	preds, err := ReadPredictionsFile(src.PredictionsFile)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stocks []types.Stock
	if src.NamesFile != "" {
		stocks, err = ReadNamesFile(src.NamesFile)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("market data loaded", "bars", len(bars), "predictions", len(preds), "names", len(stocks))
	return NewMarketData(bars, preds, stocks, logger)
}

func ReadPredictionsFile(path string) ([]types.Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open predictions: %w", err)
	}
	defer f.Close()

	preds, err := ReadPredictions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return preds, nil
}

// ReadPredictions parses CSV with the columns SecurityID, time and pred in any order. The time
// column holds either YYYYMMDD or unix seconds.
func ReadPredictions(r io.Reader) ([]types.Prediction, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, "SecurityID", "time", "pred")
	if err != nil {
		return nil, err
	}

	var preds []types.Prediction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}

		code, err := types.NormalizeCode(rec[cols[0]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}
		day, err := parsePredictionTime(rec[cols[1]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}
		pred, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: pred %q", line, ErrMalformedRow, rec[cols[2]])
		}
		preds = append(preds, types.Prediction{Code: code, Day: day, Pred: pred})
	}
	if len(preds) == 0 {
		return nil, ErrNoPredictions
	}
	return preds, nil
}

func parsePredictionTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if len(s) == len(types.DayLayout) {
		if day, err := types.ParseDay(s); err == nil {
			return day, nil
		}
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) {
		return time.Time{}, fmt.Errorf("time %q is neither YYYYMMDD nor unix seconds", raw)
	}
	return types.Day(time.Unix(int64(secs), 0).UTC()), nil
}

func ReadNamesFile(path string) ([]types.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open names: %w", err)
	}
	defer f.Close()

	stocks, err := ReadNames(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stocks, nil
}

// ReadNames parses CSV with the columns code and name.
func ReadNames(r io.Reader) ([]types.Stock, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, "code", "name")
	if err != nil {
		return nil, err
	}

	var stocks []types.Stock
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}
		code, err := types.NormalizeCode(rec[cols[0]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRow, err)
		}
		stocks = append(stocks, types.Stock{Code: code, Name: strings.TrimSpace(rec[cols[1]])})
	}
	return stocks, nil
}

// columnIndex locates the named columns in header, case-insensitively.
func columnIndex(header []string, names ...string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	out := make([]int, len(names))
	for i, name := range names {
		idx, ok := pos[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedRow, name)
		}
		out[i] = idx
	}
	return out, nil
}
