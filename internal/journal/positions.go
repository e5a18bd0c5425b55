package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// LoadPositionsFile reads a positions snapshot for a warm start.
func LoadPositionsFile(path string) ([]types.Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPositions(f)
}

// LoadPositions accepts either a snapshot written by the CSV journal (header row starting with
// "code") or headerless "name,code,amount,buy_price" rows. Zero amounts are skipped.
func LoadPositions(r io.Reader) ([]types.Position, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	codeCol, amountCol, costCol := 1, 2, 3
	if first := records[0]; len(first) > 0 && strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(first[0]), "\ufeff"), "code") {
		codeCol, amountCol, costCol = 0, 1, 2
		records = records[1:]
	}

	seen := make(map[string]bool, len(records))
	positions := make([]types.Position, 0, len(records))
	for i, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		pos, err := parsePosition(rec, codeCol, amountCol, costCol)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedSnapshot, i+1, err)
		}
		if pos.Amount == 0 {
			continue
		}
		if seen[pos.Code] {
			return nil, fmt.Errorf("%w: row %d: duplicate code %s", ErrMalformedSnapshot, i+1, pos.Code)
		}
		seen[pos.Code] = true
		positions = append(positions, pos)
	}
	return positions, nil
}

func parsePosition(rec []string, codeCol, amountCol, costCol int) (types.Position, error) {
	if len(rec) <= costCol {
		return types.Position{}, fmt.Errorf("expected at least %d columns, got %d", costCol+1, len(rec))
	}
	code, err := types.NormalizeCode(rec[codeCol])
	if err != nil {
		return types.Position{}, err
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(rec[amountCol]), 10, 64)
	if err != nil {
		return types.Position{}, err
	}
	if amount < 0 {
		return types.Position{}, errors.New("negative amount")
	}
	cost, err := decimal.NewFromString(strings.TrimSpace(rec[costCol]))
	if err != nil {
		return types.Position{}, err
	}
	if cost.IsNegative() {
		return types.Position{}, errors.New("negative cost basis")
	}
	return types.Position{Code: code, Amount: amount, CostBasis: cost}, nil
}
