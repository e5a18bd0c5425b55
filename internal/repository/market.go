package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingPrice  = errors.New("missing price")
	ErrUnranked      = errors.New("security not ranked")
	ErrNoBars        = errors.New("no daily bars found in datasource")
	ErrNoPredictions = errors.New("no predictions found in datasource")
	ErrMalformedRow  = errors.New("malformed row")
)

type barKey struct {
	code string
	day  string
}

// MarketData is the in-memory price and rank oracle of a run. It is read only once built.
type MarketData struct {
	bars    map[barKey]types.DailyBar
	ranking map[string][]string
	ranks   map[string]map[string]int
	stocks  map[string]types.Stock
	days    []time.Time
	logger  *slog.Logger
}

// NewMarketData indexes bars and predictions. Ranks are 0-based by descending prediction with
// ties broken by code; NaN predictions are dropped. The trading days are the prediction days.
func NewMarketData(bars []types.DailyBar, preds []types.Prediction, stocks []types.Stock, logger *slog.Logger) (*MarketData, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &MarketData{
		bars:    make(map[barKey]types.DailyBar, len(bars)),
		ranking: make(map[string][]string),
		ranks:   make(map[string]map[string]int),
		stocks:  make(map[string]types.Stock, len(stocks)),
		logger:  logger,
	}
	for _, b := range bars {
		m.bars[barKey{code: b.Code, day: types.FormatDay(b.Day)}] = b
	}
	for _, s := range stocks {
		m.stocks[s.Code] = s
	}

	byDay := make(map[string][]types.Prediction)
	dayTimes := make(map[string]time.Time)
	dropped := 0
	for _, p := range preds {
		if math.IsNaN(p.Pred) {
			dropped++
			continue
		}
		key := types.FormatDay(p.Day)
		byDay[key] = append(byDay[key], p)
		dayTimes[key] = types.Day(p.Day)
	}
	if dropped > 0 {
		logger.Warn("dropped NaN predictions", "count", dropped)
	}
	if len(byDay) == 0 {
		return nil, ErrNoPredictions
	}

	for key, dayPreds := range byDay {
		sort.Slice(dayPreds, func(i, j int) bool {
			if dayPreds[i].Pred != dayPreds[j].Pred {
				return dayPreds[i].Pred > dayPreds[j].Pred
			}
			return dayPreds[i].Code < dayPreds[j].Code
		})
		codes := make([]string, 0, len(dayPreds))
		index := make(map[string]int, len(dayPreds))
		for _, p := range dayPreds {
			if _, dup := index[p.Code]; dup {
				continue
			}
			index[p.Code] = len(codes)
			codes = append(codes, p.Code)
		}
		m.ranking[key] = codes
		m.ranks[key] = index
		m.days = append(m.days, dayTimes[key])
	}
	sort.Slice(m.days, func(i, j int) bool { return m.days[i].Before(m.days[j]) })

	return m, nil
}

// Open returns the opening price. A missing or non-positive price yields zero and ErrMissingPrice.
func (m *MarketData) Open(code string, day time.Time) (decimal.Decimal, error) {
	bar, ok := m.bars[barKey{code: code, day: types.FormatDay(day)}]
	if !ok || !bar.Open.IsPositive() {
		m.logger.Debug("missing open price", "code", code, "day", types.FormatDay(day))
		return decimal.Zero, fmt.Errorf("open of %s on %s: %w", code, types.FormatDay(day), ErrMissingPrice)
	}
	return bar.Open, nil
}

// Close returns the closing price. A missing or non-positive price yields zero and ErrMissingPrice.
func (m *MarketData) Close(code string, day time.Time) (decimal.Decimal, error) {
	bar, ok := m.bars[barKey{code: code, day: types.FormatDay(day)}]
	if !ok || !bar.Close.IsPositive() {
		m.logger.Debug("missing close price", "code", code, "day", types.FormatDay(day))
		return decimal.Zero, fmt.Errorf("close of %s on %s: %w", code, types.FormatDay(day), ErrMissingPrice)
	}
	return bar.Close, nil
}

// Rank returns the 0-based rank of code on day, or types.Unranked and ErrUnranked.
func (m *MarketData) Rank(code string, day time.Time) (int, error) {
	rank, ok := m.ranks[types.FormatDay(day)][code]
	if !ok {
		return types.Unranked, fmt.Errorf("%s on %s: %w", code, types.FormatDay(day), ErrUnranked)
	}
	return rank, nil
}

func (m *MarketData) CodeAtRank(rank int, day time.Time) (string, bool) {
	codes := m.ranking[types.FormatDay(day)]
	if rank < 0 || rank >= len(codes) {
		return "", false
	}
	return codes[rank], true
}

// TopRanked returns up to k codes of day in rank order.
func (m *MarketData) TopRanked(day time.Time, k int) []string {
	codes := m.ranking[types.FormatDay(day)]
	if k < len(codes) {
		codes = codes[:k]
	}
	return append([]string(nil), codes...)
}

// TradingDays returns the known days in increasing order.
func (m *MarketData) TradingDays() []time.Time {
	return append([]time.Time(nil), m.days...)
}

func (m *MarketData) Name(code string) string {
	return m.stocks[code].Name
}

func (m *MarketData) IsSpecialTreatment(code string) bool {
	s, ok := m.stocks[code]
	return ok && s.IsSpecialTreatment()
}
