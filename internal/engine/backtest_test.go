package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

func TestBacktest_OrdersExecuteAtNextOpen(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2), testDay(3)}
	market := newMockMarket(days...)
	market.setPrices(days[0], "000001", "9.8", "10")
	market.setPrices(days[1], "000001", "10.5", "11")
	market.setPrices(days[2], "000001", "11", "12")
	for _, d := range days {
		market.setRanking(d, "000001")
	}

	strat := &scriptedStrategy{script: func(call int, _ types.MarketSnapshot) []types.Order {
		if call == 0 {
			return []types.Order{types.NewOrder("000001", 100, "top ranked")}
		}
		return nil
	}}

	result := runEngine(t, market, strat, NewPortfolioConfig(decimal.NewFromInt(150000), DefaultFeeSchedule()))

	if len(result.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(result.Fills))
	}
	fill := result.Fills[0]
	if !fill.Day.Equal(days[1]) {
		t.Errorf("fill day = %s, want %s", types.FormatDay(fill.Day), types.FormatDay(days[1]))
	}
	if !fill.Price.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("fill price = %s, want the next day's open 10.5", fill.Price)
	}
	if fill.Reason != "top ranked" {
		t.Errorf("fill reason = %q", fill.Reason)
	}
	if !result.Curve[0].Equity.Equal(decimal.NewFromInt(150000)) {
		t.Errorf("day one equity = %s, want untouched 150000", result.Curve[0].Equity)
	}

	// 150000 - (1050 + 5 + 0.0105)
	wantCash := decimal.RequireFromString("148944.9895")
	if !result.Curve[1].Cash.Equal(wantCash) {
		t.Errorf("day two cash = %s, want %s", result.Curve[1].Cash, wantCash)
	}
	wantEquity := wantCash.Add(decimal.NewFromInt(1100))
	if !result.Curve[1].Equity.Equal(wantEquity) {
		t.Errorf("day two equity = %s, want %s", result.Curve[1].Equity, wantEquity)
	}
}

func TestBacktest_SellsExecuteBeforeBuys(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2)}
	market := newMockMarket(days...)
	market.setPrices(days[0], "000001", "10", "10")
	market.setPrices(days[0], "600000", "50", "50")
	market.setPrices(days[1], "000001", "10", "10")
	market.setPrices(days[1], "600000", "50", "50")
	market.setRanking(days[0], "600000")

	// buy listed first; with no cash it only succeeds if the sell ran before it
	strat := &scriptedStrategy{script: func(call int, _ types.MarketSnapshot) []types.Order {
		if call == 0 {
			return []types.Order{
				types.NewOrder("600000", 100, "enter"),
				types.NewOrder("000001", -1000, "exit"),
			}
		}
		return nil
	}}

	pc := NewPortfolioConfig(decimal.Zero, DefaultFeeSchedule()).WithPositions([]types.Position{
		{Code: "000001", Amount: 1000, CostBasis: decimal.RequireFromString("10")},
	})
	result := runEngine(t, market, strat, pc)

	if len(result.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(result.Fills))
	}
	if result.Fills[0].Side != types.SideTypeSell || result.Fills[1].Side != types.SideTypeBuy {
		t.Fatalf("fill sides = %s, %s; want SELL then BUY", result.Fills[0].Side, result.Fills[1].Side)
	}
	if len(result.Holdings) != 1 || result.Holdings[0].Code != "600000" {
		t.Fatalf("holdings = %+v, want only 600000", result.Holdings)
	}
	// 10000 - 10.1 sell fees - 5005.05 buy debit
	if !result.Cash.Equal(decimal.RequireFromString("4984.85")) {
		t.Errorf("cash = %s, want 4984.85", result.Cash)
	}
}

func TestBacktest_RejectedOrdersDoNotAbort(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2), testDay(3)}
	market := newMockMarket(days...)
	market.setPrices(days[1], "000001", "10", "10")
	// 000002 has no open on day two

	strat := &scriptedStrategy{script: func(call int, _ types.MarketSnapshot) []types.Order {
		if call == 0 {
			return []types.Order{
				types.NewOrder("000001", 1_000_000, "too big"),
				types.NewOrder("000002", 100, "halted"),
				types.NewOrder("000003", -100, "not held"),
			}
		}
		return nil
	}}

	result := runEngine(t, market, strat, NewPortfolioConfig(decimal.NewFromInt(1000), DefaultFeeSchedule()))

	if len(result.Fills) != 0 {
		t.Errorf("fills = %d, want 0", len(result.Fills))
	}
	if len(result.Curve) != 3 {
		t.Fatalf("curve length = %d, want 3", len(result.Curve))
	}
	for _, p := range result.Curve {
		if !p.Equity.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("equity on %s = %s, want 1000", types.FormatDay(p.Day), p.Equity)
		}
	}
}

func TestBacktest_StrategyStateIsThreaded(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2), testDay(3), testDay(4)}
	strat := &scriptedStrategy{}

	runEngine(t, newMockMarket(days...), strat, NewPortfolioConfig(decimal.NewFromInt(100), DefaultFeeSchedule()))

	if len(strat.states) != len(days) {
		t.Fatalf("decisions = %d, want %d", len(strat.states), len(days))
	}
	for i, s := range strat.states {
		if s.Step != uint64(i) {
			t.Errorf("decision %d received step %d", i, s.Step)
		}
	}
}

func TestBacktest_LastDayOrdersReturnedAsNextOrders(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2)}
	market := newMockMarket(days...)
	market.setPrices(days[1], "000001", "10", "10")
	market.setRanking(days[1], "000001")

	strat := &scriptedStrategy{script: func(call int, _ types.MarketSnapshot) []types.Order {
		if call == 1 {
			return []types.Order{
				types.NewOrder("000001", 200, "tomorrow"),
				types.NewOrder("000002", 0, "nothing"),
			}
		}
		return nil
	}}

	result := runEngine(t, market, strat, NewPortfolioConfig(decimal.NewFromInt(100000), DefaultFeeSchedule()))

	if len(result.Fills) != 0 {
		t.Errorf("fills = %d, want 0", len(result.Fills))
	}
	if len(result.NextOrders) != 1 || result.NextOrders[0].Code != "000001" || result.NextOrders[0].Quantity != 200 {
		t.Errorf("next orders = %+v", result.NextOrders)
	}
}

func TestBacktest_BuildSnapshot(t *testing.T) {
	day := testDay(1)
	market := newMockMarket(day)
	market.setRanking(day, "000010", "000001", "000011", "000012", "000013")
	market.setClose(day, "000010", "5")
	market.setClose(day, "000001", "10")
	market.setClose(day, "000002", "20")
	market.setClose(day, "000012", "7")
	market.setClose(day, "000013", "8")
	market.st["000012"] = true
	// 000003 is held but has no close, 000011 is ranked but has no close

	p := newPortfolio(decimal.Zero, DefaultFeeSchedule(), market)
	err := p.seed([]types.Position{
		{Code: "000001", Amount: 100, CostBasis: decimal.RequireFromString("9")},
		{Code: "000002", Amount: 200, CostBasis: decimal.RequireFromString("21")},
		{Code: "000003", Amount: 300, CostBasis: decimal.RequireFromString("3")},
	}, decimal.Zero)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	b := newBacktester([]time.Time{day}, 4, false, market, &scriptedStrategy{}, p, noopJournal{}, discardLogger())

	snapshot := b.buildSnapshot(day)

	want := map[string]struct {
		rank   int
		amount int64
		st     bool
	}{
		"000010": {rank: 0},
		"000001": {rank: 1, amount: 100},
		"000002": {rank: types.Unranked, amount: 200},
		"000012": {rank: 3, st: true},
	}
	if len(snapshot) != len(want) {
		t.Fatalf("snapshot codes = %v, want %d entries", snapshotCodes(snapshot), len(want))
	}
	for code, w := range want {
		entry, ok := snapshot[code]
		if !ok {
			t.Errorf("missing %s", code)
			continue
		}
		if entry.Rank != w.rank || entry.Amount != w.amount || entry.SpecialTreatment != w.st {
			t.Errorf("%s = %+v, want %+v", code, entry, w)
		}
		if !entry.Price.IsPositive() {
			t.Errorf("%s has non-positive price %s", code, entry.Price)
		}
	}
	if e := snapshot["000001"]; !e.CostBasis.Equal(decimal.RequireFromString("9")) || !e.Held() {
		t.Errorf("held entry lost ledger data: %+v", e)
	}
}

func TestBacktest_JournalReceivesEveryDay(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2), testDay(3)}
	market := newMockMarket(days...)
	for _, d := range days {
		market.setPrices(d, "000001", "10", "10")
	}
	strat := &scriptedStrategy{script: func(call int, _ types.MarketSnapshot) []types.Order {
		if call == 0 {
			return []types.Order{types.NewOrder("000001", 100, "")}
		}
		return nil
	}}
	j := &recordingJournal{}

	eng, err := NewEngine(NewRunConfig("journal", time.Time{}, time.Time{}, 0, false),
		NewPortfolioConfig(decimal.NewFromInt(10000), DefaultFeeSchedule()), nil, market, strat, j, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(j.equity) != 3 {
		t.Errorf("equity points = %d, want 3", len(j.equity))
	}
	if len(j.fills) != 1 || !j.fills[0].Day.Equal(days[1]) {
		t.Errorf("journaled fills = %+v", j.fills)
	}
	if got := j.positions[types.FormatDay(days[0])]; len(got) != 0 {
		t.Errorf("day one positions = %+v, want none", got)
	}
	if got := j.positions[types.FormatDay(days[2])]; len(got) != 1 || got[0].Amount != 100 {
		t.Errorf("day three positions = %+v", got)
	}
}

func TestBacktest_JournalErrorsDoNotAbort(t *testing.T) {
	days := []time.Time{testDay(1), testDay(2)}
	j := &recordingJournal{err: errors.New("disk full")}

	eng, err := NewEngine(NewRunConfig("journal", time.Time{}, time.Time{}, 0, false),
		NewPortfolioConfig(decimal.NewFromInt(10000), DefaultFeeSchedule()), nil, newMockMarket(days...), &scriptedStrategy{}, j, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Curve) != 2 {
		t.Errorf("curve length = %d, want 2", len(result.Curve))
	}
}

func TestEngine_RunTwice(t *testing.T) {
	days := []time.Time{testDay(1)}
	eng, err := NewEngine(NewRunConfig("twice", time.Time{}, time.Time{}, 0, false),
		NewPortfolioConfig(decimal.NewFromInt(1), DefaultFeeSchedule()), nil, newMockMarket(days...), &scriptedStrategy{}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := eng.Run(); !errors.Is(err, ErrAlreadyRan) {
		t.Fatalf("second Run err = %v, want ErrAlreadyRan", err)
	}
}

func TestEngine_NoTradingDaysInRange(t *testing.T) {
	market := newMockMarket(testDay(1), testDay(2))
	eng, err := NewEngine(NewRunConfig("empty", testDay(10), testDay(20), 0, false),
		NewPortfolioConfig(decimal.NewFromInt(1), DefaultFeeSchedule()), nil, market, &scriptedStrategy{}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.Run(); !errors.Is(err, ErrNoTradingDays) {
		t.Fatalf("Run err = %v, want ErrNoTradingDays", err)
	}
}

func TestNewEngineValidation(t *testing.T) {
	market := newMockMarket(testDay(1))
	run := NewRunConfig("v", time.Time{}, time.Time{}, 0, false)

	if _, err := NewEngine(run, NewPortfolioConfig(decimal.NewFromInt(1), DefaultFeeSchedule()), nil, nil, &scriptedStrategy{}, nil, nil); !errors.Is(err, ErrMissingDependency) {
		t.Errorf("nil market err = %v, want ErrMissingDependency", err)
	}

	badFees := DefaultFeeSchedule()
	badFees.CommissionRate = decimal.NewFromInt(-1)
	if _, err := NewEngine(run, NewPortfolioConfig(decimal.NewFromInt(1), badFees), nil, market, &scriptedStrategy{}, nil, nil); !errors.Is(err, ErrInvalidFeeSchedule) {
		t.Errorf("bad fees err = %v, want ErrInvalidFeeSchedule", err)
	}

	if _, err := NewEngine(run, NewPortfolioConfig(decimal.NewFromInt(-5), DefaultFeeSchedule()), nil, market, &scriptedStrategy{}, nil, nil); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("negative cash err = %v, want ErrInvalidPosition", err)
	}
}

func TestTradingDaysInRange(t *testing.T) {
	days := []time.Time{testDay(5), testDay(1), testDay(3), testDay(3), testDay(9), testDay(7)}

	got := tradingDaysInRange(days, testDay(3), testDay(7))
	want := []time.Time{testDay(3), testDay(5), testDay(7)}
	if len(got) != len(want) {
		t.Fatalf("got %d days, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("day[%d] = %s, want %s", i, types.FormatDay(got[i]), types.FormatDay(want[i]))
		}
	}

	if all := tradingDaysInRange(days, time.Time{}, time.Time{}); len(all) != 5 {
		t.Errorf("open range kept %d days, want 5", len(all))
	}
}

func TestLoopStateString(t *testing.T) {
	if stateIdle.String() != "idle" || stateRunning.String() != "running" || stateFinished.String() != "finished" {
		t.Fatal("unexpected loop state names")
	}
}

// ----Helper functions----

func testDay(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runEngine(t *testing.T, market *mockMarket, strat strategy, pc *PortfolioConfig) *Result {
	t.Helper()
	eng, err := NewEngine(NewRunConfig("test", time.Time{}, time.Time{}, 0, false), pc, nil, market, strat, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := eng.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func snapshotCodes(s types.MarketSnapshot) []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	return codes
}

var (
	errMockNoPrice  = errors.New("mock: no price")
	errMockUnranked = errors.New("mock: unranked")
)

type mockMarket struct {
	days    []time.Time
	opens   map[string]decimal.Decimal
	closes  map[string]decimal.Decimal
	ranking map[string][]string
	st      map[string]bool
}

func newMockMarket(days ...time.Time) *mockMarket {
	return &mockMarket{
		days:    days,
		opens:   make(map[string]decimal.Decimal),
		closes:  make(map[string]decimal.Decimal),
		ranking: make(map[string][]string),
		st:      make(map[string]bool),
	}
}

func priceKey(day time.Time, code string) string {
	return types.FormatDay(day) + "|" + code
}

func (m *mockMarket) setOpen(day time.Time, code, price string) {
	m.opens[priceKey(day, code)] = decimal.RequireFromString(price)
}

func (m *mockMarket) setClose(day time.Time, code, price string) {
	m.closes[priceKey(day, code)] = decimal.RequireFromString(price)
}

func (m *mockMarket) setPrices(day time.Time, code, open, close string) {
	m.setOpen(day, code, open)
	m.setClose(day, code, close)
}

func (m *mockMarket) setRanking(day time.Time, codes ...string) {
	m.ranking[types.FormatDay(day)] = codes
}

func (m *mockMarket) Open(code string, day time.Time) (decimal.Decimal, error) {
	if p, ok := m.opens[priceKey(day, code)]; ok {
		return p, nil
	}
	return decimal.Zero, errMockNoPrice
}

func (m *mockMarket) Close(code string, day time.Time) (decimal.Decimal, error) {
	if p, ok := m.closes[priceKey(day, code)]; ok {
		return p, nil
	}
	return decimal.Zero, errMockNoPrice
}

func (m *mockMarket) Rank(code string, day time.Time) (int, error) {
	for i, c := range m.ranking[types.FormatDay(day)] {
		if c == code {
			return i, nil
		}
	}
	return types.Unranked, errMockUnranked
}

func (m *mockMarket) CodeAtRank(rank int, day time.Time) (string, bool) {
	codes := m.ranking[types.FormatDay(day)]
	if rank < 0 || rank >= len(codes) {
		return "", false
	}
	return codes[rank], true
}

func (m *mockMarket) TradingDays() []time.Time {
	return m.days
}

func (m *mockMarket) IsSpecialTreatment(code string) bool {
	return m.st[code]
}

type scriptedStrategy struct {
	calls  int
	states []types.StrategyState
	script func(call int, snapshot types.MarketSnapshot) []types.Order
}

func (s *scriptedStrategy) Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState) {
	s.states = append(s.states, state)
	call := s.calls
	s.calls++

	var orders []types.Order
	if s.script != nil {
		orders = s.script(call, snapshot)
	}
	return orders, types.StrategyState{Wait: state.Wait, Step: state.Step + 1}
}

type recordingJournal struct {
	err       error
	fills     []types.Fill
	equity    []types.EquityPoint
	positions map[string][]types.PositionRow
}

func (j *recordingJournal) RecordFills(fills []types.Fill) error {
	j.fills = append(j.fills, fills...)
	return j.err
}

func (j *recordingJournal) RecordEquity(point types.EquityPoint) error {
	j.equity = append(j.equity, point)
	return j.err
}

func (j *recordingJournal) RecordPositions(day time.Time, rows []types.PositionRow) error {
	if j.positions == nil {
		j.positions = make(map[string][]types.PositionRow)
	}
	j.positions[types.FormatDay(day)] = rows
	return j.err
}
