package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

// Drawdown is the largest decline from an earlier peak to a later trough.
// RecoveryIndex is -1 when equity never returned to the peak.
type Drawdown struct {
	MaxDrawdown   decimal.Decimal
	PeakIndex     int
	TroughIndex   int
	PeakDay       time.Time
	TroughDay     time.Time
	Recovered     bool
	RecoveryIndex int
	RecoveryDay   time.Time
}

// Performance scores an equity curve.
type Performance struct {
	PeriodStart      time.Time
	PeriodEnd        time.Time
	InitialEquity    decimal.Decimal
	FinalEquity      decimal.Decimal
	TotalReturn      decimal.Decimal
	AnnualizedReturn decimal.Decimal
	Drawdown         Drawdown
}

type Report struct {
	RunName     string
	TradingDays int
	Performance Performance

	// Trade ledger
	TotalTrades          int
	Buys                 int
	Sells                int
	RealizedPnL          decimal.Decimal
	AvgWin               decimal.Decimal
	AvgLoss              decimal.Decimal
	MaxConsecutiveLosses int

	// Risk-adjusted
	SharpeRatio decimal.Decimal

	// Costs
	TotalFees decimal.Decimal
}

// AnalyzePerformance computes return, annualized return and maximum drawdown of the curve.
func AnalyzePerformance(curve []types.EquityPoint) Performance {
	perf := Performance{
		TotalReturn:      decimal.Zero,
		AnnualizedReturn: decimal.Zero,
		Drawdown:         Drawdown{RecoveryIndex: -1},
	}
	if len(curve) == 0 {
		return perf
	}
	first, last := curve[0], curve[len(curve)-1]
	perf.PeriodStart = first.Day
	perf.PeriodEnd = last.Day
	perf.InitialEquity = first.Equity
	perf.FinalEquity = last.Equity
	perf.TotalReturn = calcTotalReturn(first.Equity, last.Equity)
	perf.AnnualizedReturn = calcAnnualizedReturn(first, last)
	perf.Drawdown = calcMaxDrawdown(curve)
	return perf
}

func calcTotalReturn(start, end decimal.Decimal) decimal.Decimal {
	if !start.IsPositive() {
		return decimal.Zero
	}
	return end.Div(start).Sub(decimal.NewFromInt(1))
}

// calcAnnualizedReturn compounds the total return over calendar days on a 365 day year.
func calcAnnualizedReturn(first, last types.EquityPoint) decimal.Decimal {
	if !first.Equity.IsPositive() {
		return decimal.Zero
	}
	days := math.Round(last.Day.Sub(first.Day).Hours() / 24)
	if days <= 0 {
		return decimal.Zero
	}
	ratio := last.Equity.Div(first.Equity).InexactFloat64()
	if ratio <= 0 {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromFloat(math.Pow(ratio, 365.0/days) - 1.0)
}

// calcMaxDrawdown tracks the running peak in one pass. The peak only moves on a strictly
// higher value and the best drawdown only on a strictly larger one, which keeps the earliest
// peak and then the earliest trough among ties.
func calcMaxDrawdown(curve []types.EquityPoint) Drawdown {
	dd := Drawdown{MaxDrawdown: decimal.Zero, RecoveryIndex: -1}
	if len(curve) == 0 {
		return dd
	}

	peakIdx := 0
	for j, point := range curve {
		if point.Equity.GreaterThan(curve[peakIdx].Equity) {
			peakIdx = j
		}
		peak := curve[peakIdx].Equity
		if !peak.IsPositive() {
			continue
		}
		cur := peak.Sub(point.Equity).Div(peak)
		if cur.GreaterThan(dd.MaxDrawdown) {
			dd.MaxDrawdown = cur
			dd.PeakIndex = peakIdx
			dd.TroughIndex = j
		}
	}
	if dd.MaxDrawdown.IsZero() {
		return dd
	}

	dd.PeakDay = curve[dd.PeakIndex].Day
	dd.TroughDay = curve[dd.TroughIndex].Day
	peak := curve[dd.PeakIndex].Equity
	for k := dd.TroughIndex; k < len(curve); k++ {
		if curve[k].Equity.GreaterThanOrEqual(peak) {
			dd.Recovered = true
			dd.RecoveryIndex = k
			dd.RecoveryDay = curve[k].Day
			break
		}
	}
	return dd
}

func (e *Engine) generateReport(curve []types.EquityPoint, fills []types.Fill) *Report {
	report := &Report{
		RunName:     e.runConfig.name,
		TradingDays: len(curve),
		TotalTrades: len(fills),
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		report.Performance = AnalyzePerformance(curve)
	}()
	go func() {
		defer wg.Done()
		report.Buys, report.Sells, report.TotalFees = calcFillTotals(fills)
	}()
	go func() {
		defer wg.Done()
		report.RealizedPnL, report.AvgWin, report.AvgLoss, report.MaxConsecutiveLosses = calcRealizedMetrics(fills)
	}()
	go func() {
		defer wg.Done()
		report.SharpeRatio = calcSharpeRatio(curve, e.reportingConfig.sharpeRiskFreeRate)
	}()
	wg.Wait()

	return report
}

func calcFillTotals(fills []types.Fill) (int, int, decimal.Decimal) {
	buys, sells := 0, 0
	fees := decimal.Zero
	for _, f := range fills {
		fees = fees.Add(f.Fees())
		switch f.Side {
		case types.SideTypeBuy:
			buys++
		case types.SideTypeSell:
			sells++
		}
	}
	return buys, sells, fees
}

// calcRealizedMetrics looks at sells only; each sell realizes P&L against the cost basis.
func calcRealizedMetrics(fills []types.Fill) (decimal.Decimal, decimal.Decimal, decimal.Decimal, int) {
	total := decimal.Zero
	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	winCount, lossCount := 0, 0
	maxLossStreak, currentStreak := 0, 0

	for _, f := range fills {
		if f.Side != types.SideTypeSell {
			continue
		}
		total = total.Add(f.RealizedPnL)
		switch {
		case f.RealizedPnL.IsPositive():
			sumWins = sumWins.Add(f.RealizedPnL)
			winCount++
			currentStreak = 0
		case f.RealizedPnL.IsNegative():
			sumLosses = sumLosses.Add(f.RealizedPnL.Abs())
			lossCount++
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		default:
			currentStreak = 0
		}
	}

	avgWin := decimal.Zero
	avgLoss := decimal.Zero
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return total, avgWin, avgLoss, maxLossStreak
}

func calcSharpeRatio(curve []types.EquityPoint, annualRiskFree decimal.Decimal) decimal.Decimal {
	monthlyReturns := getMonthlyReturns(curve)
	if len(monthlyReturns) < 2 {
		// Need at least 2 months to compute stddev
		return decimal.Zero
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	for _, r := range monthlyReturns {
		excess = append(excess, r.InexactFloat64()-rfMonthly)
	}

	var sum float64
	for _, x := range excess {
		sum += x
	}
	mean := sum / float64(len(excess))

	var varianceSum float64
	for _, x := range excess {
		diff := x - mean
		varianceSum += diff * diff
	}
	std := math.Sqrt(varianceSum / float64(len(excess)-1))
	if std == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat(mean / std * math.Sqrt(12.0))
}

// getMonthlyReturns returns the returns between consecutive month-end equity values.
func getMonthlyReturns(curve []types.EquityPoint) []decimal.Decimal {
	if len(curve) == 0 {
		return nil
	}

	points := append([]types.EquityPoint(nil), curve...)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })

	type monthKey struct {
		year  int
		month time.Month
	}
	var keys []monthKey
	monthEnd := make(map[monthKey]decimal.Decimal)
	for _, p := range points {
		y, m, _ := p.Day.Date()
		key := monthKey{year: y, month: m}
		if _, ok := monthEnd[key]; !ok {
			keys = append(keys, key)
		}
		monthEnd[key] = p.Equity
	}
	if len(keys) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(keys)-1)
	prev := monthEnd[keys[0]]
	for _, k := range keys[1:] {
		curr := monthEnd[k]
		if !prev.IsPositive() {
			prev = curr
			continue
		}
		returns = append(returns, curr.Div(prev).Sub(decimal.NewFromInt(1)))
		prev = curr
	}
	return returns
}

// Print writes the run summary. Values are rounded here and nowhere else.
func (r *Report) Print(w io.Writer) {
	perf := r.Performance
	dd := perf.Drawdown

	fmt.Fprintln(w, "===== Backtest Report =====")
	if r.RunName != "" {
		fmt.Fprintf(w, "Run:                   %s\n", r.RunName)
	}
	fmt.Fprintf(w, "Period:                %s to %s\n", formatDay(perf.PeriodStart), formatDay(perf.PeriodEnd))
	fmt.Fprintf(w, "Trading Days:          %d\n", r.TradingDays)
	fmt.Fprintf(w, "Initial Equity:        %s\n", perf.InitialEquity.StringFixed(2))
	fmt.Fprintf(w, "Final Equity:          %s\n", perf.FinalEquity.StringFixed(2))

	fmt.Fprintln(w, "\n-- Returns --")
	fmt.Fprintf(w, "Total Return:          %s%%\n", percent(perf.TotalReturn))
	fmt.Fprintf(w, "Annualized Return:     %s%%\n", percent(perf.AnnualizedReturn))

	fmt.Fprintln(w, "\n-- Drawdown --")
	fmt.Fprintf(w, "Max Drawdown:          %s%%\n", percent(dd.MaxDrawdown))
	if dd.MaxDrawdown.IsPositive() {
		fmt.Fprintf(w, "Drawdown Window:       %s to %s\n", formatDay(dd.PeakDay), formatDay(dd.TroughDay))
		if dd.Recovered {
			fmt.Fprintf(w, "Recovery Day:          %s\n", formatDay(dd.RecoveryDay))
		} else {
			fmt.Fprintln(w, "Recovery Day:          unrecovered")
		}
	}

	fmt.Fprintln(w, "\n-- Trades --")
	fmt.Fprintf(w, "Total Trades:          %d (%d buys, %d sells)\n", r.TotalTrades, r.Buys, r.Sells)
	fmt.Fprintf(w, "Realized P&L:          %s\n", r.RealizedPnL.StringFixed(2))
	fmt.Fprintf(w, "Avg Win:               %s\n", r.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", r.AvgLoss.StringFixed(2))
	fmt.Fprintf(w, "Max Consecutive Losses: %d\n", r.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", r.SharpeRatio.StringFixed(2))
	fmt.Fprintf(w, "Total Fees:            %s\n", r.TotalFees.StringFixed(2))

	fmt.Fprintln(w, "===========================")
}

func percent(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
