package backtest

import (
	"math"
	"time"
)

// Trade is a single simulated round trip.
type Trade struct {
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	ProfitLoss float64
	ExitReason string
}

// ReturnPct is the trade's price return in percent.
func (t Trade) ReturnPct() float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	return (t.ExitPrice/t.EntryPrice - 1) * 100
}

// Duration is the holding period.
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// Performance aggregates a backtest run.
type Performance struct {
	Symbol   string
	Strategy string
	Interval string
	Start    time.Time
	End      time.Time

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalProfit   float64
	AverageProfit float64
	MaxDrawdown   float64
	ProfitFactor  float64
	SharpeRatio   float64

	Trades []Trade
}

// finalize fills the derived metrics from the recorded trades and the
// capital high/low water marks.
func (p *Performance) finalize(initialCapital, finalCapital, highest, lowest, totalWins, totalLosses float64) {
	p.TotalTrades = len(p.Trades)
	p.TotalProfit = finalCapital - initialCapital

	if p.TotalTrades > 0 {
		sum := 0.0
		for _, t := range p.Trades {
			sum += t.ProfitLoss
		}
		p.AverageProfit = sum / float64(p.TotalTrades)
	}

	if highest > 0 {
		p.MaxDrawdown = (highest - lowest) / highest
	}

	if totalLosses > 0 {
		p.ProfitFactor = totalWins / totalLosses
	} else {
		p.ProfitFactor = totalWins
	}

	p.SharpeRatio = sharpeRatio(p.Trades, initialCapital)
}

// sharpeRatio annualizes per-trade returns by the average holding period,
// assuming 252 trading days a year.
func sharpeRatio(trades []Trade, initialCapital float64) float64 {
	if len(trades) == 0 || initialCapital <= 0 {
		return 0
	}

	returns := make([]float64, len(trades))
	holdingDays := 0.0
	for i, t := range trades {
		returns[i] = t.ProfitLoss / initialCapital
		holdingDays += t.Duration().Hours() / 24
	}
	avgHoldingDays := holdingDays / float64(len(trades))
	if avgHoldingDays <= 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sumSq := 0.0
	for _, r := range returns {
		sumSq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sumSq / float64(len(returns)))
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(252/avgHoldingDays)
}
