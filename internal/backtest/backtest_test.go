package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/strategy"
	"tradebot/pkg/config"
	"tradebot/pkg/exchange"
)

// scripted buys or sells when the window reaches an exact length, which
// makes simulation paths fully deterministic.
type scripted struct {
	buyLen  int
	sellLen int
}

func (scripted) Name() string { return "Scripted" }

func (s scripted) Evaluate(symbol string, candles []exchange.Candle, _ strategy.Parameters) strategy.Signal {
	sig := strategy.Signal{Symbol: symbol, Action: strategy.ActionNone}
	switch len(candles) {
	case s.buyLen:
		sig.Action = strategy.ActionBuy
	case s.sellLen:
		sig.Action = strategy.ActionSell
	}
	return sig
}

func hourlyCandles(closes []float64) []exchange.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		out[i] = exchange.Candle{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    10,
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return out
}

func flatCloses(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestSimulateRequiresHistory(t *testing.T) {
	candles := hourlyCandles(flatCloses(50, 100))
	_, err := Simulate("BTCUSDT", "1h", strategy.TripleConfirmation{}, candles,
		config.DefaultSettings().Trading, strategy.DefaultParameters())
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRisingSeriesProducesNoTrades(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}

	perf, err := Simulate("BTCUSDT", "1h", strategy.TripleConfirmation{}, hourlyCandles(closes),
		config.DefaultSettings().Trading, strategy.DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 0, perf.TotalTrades)
	assert.InDelta(t, 0, perf.TotalProfit, 1e-9)
}

func TestSimulateSignalRoundTrip(t *testing.T) {
	closes := flatCloses(120, 100)
	closes[109] = 104 // sell bar

	perf, err := Simulate("ETHUSDT", "1h", scripted{buyLen: 105, sellLen: 110}, hourlyCandles(closes),
		config.DefaultSettings().Trading, strategy.DefaultParameters())
	require.NoError(t, err)

	require.Equal(t, 1, perf.TotalTrades)
	assert.Equal(t, 1, perf.WinningTrades)
	assert.Equal(t, 0, perf.LosingTrades)

	// 2% of 10000 buys 2 units at 100; exit at 104 nets 8.
	trade := perf.Trades[0]
	assert.InDelta(t, 100, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 104, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 8, trade.ProfitLoss, 1e-9)
	assert.Equal(t, "Signal", trade.ExitReason)

	assert.InDelta(t, 8, perf.TotalProfit, 1e-9)
	assert.InDelta(t, 8, perf.ProfitFactor, 1e-9)
	assert.InDelta(t, 8.0/10008.0, perf.MaxDrawdown, 1e-9)
}

func TestSimulateStopLossExitsAtStopPrice(t *testing.T) {
	closes := flatCloses(120, 100)
	closes[107] = 97 // breaches the 2% stop at 98

	perf, err := Simulate("ETHUSDT", "1h", scripted{buyLen: 105}, hourlyCandles(closes),
		config.DefaultSettings().Trading, strategy.DefaultParameters())
	require.NoError(t, err)

	require.Equal(t, 1, perf.TotalTrades)
	assert.Equal(t, 1, perf.LosingTrades)

	trade := perf.Trades[0]
	assert.InDelta(t, 98, trade.ExitPrice, 1e-9) // stop price, not the 97 close
	assert.InDelta(t, -4, trade.ProfitLoss, 1e-9)
	assert.Equal(t, "Stop Loss", trade.ExitReason)
	assert.InDelta(t, 0, perf.ProfitFactor, 1e-9)
}

func TestSimulateForceClosesAtEnd(t *testing.T) {
	closes := flatCloses(120, 100)
	closes[119] = 102

	perf, err := Simulate("ETHUSDT", "1h", scripted{buyLen: 118}, hourlyCandles(closes),
		config.DefaultSettings().Trading, strategy.DefaultParameters())
	require.NoError(t, err)

	require.Equal(t, 1, perf.TotalTrades)
	trade := perf.Trades[0]
	assert.Equal(t, "End of Backtest", trade.ExitReason)
	assert.InDelta(t, 102, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 4, trade.ProfitLoss, 1e-9)
}

// rangeMarket serves candles filtered to the requested time range.
type rangeMarket struct {
	candles []exchange.Candle
}

func (m rangeMarket) GetKlines(_ context.Context, _, _ string, limit int) ([]exchange.Candle, error) {
	if limit > 0 && len(m.candles) > limit {
		return m.candles[len(m.candles)-limit:], nil
	}
	return m.candles, nil
}

func (m rangeMarket) GetPrice(context.Context, string) (float64, error) { return 0, nil }

func (m rangeMarket) GetKlinesRange(_ context.Context, _, _ string, start, end time.Time) ([]exchange.Candle, error) {
	var out []exchange.Candle
	for _, c := range m.candles {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestRunRangeFiltersByWindow(t *testing.T) {
	candles := hourlyCandles(flatCloses(200, 100))
	runner := NewRunner(rangeMarket{candles: candles}, config.DefaultSettings().Trading)

	start := candles[0].OpenTime
	perf, err := runner.RunRange(context.Background(), "BTCUSDT", "1h", "TripleConfirmation",
		start, start.Add(150*time.Hour), strategy.DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 0, perf.TotalTrades)
	assert.True(t, perf.End.Before(start.Add(150*time.Hour)))

	// A window with too few candles fails the same way a short history does.
	_, err = runner.RunRange(context.Background(), "BTCUSDT", "1h", "TripleConfirmation",
		start, start.Add(10*time.Hour), strategy.DefaultParameters())
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRunRangeRejectsInvertedWindow(t *testing.T) {
	runner := NewRunner(rangeMarket{}, config.DefaultSettings().Trading)

	now := time.Now()
	_, err := runner.RunRange(context.Background(), "BTCUSDT", "1h", "TripleConfirmation",
		now, now.Add(-time.Hour), strategy.DefaultParameters())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestSharpeRatioAnnualizesByHoldingPeriod(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{EntryTime: base, ExitTime: base.Add(day), ProfitLoss: 100, EntryPrice: 100, ExitPrice: 101},
		{EntryTime: base.Add(2 * day), ExitTime: base.Add(3 * day), ProfitLoss: 50, EntryPrice: 100, ExitPrice: 100.5},
	}

	// Returns 0.01 and 0.005: mean 0.0075, population stddev 0.0025,
	// one-day average holding period.
	got := sharpeRatio(trades, 10000)
	assert.InDelta(t, 3*math.Sqrt(252), got, 1e-9)
}
