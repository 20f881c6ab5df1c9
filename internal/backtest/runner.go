// Package backtest replays a strategy over historical candles with a
// simplified execution model and a single simulated capital balance.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tradebot/internal/strategy"
	"tradebot/pkg/config"
	"tradebot/pkg/exchange"
)

// ErrInsufficientData is returned when the candle history is too short to
// run a meaningful simulation.
var ErrInsufficientData = errors.New("not enough historical data for backtest")

const initialCapital = 10000.0

// Runner fetches history and drives the simulation.
type Runner struct {
	market  exchange.MarketData
	trading config.TradingSettings
}

func NewRunner(market exchange.MarketData, trading config.TradingSettings) *Runner {
	return &Runner{market: market, trading: trading}
}

// RangeSource is the optional capability of a market source to fetch candles
// by time range rather than by count.
type RangeSource interface {
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]exchange.Candle, error)
}

// Run backtests a named strategy over the most recent candles.
func (r *Runner) Run(ctx context.Context, symbol, interval, strategyName string, limit int, params strategy.Parameters) (Performance, error) {
	candles, err := r.market.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return Performance{}, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	return Simulate(symbol, interval, policyFor(strategyName), candles, r.trading, params)
}

// RunRange backtests a named strategy over the candles between start and end.
func (r *Runner) RunRange(ctx context.Context, symbol, interval, strategyName string, start, end time.Time, params strategy.Parameters) (Performance, error) {
	src, ok := r.market.(RangeSource)
	if !ok {
		return Performance{}, fmt.Errorf("backtest %s: market source cannot fetch candle ranges", symbol)
	}
	if !end.After(start) {
		return Performance{}, fmt.Errorf("backtest %s: range end %s not after start %s", symbol, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	candles, err := src.GetKlinesRange(ctx, symbol, interval, start, end)
	if err != nil {
		return Performance{}, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	return Simulate(symbol, interval, policyFor(strategyName), candles, r.trading, params)
}

func policyFor(name string) strategy.Policy {
	if strings.EqualFold(name, "macross") {
		return strategy.MACross{}
	}
	return strategy.TripleConfirmation{}
}

// Simulate walks the candles in order, re-evaluating the policy on the
// growing window at each step, the same way the live engine sees all history
// up to now. Protective exits are checked before new entries on every bar;
// anything still held at the last candle is force-closed.
func Simulate(symbol, interval string, policy strategy.Policy, candles []exchange.Candle,
	trading config.TradingSettings, params strategy.Parameters) (Performance, error) {
	if len(candles) < strategy.MinCandles {
		return Performance{}, fmt.Errorf("backtest %s: %d candles: %w", symbol, len(candles), ErrInsufficientData)
	}

	perf := Performance{
		Symbol:   symbol,
		Strategy: policy.Name(),
		Interval: interval,
		Start:    candles[0].OpenTime,
		End:      candles[len(candles)-1].OpenTime,
	}

	available := initialCapital
	highest, lowest := initialCapital, initialCapital
	totalWins, totalLosses := 0.0, 0.0

	inPosition := false
	positionSize := 0.0
	entryPrice := 0.0
	var entryTime time.Time

	closeTrade := func(exitPrice float64, exitTime time.Time, reason string) {
		profit := positionSize * (exitPrice - entryPrice)
		available += positionSize * exitPrice
		inPosition = false

		perf.Trades = append(perf.Trades, Trade{
			EntryTime:  entryTime,
			EntryPrice: entryPrice,
			ExitTime:   exitTime,
			ExitPrice:  exitPrice,
			ProfitLoss: profit,
			ExitReason: reason,
		})
		if profit > 0 {
			perf.WinningTrades++
			totalWins += profit
		} else {
			perf.LosingTrades++
			totalLosses += -profit
		}
	}

	for i := strategy.MinCandles; i < len(candles); i++ {
		window := candles[:i+1]
		current := window[len(window)-1]
		price := current.Close

		// Protective exits settle at the exact stop/take price, not the
		// close that breached it.
		if inPosition {
			stopPrice := entryPrice * (1 - trading.StopLossPct)
			takePrice := entryPrice * (1 + trading.TakeProfitPct)
			if trading.UseStopLoss && price <= stopPrice {
				closeTrade(stopPrice, current.OpenTime, "Stop Loss")
			} else if trading.UseTakeProfit && price >= takePrice {
				closeTrade(takePrice, current.OpenTime, "Take Profit")
			}
		}

		sig := policy.Evaluate(symbol, window, params)
		if !inPosition && sig.Action == strategy.ActionBuy {
			riskAmount := available * trading.RiskPerTrade
			positionSize = riskAmount / price
			entryPrice = price
			entryTime = current.OpenTime
			available -= riskAmount
			inPosition = true
		} else if inPosition && sig.Action == strategy.ActionSell {
			closeTrade(price, current.OpenTime, "Signal")
		}

		capital := available
		if inPosition {
			capital += positionSize * price
		}
		if capital > highest {
			highest = capital
		}
		if capital < lowest {
			lowest = capital
		}
	}

	if inPosition {
		last := candles[len(candles)-1]
		closeTrade(last.Close, last.OpenTime, "End of Backtest")
	}

	perf.finalize(initialCapital, available, highest, lowest, totalWins, totalLosses)
	log.Printf("backtest: %s %s complete: %d trades, %.2f profit",
		symbol, perf.Strategy, perf.TotalTrades, perf.TotalProfit)
	return perf, nil
}
