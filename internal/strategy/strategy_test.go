package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/pkg/config"
	"tradebot/pkg/exchange"
)

func candlesFrom(closes []float64, volumes []float64) []exchange.Candle {
	out := make([]exchange.Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		vol := 10.0
		if volumes != nil {
			vol = volumes[i]
		}
		out[i] = exchange.Candle{
			OpenTime:  base.Add(time.Duration(i) * 15 * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: vol,
		}
	}
	return out
}

// Small periods keep the fixtures hand-checkable: with RsiPeriod=2,
// MACD(2,3,2) and BbPeriod=3 the indicator values for an 8-candle series can
// be derived on paper.
func tinyParams() Parameters {
	p := DefaultParameters()
	p.Configure(map[string]any{
		"RsiPeriod":        2,
		"MacdFastPeriod":   2,
		"MacdSlowPeriod":   3,
		"MacdSignalPeriod": 2,
		"BbPeriod":         3,
	})
	return p
}

func TestTripleConfirmationBuy(t *testing.T) {
	p := tinyParams()
	p.RsiOversold = 50
	p.BbWidthThreshold = 100 // squeeze condition always satisfied

	// Flat, then a run-up and a pullback: RSI at 40, MACD crossing above
	// its signal line on the final candle.
	candles := candlesFrom([]float64{10, 10, 10, 10, 11, 12, 13, 11.5}, nil)
	sig := TripleConfirmation{}.Evaluate("BTCUSDT", candles, p)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.InDelta(t, 40.0, sig.Indicators["RSI"], 1e-9)
	assert.Greater(t, sig.Indicators["MACD"], sig.Indicators["Signal"])
}

func TestTripleConfirmationSell(t *testing.T) {
	p := tinyParams()
	p.RsiOverbought = 50
	p.BbStdDev = 0 // upper band collapses onto the middle

	// Mirror image of the buy fixture: MACD crossing below on the bounce.
	candles := candlesFrom([]float64{10, 10, 10, 10, 9, 8, 7, 8.5}, nil)
	sig := TripleConfirmation{}.Evaluate("BTCUSDT", candles, p)

	assert.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.InDelta(t, 60.0, sig.Indicators["RSI"], 1e-9)
}

func TestTripleConfirmationFlatSeriesIsNone(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100
	}
	sig := TripleConfirmation{}.Evaluate("BTCUSDT", candlesFrom(closes, nil), DefaultParameters())

	assert.Equal(t, ActionNone, sig.Action)
	assert.Equal(t, 0.0, sig.Confidence)
	assert.Contains(t, sig.Indicators, "BBWidth")
}

func TestTripleConfirmationRisingSeriesIsNone(t *testing.T) {
	// Overbought RSI alone must not trigger a sell without a MACD cross.
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	sig := TripleConfirmation{}.Evaluate("BTCUSDT", candlesFrom(closes, nil), DefaultParameters())
	assert.Equal(t, ActionNone, sig.Action)
}

func TestMACrossBuy(t *testing.T) {
	p := DefaultParameters()
	p.Configure(map[string]any{
		"RsiPeriod": 2,
		"FastMA":    2,
		"SlowMA":    3,
		"MAType":    "SMA",
	})

	closes := []float64{10, 10, 10, 10, 10, 10.5}
	volumes := []float64{10, 10, 10, 10, 10, 30}
	sig := MACross{}.Evaluate("ETHUSDT", candlesFrom(closes, volumes), p)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 0.95, sig.Confidence, 1e-9) // all four conditions, capped
	assert.Equal(t, 1.0, sig.Indicators["CrossAbove"])
}

func TestMACrossNoSignalWithoutVolume(t *testing.T) {
	p := DefaultParameters()
	p.Configure(map[string]any{
		"RsiPeriod": 2,
		"FastMA":    2,
		"SlowMA":    3,
		"MAType":    "SMA",
	})

	// Same crossover, but on unremarkable volume.
	closes := []float64{10, 10, 10, 10, 10, 10.5}
	sig := MACross{}.Evaluate("ETHUSDT", candlesFrom(closes, nil), p)

	assert.Equal(t, ActionNone, sig.Action)
	assert.Equal(t, 0.5, sig.Confidence)
}

func TestConfigureBindsKnownAndKeepsUnknown(t *testing.T) {
	p := DefaultParameters()
	p.Configure(map[string]any{
		"RsiPeriod":     21,
		"BbStdDev":      2.5,
		"MAType":        "SMA",
		"SomethingElse": 1.25,
	})

	assert.Equal(t, 21, p.RsiPeriod)
	assert.Equal(t, 2.5, p.BbStdDev)
	assert.Equal(t, "SMA", p.MAType)
	require.Contains(t, p.Extra, "SomethingElse")
	assert.Equal(t, 1.25, p.Extra["SomethingElse"])
}

func TestFromSettingsBindsCustomStringKnobs(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Strategy.Custom = map[string]any{
		"MAType": "SMA",
		"FastMA": 5,
	}

	p := FromSettings(settings.Strategy, settings.Trading)
	assert.Equal(t, "SMA", p.MAType)
	assert.Equal(t, 5, p.FastMA)
}

type fakeMarket struct {
	candles []exchange.Candle
	price   float64
}

func (f fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	return f.candles, nil
}

func (f fakeMarket) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if f.price == 0 {
		return 0, errors.New("no ticker")
	}
	return f.price, nil
}

func TestGenerateSignalRequiresWindow(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100
	}
	svc := NewService(fakeMarket{candles: candlesFrom(closes, nil)}, nil, DefaultParameters(), "TripleConfirmation")

	sig, err := svc.GenerateSignal(context.Background(), "BTCUSDT", "15m")
	require.NoError(t, err)
	assert.Equal(t, ActionNone, sig.Action)
	assert.NotEmpty(t, sig.Note)
}

func TestGenerateSignalUsesLivePrice(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100
	}
	svc := NewService(fakeMarket{candles: candlesFrom(closes, nil), price: 101.5}, nil, DefaultParameters(), "TripleConfirmation")

	sig, err := svc.GenerateSignal(context.Background(), "BTCUSDT", "15m")
	require.NoError(t, err)
	assert.Equal(t, 101.5, sig.Price)
}

func TestUnknownPolicyFallsBack(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100
	}
	svc := NewService(fakeMarket{candles: candlesFrom(closes, nil)}, nil, DefaultParameters(), "DoesNotExist")

	sig := svc.Evaluate("BTCUSDT", candlesFrom(closes, nil))
	assert.Equal(t, "TripleConfirmation", sig.Strategy)
}
