package strategy

import (
	"time"

	"tradebot/internal/indicators"
	"tradebot/pkg/exchange"
)

// MACross signals on a fast/slow moving-average crossover confirmed by
// above-average volume, the recent trend holding near the slow average, and
// RSI not already stretched in the trade's direction.
type MACross struct{}

// Name returns the policy name used in configuration and signal records.
func (MACross) Name() string { return "MACross" }

// Evaluate computes a signal from the candle window.
func (MACross) Evaluate(symbol string, candles []exchange.Candle, p Parameters) Signal {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	latest := candles[len(candles)-1]

	sig := Signal{
		Symbol:     symbol,
		Strategy:   "MACross",
		Action:     ActionNone,
		Price:      latest.Close,
		Confidence: 0.5,
		Timestamp:  time.Now(),
		Indicators: map[string]float64{},
	}

	var fastMA, slowMA []float64
	if p.MAType == "EMA" {
		fastMA = indicators.EMA(closes, p.FastMA)
		slowMA = indicators.EMA(closes, p.SlowMA)
	} else {
		fastMA = indicators.SMA(closes, p.FastMA)
		slowMA = indicators.SMA(closes, p.SlowMA)
	}
	if len(fastMA) < 2 || len(slowMA) < 2 {
		sig.Confidence = 0
		sig.Note = "insufficient data for moving averages"
		return sig
	}

	currentFast := fastMA[len(fastMA)-1]
	currentSlow := slowMA[len(slowMA)-1]
	previousFast := fastMA[len(fastMA)-2]
	previousSlow := slowMA[len(slowMA)-2]

	crossedAbove := previousFast <= previousSlow && currentFast > currentSlow
	crossedBelow := previousFast >= previousSlow && currentFast < currentSlow

	// Volume confirmation against the 20-candle average.
	volWindow := volumes
	if len(volWindow) > 20 {
		volWindow = volWindow[len(volWindow)-20:]
	}
	avgVolume := 0.0
	for _, v := range volWindow {
		avgVolume += v
	}
	avgVolume /= float64(len(volWindow))
	highVolume := latest.Volume > avgVolume*p.VolumeThreshold

	// Trend: the last 10 closes must hold near the slow average.
	trendWindow := closes
	if len(trendWindow) > 10 {
		trendWindow = trendWindow[len(trendWindow)-10:]
	}
	uptrend, downtrend := true, true
	for _, c := range trendWindow {
		if c < currentSlow*0.97 {
			uptrend = false
		}
		if c > currentSlow*1.03 {
			downtrend = false
		}
	}

	var latestRsi float64
	if rsi := indicators.RSI(closes, p.RsiPeriod); len(rsi) > 0 {
		latestRsi = rsi[len(rsi)-1]
	}

	sig.Indicators["FastMA"] = currentFast
	sig.Indicators["SlowMA"] = currentSlow
	sig.Indicators["RSI"] = latestRsi
	sig.Indicators["Volume"] = latest.Volume
	sig.Indicators["AvgVolume"] = avgVolume
	sig.Indicators["CrossAbove"] = boolIndicator(crossedAbove)
	sig.Indicators["CrossBelow"] = boolIndicator(crossedBelow)

	if crossedAbove && highVolume && uptrend && latestRsi < 70 {
		sig.Action = ActionBuy
		sig.Confidence = confidence(0.6, crossedAbove, highVolume, uptrend, latestRsi < 70)
		return sig
	}
	if crossedBelow && highVolume && downtrend && latestRsi > 30 {
		sig.Action = ActionSell
		sig.Confidence = confidence(0.6, crossedBelow, highVolume, downtrend, latestRsi > 30)
		return sig
	}
	return sig
}

func boolIndicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
