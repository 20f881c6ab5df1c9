package strategy

import (
	"time"

	"tradebot/internal/indicators"
	"tradebot/pkg/exchange"
)

// TripleConfirmation requires agreement between RSI, a MACD cross and the
// Bollinger bands before it signals.
//
// Buy: RSI oversold, MACD crossing above its signal line, and price either
// hugging the lower band or the bands squeezed tight. Sell mirrors it
// against the upper band, without the squeeze escape hatch.
type TripleConfirmation struct{}

// Name returns the policy name used in configuration and signal records.
func (TripleConfirmation) Name() string { return "TripleConfirmation" }

// Evaluate computes a signal from the candle window. Callers guarantee at
// least 100 candles.
func (TripleConfirmation) Evaluate(symbol string, candles []exchange.Candle, p Parameters) Signal {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	lastClose := closes[len(closes)-1]

	sig := Signal{
		Symbol:     symbol,
		Strategy:   "TripleConfirmation",
		Action:     ActionNone,
		Price:      lastClose,
		Timestamp:  time.Now(),
		Indicators: map[string]float64{},
	}

	rsi := indicators.RSI(closes, p.RsiPeriod)
	macd, signalLine := indicators.MACD(closes, p.MacdFast, p.MacdSlow, p.MacdSignal)
	upper, middle, lower := indicators.BollingerBands(closes, p.BbPeriod, p.BbStdDev)
	if len(rsi) == 0 || len(macd) == 0 || len(signalLine) == 0 || len(upper) == 0 {
		sig.Note = "insufficient data for indicators"
		return sig
	}

	latestRsi := rsi[len(rsi)-1]
	latestMacd := macd[len(macd)-1]
	latestSignal := signalLine[len(signalLine)-1]
	latestUpper := upper[len(upper)-1]
	latestMiddle := middle[len(middle)-1]
	latestLower := lower[len(lower)-1]
	bbWidth := (latestUpper - latestLower) / latestMiddle

	crossReady := len(macd) > 2 && len(signalLine) >= 2

	rsiOversold := latestRsi < p.RsiOversold
	macdCrossUp := crossReady &&
		macd[len(macd)-2] <= signalLine[len(signalLine)-2] &&
		latestMacd > latestSignal
	priceNearLowerBand := lastClose < latestLower*1.01
	bbSqueeze := bbWidth < p.BbWidthThreshold

	rsiOverbought := latestRsi > p.RsiOverbought
	macdCrossDown := crossReady &&
		macd[len(macd)-2] >= signalLine[len(signalLine)-2] &&
		latestMacd < latestSignal
	priceNearUpperBand := lastClose > latestUpper*0.99

	sig.Indicators["RSI"] = latestRsi
	sig.Indicators["MACD"] = latestMacd
	sig.Indicators["Signal"] = latestSignal
	sig.Indicators["UpperBand"] = latestUpper
	sig.Indicators["MiddleBand"] = latestMiddle
	sig.Indicators["LowerBand"] = latestLower
	sig.Indicators["BBWidth"] = bbWidth

	if rsiOversold && macdCrossUp && (priceNearLowerBand || bbSqueeze) {
		sig.Action = ActionBuy
		sig.Confidence = confidence(0.5, rsiOversold, macdCrossUp, priceNearLowerBand, bbSqueeze)
	} else if rsiOverbought && macdCrossDown && priceNearUpperBand {
		sig.Action = ActionSell
		sig.Confidence = confidence(0.5, rsiOverbought, macdCrossDown, priceNearUpperBand)
	}
	return sig
}

// confidence scales with the number of satisfied conditions, capped at 0.95.
func confidence(base float64, conditions ...bool) float64 {
	count := 0
	for _, c := range conditions {
		if c {
			count++
		}
	}
	v := base + float64(count)*0.1
	if v > 0.95 {
		v = 0.95
	}
	return v
}
