package strategy

import (
	"log"
	"time"

	"tradebot/pkg/config"
)

// Action is the outcome of evaluating a strategy.
type Action string

const (
	ActionNone Action = "NONE"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is the result of one strategy evaluation. Indicators carries the
// values the decision was based on, for logging and inspection; boolean
// conditions are recorded as 0/1.
type Signal struct {
	Symbol     string
	Interval   string
	Strategy   string
	Action     Action
	Price      float64
	Confidence float64
	Timestamp  time.Time
	Indicators map[string]float64
	Note       string
}

// Parameters configures the strategies. Extra carries values for parameter
// names no strategy claims directly.
type Parameters struct {
	RsiPeriod     int
	RsiOversold   float64
	RsiOverbought float64

	MacdFast   int
	MacdSlow   int
	MacdSignal int

	BbPeriod         int
	BbStdDev         float64
	BbWidthThreshold float64

	StopLossPct   float64
	TakeProfitPct float64

	FastMA          int
	SlowMA          int
	MAType          string // "SMA" or "EMA"
	VolumeThreshold float64

	Extra map[string]any
}

// DefaultParameters returns the baseline parameter set.
func DefaultParameters() Parameters {
	return Parameters{
		RsiPeriod:        14,
		RsiOversold:      30,
		RsiOverbought:    70,
		MacdFast:         12,
		MacdSlow:         26,
		MacdSignal:       9,
		BbPeriod:         20,
		BbStdDev:         2.0,
		BbWidthThreshold: 0.05,
		StopLossPct:      0.02,
		TakeProfitPct:    0.05,
		FastMA:           9,
		SlowMA:           21,
		MAType:           "EMA",
		VolumeThreshold:  1.5,
	}
}

// FromSettings builds Parameters from the loaded configuration.
func FromSettings(s config.StrategySettings, t config.TradingSettings) Parameters {
	p := DefaultParameters()
	if s.RsiPeriod > 0 {
		p.RsiPeriod = s.RsiPeriod
	}
	if s.RsiOversold > 0 {
		p.RsiOversold = s.RsiOversold
	}
	if s.RsiOverbought > 0 {
		p.RsiOverbought = s.RsiOverbought
	}
	if s.MacdFast > 0 {
		p.MacdFast = s.MacdFast
	}
	if s.MacdSlow > 0 {
		p.MacdSlow = s.MacdSlow
	}
	if s.MacdSignal > 0 {
		p.MacdSignal = s.MacdSignal
	}
	if s.BbPeriod > 0 {
		p.BbPeriod = s.BbPeriod
	}
	if s.BbStdDev > 0 {
		p.BbStdDev = s.BbStdDev
	}
	if s.BbWidthThreshold > 0 {
		p.BbWidthThreshold = s.BbWidthThreshold
	}
	if t.StopLossPct > 0 {
		p.StopLossPct = t.StopLossPct
	}
	if t.TakeProfitPct > 0 {
		p.TakeProfitPct = t.TakeProfitPct
	}

	p.Configure(s.Custom)
	return p
}

// Configure applies named parameter values. Every known parameter is bound
// explicitly; unknown names land in Extra. No reflection: a misspelled name
// cannot silently bind to the wrong field.
func (p *Parameters) Configure(values map[string]any) {
	for name, value := range values {
		switch name {
		case "RsiPeriod":
			p.RsiPeriod = toInt(value)
		case "RsiOversold":
			p.RsiOversold = toFloat(value)
		case "RsiOverbought":
			p.RsiOverbought = toFloat(value)
		case "MacdFastPeriod":
			p.MacdFast = toInt(value)
		case "MacdSlowPeriod":
			p.MacdSlow = toInt(value)
		case "MacdSignalPeriod":
			p.MacdSignal = toInt(value)
		case "BbPeriod":
			p.BbPeriod = toInt(value)
		case "BbStdDev":
			p.BbStdDev = toFloat(value)
		case "BbWidthThreshold":
			p.BbWidthThreshold = toFloat(value)
		case "StopLossPercentage":
			p.StopLossPct = toFloat(value)
		case "TakeProfitPercentage":
			p.TakeProfitPct = toFloat(value)
		case "FastMA":
			p.FastMA = toInt(value)
		case "SlowMA":
			p.SlowMA = toInt(value)
		case "MAType":
			if s, ok := value.(string); ok {
				p.MAType = s
			}
		case "VolumeThreshold":
			p.VolumeThreshold = toFloat(value)
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[name] = value
			log.Printf("strategy: unbound parameter %q kept as custom", name)
		}
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}
