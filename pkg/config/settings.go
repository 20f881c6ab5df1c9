package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full trading configuration loaded from YAML. Missing
// fields keep the defaults from DefaultSettings.
type Settings struct {
	Trading  TradingSettings  `yaml:"trading"`
	Risk     RiskSettings     `yaml:"risk"`
	Strategy StrategySettings `yaml:"strategy"`
	Pairs    []TradingPair    `yaml:"pairs"`
}

// TradingSettings governs the execution side.
type TradingSettings struct {
	RiskPerTrade           float64 `yaml:"risk_per_trade"`
	MinOrderAmount         float64 `yaml:"min_order_amount"`
	AllowMultiplePositions bool    `yaml:"allow_multiple_positions"`
	RefreshSeconds         int     `yaml:"refresh_seconds"`
	MinConfidence          float64 `yaml:"min_confidence"`
	DefaultStrategy        string  `yaml:"default_strategy"`
	Interval               string  `yaml:"interval"`
	UseStopLoss            bool    `yaml:"use_stop_loss"`
	UseTakeProfit          bool    `yaml:"use_take_profit"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	TakeProfitPct          float64 `yaml:"take_profit_pct"`
	UseDynamicStopLoss     bool    `yaml:"use_dynamic_stop_loss"`
}

// RefreshInterval returns the main loop cadence.
func (t TradingSettings) RefreshInterval() time.Duration {
	return time.Duration(t.RefreshSeconds) * time.Second
}

// RiskSettings governs portfolio-level limits.
type RiskSettings struct {
	MaxPortfolioExposure   float64 `yaml:"max_portfolio_exposure"`
	CriticalExposure       float64 `yaml:"critical_exposure"`
	MaxPositionSize        float64 `yaml:"max_position_size"`
	MaxVolatility          float64 `yaml:"max_volatility"`
	EmergencyExitThreshold float64 `yaml:"emergency_exit_threshold"`
	MaxPositionDays        int     `yaml:"max_position_days"`
	MaxDailyLoss           float64 `yaml:"max_daily_loss"`
	RestrictTradingHours   bool    `yaml:"restrict_trading_hours"`
	TradingSessionStart    string  `yaml:"trading_session_start"` // "HH:MM"
	TradingSessionEnd      string  `yaml:"trading_session_end"`   // "HH:MM"
}

// StrategySettings holds indicator parameters shared by the strategies.
// Custom carries strategy-specific overrides keyed by parameter name;
// values may be numeric or string knobs such as the MA flavor.
type StrategySettings struct {
	RsiPeriod        int     `yaml:"rsi_period"`
	RsiOversold      float64 `yaml:"rsi_oversold"`
	RsiOverbought    float64 `yaml:"rsi_overbought"`
	MacdFast         int     `yaml:"macd_fast"`
	MacdSlow         int     `yaml:"macd_slow"`
	MacdSignal       int     `yaml:"macd_signal"`
	BbPeriod         int     `yaml:"bb_period"`
	BbStdDev         float64 `yaml:"bb_std_dev"`
	BbWidthThreshold float64 `yaml:"bb_width_threshold"`

	Custom map[string]any `yaml:"custom"`
}

// TradingPair describes a tradable symbol and its exchange filters.
type TradingPair struct {
	Symbol            string  `yaml:"symbol"`
	BaseAsset         string  `yaml:"base_asset"`
	QuoteAsset        string  `yaml:"quote_asset"`
	PricePrecision    int     `yaml:"price_precision"`
	QuantityPrecision int     `yaml:"quantity_precision"`
	MinNotional       float64 `yaml:"min_notional"`
	MinQuantity       float64 `yaml:"min_quantity"`
	MaxQuantity       float64 `yaml:"max_quantity"`
	StepSize          float64 `yaml:"step_size"`
	TickSize          float64 `yaml:"tick_size"`
	Active            bool    `yaml:"active"`
}

// DefaultSettings returns the baseline configuration.
func DefaultSettings() Settings {
	return Settings{
		Trading: TradingSettings{
			RiskPerTrade:           0.02,
			MinOrderAmount:         10,
			AllowMultiplePositions: false,
			RefreshSeconds:         60,
			MinConfidence:          0.7,
			DefaultStrategy:        "TripleConfirmation",
			Interval:               "15m",
			UseStopLoss:            true,
			UseTakeProfit:          true,
			StopLossPct:            0.02,
			TakeProfitPct:          0.05,
			UseDynamicStopLoss:     true,
		},
		Risk: RiskSettings{
			MaxPortfolioExposure:   0.8,
			CriticalExposure:       0.9,
			MaxPositionSize:        0.2,
			MaxVolatility:          0.05,
			EmergencyExitThreshold: 0.1,
			MaxPositionDays:        7,
			MaxDailyLoss:           100,
			RestrictTradingHours:   false,
			TradingSessionStart:    "00:00",
			TradingSessionEnd:      "23:59",
		},
		Strategy: StrategySettings{
			RsiPeriod:        14,
			RsiOversold:      30,
			RsiOverbought:    70,
			MacdFast:         12,
			MacdSlow:         26,
			MacdSignal:       9,
			BbPeriod:         20,
			BbStdDev:         2.0,
			BbWidthThreshold: 0.05,
		},
	}
}

// LoadSettings reads the YAML settings file over the defaults. A missing
// file is not an error; defaults apply.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// ActivePairs filters the pair table to tradable entries.
func (s Settings) ActivePairs() []TradingPair {
	out := make([]TradingPair, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Pair looks up a pair by symbol.
func (s Settings) Pair(symbol string) (TradingPair, bool) {
	for _, p := range s.Pairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return TradingPair{}, false
}
