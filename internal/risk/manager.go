// Package risk enforces portfolio limits before entries and supervises open
// positions afterwards. All aggregates are recomputed from live prices and
// the position ledger on every call; nothing is cached between cycles.
package risk

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/notify"
	"tradebot/internal/position"
	"tradebot/pkg/config"
	"tradebot/pkg/exchange"
)

// majorAssets are converted into USDT when valuing the account.
var majorAssets = []string{"BTC", "ETH", "BNB"}

// Decision is the outcome of a pre-trade check. A disallowed entry is a
// normal result, not an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func reject(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Manager validates proposed entries and monitors open positions.
type Manager struct {
	trader   exchange.Trader
	market   exchange.MarketData
	ledger   *position.Ledger
	notifier notify.Notifier
	bus      *events.Bus

	cfg     config.RiskSettings
	trading config.TradingSettings
	pairs   []config.TradingPair

	now func() time.Time
}

// NewManager wires the risk manager. The bus and notifier receive alerts and
// emergency-exit reports.
func NewManager(trader exchange.Trader, market exchange.MarketData, ledger *position.Ledger,
	notifier notify.Notifier, bus *events.Bus, settings config.Settings) *Manager {
	return &Manager{
		trader:   trader,
		market:   market,
		ledger:   ledger,
		notifier: notifier,
		bus:      bus,
		cfg:      settings.Risk,
		trading:  settings.Trading,
		pairs:    settings.Pairs,
		now:      time.Now,
	}
}

// ValidateNewPosition runs the pre-trade checks in order and stops at the
// first failure. An internal error during a check disallows the entry rather
// than aborting the caller.
func (m *Manager) ValidateNewPosition(ctx context.Context, symbol string, price, quantity float64) Decision {
	exposure, err := m.PortfolioExposure(ctx)
	if err != nil {
		log.Printf("risk: exposure check failed for %s: %v", symbol, err)
		return reject("error validating position: %v", err)
	}
	if exposure >= m.cfg.MaxPortfolioExposure {
		return reject("portfolio exposure (%.2f%%) exceeds maximum (%.2f%%)",
			exposure*100, m.cfg.MaxPortfolioExposure*100)
	}

	totalBalance, err := m.TotalBalanceUSDT(ctx)
	if err != nil {
		log.Printf("risk: balance check failed for %s: %v", symbol, err)
		return reject("error validating position: %v", err)
	}
	positionPct := 0.0
	if totalBalance > 0 {
		positionPct = price * quantity / totalBalance
	}
	if positionPct > m.cfg.MaxPositionSize {
		return reject("position size (%.2f%%) exceeds maximum (%.2f%%)",
			positionPct*100, m.cfg.MaxPositionSize*100)
	}

	volatility, err := m.SymbolVolatility(ctx, symbol, "1d", 14)
	if err != nil {
		log.Printf("risk: volatility check failed for %s: %v", symbol, err)
		volatility = 0
	}
	if volatility > m.cfg.MaxVolatility {
		return reject("symbol volatility (%.2f%%) exceeds maximum (%.2f%%)",
			volatility*100, m.cfg.MaxVolatility*100)
	}

	held, err := m.ledger.HasOpen(ctx, symbol)
	if err != nil {
		log.Printf("risk: open-position check failed for %s: %v", symbol, err)
		return reject("error validating position: %v", err)
	}
	if held && !m.trading.AllowMultiplePositions {
		return reject("position already exists for this symbol and multiple positions are not allowed")
	}

	if !m.TradingSessionActive() {
		return reject("outside of allowed trading hours")
	}

	dailyPnl := m.DailyPnL(ctx)
	if dailyPnl < -m.cfg.MaxDailyLoss {
		return reject("daily loss limit reached (%.2f)", dailyPnl)
	}

	return Decision{Allowed: true, Reason: "position allowed"}
}

// PortfolioExposure returns the fraction of the account currently tied up in
// open positions, valued at live prices.
func (m *Manager) PortfolioExposure(ctx context.Context) (float64, error) {
	totalBalance, err := m.TotalBalanceUSDT(ctx)
	if err != nil {
		return 0, err
	}
	if totalBalance <= 0 {
		return 0, nil
	}

	open, err := m.ledger.OpenPositions(ctx)
	if err != nil {
		return 0, err
	}

	positionValue := 0.0
	for _, p := range open {
		price, err := m.market.GetPrice(ctx, p.Symbol)
		if err != nil {
			return 0, fmt.Errorf("price %s: %w", p.Symbol, err)
		}
		positionValue += p.Quantity * price
	}
	return positionValue / totalBalance, nil
}

// TotalBalanceUSDT values the account in USDT, converting the major assets
// at their current prices.
func (m *Manager) TotalBalanceUSDT(ctx context.Context) (float64, error) {
	usdt, err := m.trader.GetBalance(ctx, "USDT")
	if err != nil {
		return 0, err
	}
	total := usdt.Free + usdt.Locked

	for _, asset := range majorAssets {
		bal, err := m.trader.GetBalance(ctx, asset)
		if err != nil {
			return 0, err
		}
		amount := bal.Free + bal.Locked
		if amount <= 0 {
			continue
		}
		price, err := m.market.GetPrice(ctx, asset+"USDT")
		if err != nil {
			return 0, fmt.Errorf("price %sUSDT: %w", asset, err)
		}
		total += amount * price
	}
	return total, nil
}

// SymbolVolatility is the annualized standard deviation of log returns over
// the trailing window. Too little history yields zero, not an error.
func (m *Manager) SymbolVolatility(ctx context.Context, symbol, interval string, period int) (float64, error) {
	candles, err := m.market.GetKlines(ctx, symbol, interval, period*2)
	if err != nil {
		return 0, err
	}
	if len(candles) < period {
		log.Printf("risk: not enough data to compute volatility for %s", symbol)
		return 0, nil
	}

	recent := candles[len(candles)-period:]
	returns := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		returns = append(returns, math.Log(recent[i].Close/recent[i-1].Close))
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
	variance := sumSq / float64(len(returns)-1)

	return math.Sqrt(variance) * math.Sqrt(annualizationFactor(interval)), nil
}

// DailyPnL sums realized profit over positions closed today. Errors count as
// zero so a storage hiccup cannot block the loss-limit check open-ended.
func (m *Manager) DailyPnL(ctx context.Context) float64 {
	closed, err := m.ledger.ClosedForDate(ctx, m.now())
	if err != nil {
		log.Printf("risk: daily pnl lookup failed: %v", err)
		return 0
	}
	total := 0.0
	for _, p := range closed {
		total += p.Profit
	}
	return total
}

// TradingSessionActive reports whether the clock falls inside the configured
// session window. A start later than the end denotes an overnight session.
func (m *Manager) TradingSessionActive() bool {
	if !m.cfg.RestrictTradingHours {
		return true
	}

	cur := minutesOfDay(m.now().UTC())
	start := parseClock(m.cfg.TradingSessionStart, 0)
	end := parseClock(m.cfg.TradingSessionEnd, 23*60+59)

	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// PositionSize turns available capital into an order quantity, scaled down
// in volatile markets and up in quiet ones, then snapped to the pair's
// quantity filters.
func (m *Manager) PositionSize(ctx context.Context, symbol string, price, availableCapital float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("position size %s: non-positive price", symbol)
	}

	base := availableCapital * m.trading.RiskPerTrade

	volatility, err := m.SymbolVolatility(ctx, symbol, "1d", 14)
	if err != nil {
		log.Printf("risk: sizing volatility lookup failed for %s: %v", symbol, err)
		volatility = 0
	}

	// 5% reference volatility; adjustment is clamped so a quiet or wild
	// market can at most double or halve the position.
	adjustment := 0.05 / math.Max(volatility, 0.01)
	adjustment = math.Min(math.Max(adjustment, 0.5), 2.0)

	quantity := base * adjustment / price

	for _, pair := range m.pairs {
		if pair.Symbol != symbol {
			continue
		}
		scale := math.Pow(10, float64(pair.QuantityPrecision))
		quantity = math.Floor(quantity*scale) / scale
		if quantity < pair.MinQuantity {
			quantity = pair.MinQuantity
		}
		if pair.MaxQuantity > 0 && quantity > pair.MaxQuantity {
			quantity = pair.MaxQuantity
		}
		break
	}
	return quantity, nil
}

// annualizationFactor is the approximate number of intervals in a year.
func annualizationFactor(interval string) float64 {
	switch interval {
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	case "15m":
		return 365 * 24 * 4
	case "30m":
		return 365 * 24 * 2
	case "1h":
		return 365 * 24
	case "4h":
		return 365 * 6
	case "1d":
		return 365
	case "1w":
		return 52
	case "1M":
		return 12
	default:
		return 365
	}
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// parseClock reads "HH:MM" into minutes of day, falling back on garbage.
func parseClock(s string, fallback int) int {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return fallback
	}
	return minutesOfDay(t)
}
