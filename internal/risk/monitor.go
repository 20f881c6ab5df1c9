package risk

import (
	"context"
	"log"
	"sort"

	"tradebot/internal/events"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange"
)

// marketProxySymbol stands in for overall market conditions.
const marketProxySymbol = "BTCUSDT"

// MonitorPositions walks all open positions once: emergency exits first,
// then trailing-stop adjustment, then a portfolio exposure check. Problems
// with a single position are logged and the walk continues.
func (m *Manager) MonitorPositions(ctx context.Context) error {
	open, err := m.ledger.OpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	volatile := m.marketVolatile(ctx)
	trending := m.marketTrending(ctx)
	log.Printf("risk: monitoring %d positions (market volatile=%v trending=%v)", len(open), volatile, trending)

	for _, p := range open {
		price, err := m.market.GetPrice(ctx, p.Symbol)
		if err != nil {
			log.Printf("risk: price for %s unavailable, skipping position %d: %v", p.Symbol, p.ID, err)
			continue
		}

		pnl := m.ledger.PnL(p, price)
		pnlPct := 0.0
		if p.EntryPrice > 0 {
			pnlPct = pnl / (p.EntryPrice * p.Quantity)
		}

		if reason := m.emergencyExitReason(p, pnlPct, volatile); reason != "" {
			log.Printf("risk: emergency exit for position %d on %s: %s", p.ID, p.Symbol, reason)
			m.bus.Publish(events.EventRiskAlert, events.RiskAlert{Symbol: p.Symbol, Reason: reason})
			m.exitPosition(ctx, p)
			continue
		}

		if m.trading.UseDynamicStopLoss && p.StopLoss > 0 {
			newStop := dynamicStopLoss(p, price, pnlPct)
			if newStop != p.StopLoss {
				if err := m.ledger.UpdateLimits(ctx, p.ID, newStop, p.TakeProfit); err != nil {
					log.Printf("risk: stop update failed for position %d: %v", p.ID, err)
					continue
				}
				log.Printf("risk: stop loss for position %d on %s moved %.8f -> %.8f",
					p.ID, p.Symbol, p.StopLoss, newStop)
			}
		}
	}

	return m.checkExposure(ctx)
}

// emergencyExitReason returns an explanation when the position must be
// closed immediately, or "" to keep it.
func (m *Manager) emergencyExitReason(p db.Position, pnlPct float64, marketVolatile bool) string {
	if pnlPct < -m.cfg.EmergencyExitThreshold {
		return "extreme loss"
	}
	// Lock in gains when the whole market turns wild.
	if marketVolatile && pnlPct > 0.01 {
		return "market volatility while in profit"
	}
	age := m.now().Sub(p.OpenTime)
	if age.Hours() > float64(m.cfg.MaxPositionDays)*24 && pnlPct < 0 {
		return "stale losing position"
	}
	return ""
}

// exitPosition closes out a position with a market order. Failures are
// reported to the notifier; the position stays open for the next pass.
func (m *Manager) exitPosition(ctx context.Context, p db.Position) {
	side := exchange.SideSell
	if p.Type == db.PositionShort {
		side = exchange.SideBuy
	}

	order, err := m.trader.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   p.Symbol,
		Side:     side,
		Type:     exchange.OrderTypeMarket,
		Quantity: p.Quantity,
	})
	if err != nil {
		log.Printf("risk: emergency exit order failed for position %d on %s: %v", p.ID, p.Symbol, err)
		m.notifier.NotifyError("emergency exit failed for "+p.Symbol, err)
		return
	}

	if order.Status != exchange.StatusFilled && order.Status != exchange.StatusPartial {
		log.Printf("risk: emergency exit for position %d on %s not filled: %s", p.ID, p.Symbol, order.Status)
		return
	}

	if _, err := m.ledger.Close(ctx, p.ID, order.Price); err != nil {
		log.Printf("risk: closing position %d after exit failed: %v", p.ID, err)
		return
	}
	m.notifier.NotifyOrderExecuted(order)
	m.bus.Publish(events.EventPositionClosed, p.Symbol)
	log.Printf("risk: emergency exit executed for position %d on %s at %.8f", p.ID, p.Symbol, order.Price)
}

// dynamicStopLoss trails the stop on long positions: break-even from 2%
// profit, half the open gain from 5%. The stop never moves down.
func dynamicStopLoss(p db.Position, currentPrice, pnlPct float64) float64 {
	if p.Type != db.PositionLong {
		return p.StopLoss
	}

	newStop := p.StopLoss
	if pnlPct >= 0.02 {
		newStop = p.EntryPrice
	}
	if pnlPct >= 0.05 {
		newStop = p.EntryPrice + (currentPrice-p.EntryPrice)*0.5
	}
	if newStop < p.StopLoss {
		newStop = p.StopLoss
	}
	return newStop
}

// marketVolatile checks hourly volatility of the proxy symbol over the last
// day against a fixed 4% ceiling.
func (m *Manager) marketVolatile(ctx context.Context) bool {
	volatility, err := m.SymbolVolatility(ctx, marketProxySymbol, "1h", 24)
	if err != nil {
		log.Printf("risk: market volatility check failed: %v", err)
		return false
	}
	return volatility > 0.04
}

// marketTrending reports a strong directional move: five of the last six
// four-hour proxy candles in the same direction.
func (m *Manager) marketTrending(ctx context.Context) bool {
	candles, err := m.market.GetKlines(ctx, marketProxySymbol, "4h", 6)
	if err != nil {
		log.Printf("risk: market trend check failed: %v", err)
		return false
	}
	if len(candles) < 6 {
		return false
	}

	up, down := 0, 0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			up++
		case candles[i].Close < candles[i-1].Close:
			down++
		}
	}
	return up >= 5 || down >= 5
}

// checkExposure recomputes portfolio exposure after the per-position pass
// and rebalances when it crosses the critical threshold.
func (m *Manager) checkExposure(ctx context.Context) error {
	exposure, err := m.PortfolioExposure(ctx)
	if err != nil {
		return err
	}
	log.Printf("risk: portfolio exposure %.2f%%", exposure*100)

	if exposure <= m.cfg.CriticalExposure {
		return nil
	}

	log.Printf("risk: critical exposure threshold exceeded: %.2f%% > %.2f%%",
		exposure*100, m.cfg.CriticalExposure*100)
	m.bus.Publish(events.EventRiskAlert, events.RiskAlert{Reason: "critical portfolio exposure"})
	return m.reduceExposure(ctx)
}

// reduceExposure closes the worst performers until exposure drops to 80% of
// the configured maximum.
func (m *Manager) reduceExposure(ctx context.Context) error {
	open, err := m.ledger.OpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	type ranked struct {
		pos db.Position
		pnl float64
	}
	candidates := make([]ranked, 0, len(open))
	for _, p := range open {
		price, err := m.market.GetPrice(ctx, p.Symbol)
		if err != nil {
			log.Printf("risk: price for %s unavailable during rebalance: %v", p.Symbol, err)
			continue
		}
		candidates = append(candidates, ranked{pos: p, pnl: m.ledger.PnL(p, price)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].pnl < candidates[j].pnl })

	target := m.cfg.MaxPortfolioExposure * 0.8
	exposure, err := m.PortfolioExposure(ctx)
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if exposure <= target {
			break
		}
		m.exitPosition(ctx, c.pos)

		exposure, err = m.PortfolioExposure(ctx)
		if err != nil {
			return err
		}
		log.Printf("risk: closed position %d on %s, exposure now %.2f%%", c.pos.ID, c.pos.Symbol, exposure*100)
	}
	return nil
}
