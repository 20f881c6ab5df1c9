package order

import (
	"context"
	"log"
	"time"

	"tradebot/internal/events"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange"
)

// ManageOpenOrdersAndPositions is the per-cycle reconciliation pass, run
// separately from signal execution. It first folds exchange-side order
// status changes into the store, then checks every open position against
// its protective levels.
func (e *Executor) ManageOpenOrdersAndPositions(ctx context.Context) error {
	log.Printf("order: managing open orders and positions")

	openOrders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return err
	}
	for _, o := range openOrders {
		updated, err := e.trader.GetOrder(ctx, o.Symbol, o.ID)
		if err != nil {
			log.Printf("order: status check failed for %s on %s: %v", o.ID, o.Symbol, err)
			continue
		}
		if string(updated.Status) == o.Status {
			continue
		}

		if err := e.store.UpdateOrderStatus(ctx, o.ID, string(updated.Status), updated.ExecutedQuantity, time.Now()); err != nil {
			log.Printf("order: persisting status for %s failed: %v", o.ID, err)
			continue
		}
		log.Printf("order: %s on %s moved %s -> %s", o.ID, o.Symbol, o.Status, updated.Status)

		filled := updated.Status == exchange.StatusFilled || updated.Status == exchange.StatusPartial
		if filled && updated.Side == exchange.SideSell {
			e.closeHeldPosition(ctx, updated.Symbol, updated.Price)
		}
	}

	open, err := e.ledger.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range open {
		price, err := e.market.GetPrice(ctx, p.Symbol)
		if err != nil {
			log.Printf("order: price for %s unavailable, skipping position %d: %v", p.Symbol, p.ID, err)
			continue
		}

		switch {
		case protectiveStopHit(p, price):
			log.Printf("order: stop loss hit for %s position %d at %.8f", p.Symbol, p.ID, price)
			e.closeWithMarketOrder(ctx, p)
		case protectiveTakeHit(p, price):
			log.Printf("order: take profit hit for %s position %d at %.8f", p.Symbol, p.ID, price)
			e.closeWithMarketOrder(ctx, p)
		default:
			log.Printf("order: position %d on %s entry=%.8f current=%.8f pnl=%.4f",
				p.ID, p.Symbol, p.EntryPrice, price, e.ledger.PnL(p, price))
		}
	}
	return nil
}

func protectiveStopHit(p db.Position, price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Type == db.PositionShort {
		return price >= p.StopLoss
	}
	return price <= p.StopLoss
}

func protectiveTakeHit(p db.Position, price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Type == db.PositionShort {
		return price <= p.TakeProfit
	}
	return price >= p.TakeProfit
}

// closeHeldPosition settles the first open position on the symbol after a
// sell order filled on the exchange side.
func (e *Executor) closeHeldPosition(ctx context.Context, symbol string, price float64) {
	open, err := e.ledger.OpenBySymbol(ctx, symbol)
	if err != nil {
		log.Printf("order: looking up position for %s failed: %v", symbol, err)
		return
	}
	if len(open) == 0 {
		return
	}
	if _, err := e.ledger.Close(ctx, open[0].ID, price); err != nil {
		log.Printf("order: closing position %d failed: %v", open[0].ID, err)
		return
	}
	e.bus.Publish(events.EventPositionClosed, symbol)
	log.Printf("order: position closed for %s at %.8f", symbol, price)
}

// closeWithMarketOrder exits a position whose protective level was breached.
func (e *Executor) closeWithMarketOrder(ctx context.Context, p db.Position) {
	side := exchange.SideSell
	if p.Type == db.PositionShort {
		side = exchange.SideBuy
	}

	order, err := e.trader.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   p.Symbol,
		Side:     side,
		Type:     exchange.OrderTypeMarket,
		Quantity: p.Quantity,
	})
	if err != nil {
		log.Printf("order: closing position %d with market order failed: %v", p.ID, err)
		e.notifier.NotifyError("closing position failed for "+p.Symbol, err)
		return
	}
	if order.Status != exchange.StatusFilled && order.Status != exchange.StatusPartial {
		log.Printf("order: close order for position %d not filled: %s", p.ID, order.Status)
		return
	}

	if _, err := e.ledger.Close(ctx, p.ID, order.Price); err != nil {
		log.Printf("order: settling position %d failed: %v", p.ID, err)
		return
	}
	e.saveOrder(ctx, order, p.ID)
	e.notifier.NotifyOrderExecuted(order)
	e.bus.Publish(events.EventPositionClosed, p.Symbol)
	log.Printf("order: position %d closed at %.8f (%s)", p.ID, order.Price, order.Status)
}
