// Package order turns approved signals into exchange orders and keeps the
// persisted order book and position ledger in step with the venue.
package order

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"tradebot/internal/events"
	"tradebot/internal/notify"
	"tradebot/internal/position"
	"tradebot/internal/strategy"
	"tradebot/pkg/config"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange"
)

// Executor places orders for signals that cleared risk checks.
type Executor struct {
	trader   exchange.Trader
	market   exchange.MarketData
	store    *db.Store
	ledger   *position.Ledger
	notifier notify.Notifier
	bus      *events.Bus

	trading config.TradingSettings
	pairs   []config.TradingPair
}

// NewExecutor wires the order executor.
func NewExecutor(trader exchange.Trader, market exchange.MarketData, store *db.Store,
	ledger *position.Ledger, notifier notify.Notifier, bus *events.Bus, settings config.Settings) *Executor {
	return &Executor{
		trader:   trader,
		market:   market,
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		bus:      bus,
		trading:  settings.Trading,
		pairs:    settings.Pairs,
	}
}

func rejected(symbol string) exchange.Order {
	return exchange.Order{Symbol: symbol, Status: exchange.StatusRejected}
}

// ExecuteSignal turns a signal into exchange orders. A signal the executor
// declines (low confidence, duplicate entry, sell with nothing held) comes
// back as a Rejected order result, not an error; errors are reserved for
// exchange and storage failures.
func (e *Executor) ExecuteSignal(ctx context.Context, sig strategy.Signal) (exchange.Order, error) {
	log.Printf("order: executing %s signal for %s at %.8f (confidence %.2f)",
		sig.Action, sig.Symbol, sig.Price, sig.Confidence)

	if sig.Confidence < e.trading.MinConfidence {
		log.Printf("order: confidence %.2f below threshold %.2f, skipping %s",
			sig.Confidence, e.trading.MinConfidence, sig.Symbol)
		e.bus.Publish(events.EventOrderRejected, sig)
		return rejected(sig.Symbol), nil
	}

	switch sig.Action {
	case strategy.ActionBuy:
		return e.executeBuy(ctx, sig)
	case strategy.ActionSell:
		return e.executeSell(ctx, sig)
	default:
		log.Printf("order: no action in signal for %s", sig.Symbol)
		return rejected(sig.Symbol), nil
	}
}

func (e *Executor) executeBuy(ctx context.Context, sig strategy.Signal) (exchange.Order, error) {
	held, err := e.ledger.HasOpen(ctx, sig.Symbol)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("execute buy %s: %w", sig.Symbol, err)
	}
	if held && !e.trading.AllowMultiplePositions {
		log.Printf("order: position already exists for %s, skipping buy", sig.Symbol)
		e.bus.Publish(events.EventOrderRejected, sig)
		return rejected(sig.Symbol), nil
	}

	quantity, err := e.OrderQuantity(ctx, sig.Symbol, sig.Price)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("execute buy %s: %w", sig.Symbol, err)
	}

	order, err := e.trader.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          exchange.SideBuy,
		Type:          exchange.OrderTypeMarket,
		Quantity:      quantity,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.notifier.NotifyError("buy order failed for "+sig.Symbol, err)
		return exchange.Order{}, fmt.Errorf("execute buy %s: %w", sig.Symbol, err)
	}

	if order.Status == exchange.StatusFilled || order.Status == exchange.StatusPartial {
		filledQty := order.ExecutedQuantity
		if filledQty <= 0 {
			filledQty = quantity
		}
		pos, err := e.ledger.Open(ctx, sig.Symbol, db.PositionLong, order.Price, filledQty, sig.Strategy)
		if err != nil {
			return exchange.Order{}, fmt.Errorf("execute buy %s: %w", sig.Symbol, err)
		}
		e.saveOrder(ctx, order, pos.ID)
		e.placeProtectiveOrders(ctx, sig.Symbol, order.Price, filledQty, pos.ID)
		e.bus.Publish(events.EventPositionOpened, pos)
	} else {
		e.saveOrder(ctx, order, 0)
	}

	e.notifier.NotifyOrderExecuted(order)
	e.bus.Publish(events.EventOrderExecuted, order)
	log.Printf("order: executed for %s: %s at %.8f, status %s", sig.Symbol, order.Side, order.Price, order.Status)
	return order, nil
}

func (e *Executor) executeSell(ctx context.Context, sig strategy.Signal) (exchange.Order, error) {
	open, err := e.ledger.OpenBySymbol(ctx, sig.Symbol)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("execute sell %s: %w", sig.Symbol, err)
	}
	if len(open) == 0 {
		log.Printf("order: no position exists for %s, skipping sell", sig.Symbol)
		e.bus.Publish(events.EventOrderRejected, sig)
		return rejected(sig.Symbol), nil
	}
	pos := open[0]

	order, err := e.trader.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          exchange.SideSell,
		Type:          exchange.OrderTypeMarket,
		Quantity:      pos.Quantity,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		e.notifier.NotifyError("sell order failed for "+sig.Symbol, err)
		return exchange.Order{}, fmt.Errorf("execute sell %s: %w", sig.Symbol, err)
	}

	if order.Status == exchange.StatusFilled || order.Status == exchange.StatusPartial {
		if _, err := e.ledger.Close(ctx, pos.ID, order.Price); err != nil {
			return exchange.Order{}, fmt.Errorf("execute sell %s: %w", sig.Symbol, err)
		}
		e.bus.Publish(events.EventPositionClosed, sig.Symbol)
	}

	e.saveOrder(ctx, order, pos.ID)
	e.notifier.NotifyOrderExecuted(order)
	e.bus.Publish(events.EventOrderExecuted, order)
	log.Printf("order: executed for %s: %s at %.8f, status %s", sig.Symbol, order.Side, order.Price, order.Status)
	return order, nil
}

// placeProtectiveOrders puts the stop-loss and take-profit sells on the book
// for a freshly opened long. A failed protective order is reported but does
// not unwind the entry.
func (e *Executor) placeProtectiveOrders(ctx context.Context, symbol string, entryPrice, quantity float64, positionID int64) {
	if e.trading.UseStopLoss && e.trading.StopLossPct > 0 {
		stopPrice := entryPrice * (1 - e.trading.StopLossPct)
		order, err := e.trader.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:        symbol,
			Side:          exchange.SideSell,
			Type:          exchange.OrderTypeStopLoss,
			Quantity:      quantity,
			Price:         stopPrice,
			StopPrice:     stopPrice,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			log.Printf("order: stop-loss placement failed for %s: %v", symbol, err)
			e.notifier.NotifyError("stop-loss placement failed for "+symbol, err)
		} else {
			e.saveOrder(ctx, order, positionID)
		}
	}

	if e.trading.UseTakeProfit && e.trading.TakeProfitPct > 0 {
		takePrice := entryPrice * (1 + e.trading.TakeProfitPct)
		order, err := e.trader.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:        symbol,
			Side:          exchange.SideSell,
			Type:          exchange.OrderTypeTakeProfit,
			Quantity:      quantity,
			Price:         takePrice,
			StopPrice:     takePrice,
			ClientOrderID: uuid.NewString(),
		})
		if err != nil {
			log.Printf("order: take-profit placement failed for %s: %v", symbol, err)
			e.notifier.NotifyError("take-profit placement failed for "+symbol, err)
		} else {
			e.saveOrder(ctx, order, positionID)
		}
	}
}

// OrderQuantity sizes a market buy from the quote balance: a fixed risk
// fraction, floored at the minimum order amount, truncated to the pair's
// quantity precision.
func (e *Executor) OrderQuantity(ctx context.Context, symbol string, price float64) (float64, error) {
	pair, ok := e.pairFor(symbol)
	if !ok {
		return 0, fmt.Errorf("trading pair %s not configured", symbol)
	}
	if price <= 0 {
		return 0, fmt.Errorf("order quantity %s: non-positive price", symbol)
	}

	balance, err := e.trader.GetBalance(ctx, pair.QuoteAsset)
	if err != nil {
		return 0, fmt.Errorf("order quantity %s: %w", symbol, err)
	}

	investment := balance.Free * e.trading.RiskPerTrade
	if investment < e.trading.MinOrderAmount {
		log.Printf("order: investment %.2f %s below minimum %.2f, adjusting up",
			investment, pair.QuoteAsset, e.trading.MinOrderAmount)
		investment = e.trading.MinOrderAmount
	}

	quantity := investment / price
	if quantity < pair.MinQuantity {
		log.Printf("order: quantity %.8f below pair minimum %.8f for %s, adjusting up",
			quantity, pair.MinQuantity, symbol)
		quantity = pair.MinQuantity
	}

	scale := math.Pow(10, float64(pair.QuantityPrecision))
	quantity = math.Floor(quantity*scale) / scale
	if quantity < pair.MinQuantity {
		return 0, fmt.Errorf("order quantity %s: %.8f below pair minimum after truncation", symbol, quantity)
	}

	log.Printf("order: calculated quantity for %s: %.8f at price %.8f", symbol, quantity, price)
	return quantity, nil
}

func (e *Executor) pairFor(symbol string) (config.TradingPair, bool) {
	for _, p := range e.pairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return config.TradingPair{}, false
}

// saveOrder persists the exchange view of an order. Persistence failures are
// logged; the order already exists on the venue and must not be retried.
func (e *Executor) saveOrder(ctx context.Context, o exchange.Order, positionID int64) {
	row := db.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Price:         o.Price,
		Quantity:      o.Quantity,
		ExecutedQty:   o.ExecutedQuantity,
		Status:        string(o.Status),
		StopPrice:     o.StopPrice,
		Commission:    o.Commission,
		PositionID:    positionID,
		CreatedAt:     o.CreateTime,
		UpdatedAt:     o.UpdateTime,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if err := e.store.SaveOrder(ctx, &row); err != nil {
		log.Printf("order: persisting order %s failed: %v", o.ID, err)
	}
}
