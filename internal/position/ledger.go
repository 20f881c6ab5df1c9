// Package position tracks open and closed holdings and their realized and
// unrealized profit.
package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tradebot/pkg/config"
	"tradebot/pkg/db"
)

var (
	ErrPositionClosed = errors.New("position already closed")
	ErrFutureDate     = errors.New("date is in the future")
)

// Ledger is the single writer for position state. All opens, closes and
// limit updates funnel through it; concurrent callers are serialized.
type Ledger struct {
	store   *db.Store
	trading config.TradingSettings
	mu      sync.Mutex
}

// NewLedger creates a ledger over the store.
func NewLedger(store *db.Store, trading config.TradingSettings) *Ledger {
	return &Ledger{store: store, trading: trading}
}

// Open records a new position. Protective levels are derived from the entry
// price when stop-loss/take-profit are enabled.
func (l *Ledger) Open(ctx context.Context, symbol, posType string, entryPrice, quantity float64, strategy string) (db.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := db.Position{
		Symbol:     symbol,
		Type:       posType,
		Status:     db.PositionOpen,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Strategy:   strategy,
		OpenTime:   time.Now(),
	}
	if l.trading.UseStopLoss {
		if posType == db.PositionLong {
			p.StopLoss = entryPrice * (1 - l.trading.StopLossPct)
		} else {
			p.StopLoss = entryPrice * (1 + l.trading.StopLossPct)
		}
	}
	if l.trading.UseTakeProfit {
		if posType == db.PositionLong {
			p.TakeProfit = entryPrice * (1 + l.trading.TakeProfitPct)
		} else {
			p.TakeProfit = entryPrice * (1 - l.trading.TakeProfitPct)
		}
	}

	id, err := l.store.InsertPosition(ctx, &p)
	if err != nil {
		return db.Position{}, err
	}
	p.ID = id
	log.Printf("position: opened %s %s id=%d entry=%.8f qty=%.8f", posType, symbol, id, entryPrice, quantity)
	return p, nil
}

// Close settles a position at exitPrice and stores the realized profit.
// Closing an already-closed position logs a warning and returns the stored
// row unchanged.
func (l *Ledger) Close(ctx context.Context, id int64, exitPrice float64) (db.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		return db.Position{}, fmt.Errorf("close position %d: %w", id, err)
	}
	if !p.Open() {
		log.Printf("position: close requested for already-closed position %d, ignoring", id)
		return p, nil
	}

	profit := (exitPrice - p.EntryPrice) * p.Quantity
	if p.Type == db.PositionShort {
		profit = (p.EntryPrice - exitPrice) * p.Quantity
	}

	closeTime := time.Now()
	if err := l.store.ClosePosition(ctx, id, exitPrice, profit, closeTime); err != nil {
		return db.Position{}, fmt.Errorf("close position %d: %w", id, err)
	}

	p.Status = db.PositionClosed
	p.ExitPrice = exitPrice
	p.Profit = profit
	p.CloseTime = closeTime
	log.Printf("position: closed %s id=%d exit=%.8f profit=%.4f", p.Symbol, id, exitPrice, profit)
	return p, nil
}

// Get returns a position by id.
func (l *Ledger) Get(ctx context.Context, id int64) (db.Position, error) {
	return l.store.GetPosition(ctx, id)
}

// OpenPositions returns all open positions.
func (l *Ledger) OpenPositions(ctx context.Context) ([]db.Position, error) {
	return l.store.OpenPositions(ctx)
}

// OpenBySymbol returns open positions for a symbol.
func (l *Ledger) OpenBySymbol(ctx context.Context, symbol string) ([]db.Position, error) {
	return l.store.OpenPositionsBySymbol(ctx, symbol)
}

// HasOpen reports whether any open position exists for the symbol.
func (l *Ledger) HasOpen(ctx context.Context, symbol string) (bool, error) {
	open, err := l.store.OpenPositionsBySymbol(ctx, symbol)
	if err != nil {
		return false, err
	}
	return len(open) > 0, nil
}

// ClosedForDate returns positions closed on the given calendar day. Asking
// for a future day is an error.
func (l *Ledger) ClosedForDate(ctx context.Context, date time.Time) ([]db.Position, error) {
	now := time.Now()
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if start.After(now) {
		return nil, ErrFutureDate
	}
	end := start.Add(24*time.Hour - time.Millisecond)
	return l.store.ClosedPositionsBetween(ctx, start, end)
}

// UpdateLimits changes the protective levels on an open position. A
// stop-loss below the current one on a long position (or above it on a
// short) is corrected back to the current level; the stop only ratchets in
// the protective direction.
func (l *Ledger) UpdateLimits(ctx context.Context, id int64, stopLoss, takeProfit float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.store.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if !p.Open() {
		return ErrPositionClosed
	}

	if p.StopLoss != 0 {
		loosened := (p.Type == db.PositionLong && stopLoss < p.StopLoss) ||
			(p.Type == db.PositionShort && stopLoss > p.StopLoss)
		if loosened {
			log.Printf("position: refusing to loosen stop-loss on %d (%.8f -> %.8f)", id, p.StopLoss, stopLoss)
			stopLoss = p.StopLoss
		}
	}
	if takeProfit == 0 {
		takeProfit = p.TakeProfit
	}

	if err := l.store.UpdatePositionLimits(ctx, id, stopLoss, takeProfit); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrPositionClosed
		}
		return err
	}
	return nil
}

// PnL returns realized profit for closed positions and mark-to-market profit
// for open ones.
func (l *Ledger) PnL(p db.Position, currentPrice float64) float64 {
	if !p.Open() {
		return p.Profit
	}
	if p.Type == db.PositionShort {
		return (p.EntryPrice - currentPrice) * p.Quantity
	}
	return (currentPrice - p.EntryPrice) * p.Quantity
}
