// Package engine drives the trading cycle: evaluate strategies per symbol,
// validate entries against risk limits, execute, then reconcile orders and
// monitor open positions.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"tradebot/internal/events"
	"tradebot/internal/notify"
	"tradebot/internal/order"
	"tradebot/internal/risk"
	"tradebot/internal/strategy"
	"tradebot/pkg/config"
)

const defaultWorkers = 4

// Engine owns the main loop.
type Engine struct {
	strategies *strategy.Service
	riskMgr    *risk.Manager
	executor   *order.Executor
	notifier   notify.Notifier
	bus        *events.Bus
	settings   config.Settings
	workers    int

	mu       sync.Mutex
	symLocks map[string]*sync.Mutex
}

// New wires the engine.
func New(strategies *strategy.Service, riskMgr *risk.Manager, executor *order.Executor,
	notifier notify.Notifier, bus *events.Bus, settings config.Settings) *Engine {
	return &Engine{
		strategies: strategies,
		riskMgr:    riskMgr,
		executor:   executor,
		notifier:   notifier,
		bus:        bus,
		settings:   settings,
		workers:    defaultWorkers,
		symLocks:   make(map[string]*sync.Mutex),
	}
}

// Run executes trading cycles until the context is cancelled. Cancellation
// lets the in-flight cycle finish for symbols already started; no new ticks
// are scheduled after that.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.settings.Trading.RefreshInterval()
	log.Printf("engine: starting, cycle every %s, %d active pairs", interval, len(e.settings.ActivePairs()))

	ticker := newTicker(interval)
	defer ticker.Stop()

	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("engine: shutdown requested, stopping")
			return nil
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle is one full pass: signals per active pair through a bounded worker
// pool, then the reconciliation and monitoring passes.
func (e *Engine) cycle(ctx context.Context) {
	pairs := e.settings.ActivePairs()
	if len(pairs) == 0 {
		log.Printf("engine: no active trading pairs configured")
		return
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processSymbol(ctx, symbol)
		}(pair.Symbol)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}
	if err := e.executor.ManageOpenOrdersAndPositions(ctx); err != nil {
		log.Printf("engine: reconciliation pass failed: %v", err)
		e.notifier.NotifyError("reconciliation pass failed", err)
	}
	if err := e.riskMgr.MonitorPositions(ctx); err != nil {
		log.Printf("engine: monitoring pass failed: %v", err)
		e.notifier.NotifyError("monitoring pass failed", err)
	}
}

// processSymbol evaluates and, if approved, executes one symbol. The
// per-symbol lock guarantees a symbol is never processed twice concurrently.
func (e *Engine) processSymbol(ctx context.Context, symbol string) {
	lock := e.lockFor(symbol)
	lock.Lock()
	defer lock.Unlock()

	sig, err := e.strategies.GenerateSignal(ctx, symbol, e.settings.Trading.Interval)
	if err != nil {
		log.Printf("engine: signal generation failed for %s: %v", symbol, err)
		e.notifier.NotifyError("signal generation failed for "+symbol, err)
		return
	}
	e.bus.Publish(events.EventSignal, sig)
	if sig.Action == strategy.ActionNone {
		return
	}

	if sig.Action == strategy.ActionBuy {
		quantity, err := e.executor.OrderQuantity(ctx, symbol, sig.Price)
		if err != nil {
			log.Printf("engine: sizing failed for %s: %v", symbol, err)
			return
		}
		decision := e.riskMgr.ValidateNewPosition(ctx, symbol, sig.Price, quantity)
		if !decision.Allowed {
			log.Printf("engine: entry for %s blocked: %s", symbol, decision.Reason)
			e.bus.Publish(events.EventRiskAlert, events.RiskAlert{Symbol: symbol, Reason: decision.Reason})
			return
		}
	}

	if _, err := e.executor.ExecuteSignal(ctx, sig); err != nil {
		log.Printf("engine: execution failed for %s: %v", symbol, err)
		e.notifier.NotifyError("execution failed for "+symbol, err)
	}
}

// newTicker guards against an unset refresh interval.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = time.Minute
	}
	return time.NewTicker(d)
}

func (e *Engine) lockFor(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.symLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.symLocks[symbol] = lock
	}
	return lock
}
