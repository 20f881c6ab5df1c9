// Package strategy turns candle history into trading signals.
package strategy

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradebot/pkg/db"
	"tradebot/pkg/exchange"
)

// MinCandles is the minimum window a strategy needs. Shorter histories
// produce a no-action signal, never an error.
const MinCandles = 100

// Policy evaluates a candle window into a trading signal.
type Policy interface {
	Name() string
	Evaluate(symbol string, candles []exchange.Candle, p Parameters) Signal
}

// Service generates signals with the configured policy, feeding it candles
// from the local cache backed by the exchange.
type Service struct {
	market      exchange.MarketData
	cache       *db.Store // optional candle cache
	defaultName string

	mu       sync.RWMutex
	params   Parameters
	policies map[string]Policy
}

// NewService builds a Service with the built-in policies registered.
func NewService(market exchange.MarketData, cache *db.Store, params Parameters, defaultPolicy string) *Service {
	s := &Service{
		market:      market,
		cache:       cache,
		defaultName: defaultPolicy,
		params:      params,
		policies:    make(map[string]Policy),
	}
	s.Register(TripleConfirmation{})
	s.Register(MACross{})
	return s
}

// Register adds a policy under its name.
func (s *Service) Register(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Name()] = p
}

// Configure applies named parameter overrides to the shared parameter set.
func (s *Service) Configure(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.Configure(values)
	log.Printf("strategy: parameters updated (%d values)", len(values))
}

// Parameters returns a copy of the current parameter set.
func (s *Service) Parameters() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// GenerateSignal evaluates the configured policy for a symbol. With fewer
// than MinCandles candles available it returns a no-action signal.
func (s *Service) GenerateSignal(ctx context.Context, symbol, interval string) (Signal, error) {
	candles, err := s.candles(ctx, symbol, interval)
	if err != nil {
		return Signal{}, fmt.Errorf("generate signal %s: %w", symbol, err)
	}
	if len(candles) < MinCandles {
		log.Printf("strategy: %s has %d candles, need %d", symbol, len(candles), MinCandles)
		return Signal{
			Symbol:    symbol,
			Interval:  interval,
			Action:    ActionNone,
			Timestamp: time.Now(),
			Note:      "insufficient candle history",
		}, nil
	}

	sig := s.Evaluate(symbol, candles)
	sig.Interval = interval

	// Prefer the live price over the last cached close when available.
	if price, err := s.market.GetPrice(ctx, symbol); err == nil {
		sig.Price = price
	}

	log.Printf("strategy: %s %s at %.8f confidence=%.2f", symbol, sig.Action, sig.Price, sig.Confidence)
	return sig, nil
}

// Evaluate runs the configured policy over an explicit candle window. The
// backtester drives this directly.
func (s *Service) Evaluate(symbol string, candles []exchange.Candle) Signal {
	s.mu.RLock()
	policy, ok := s.policies[s.defaultName]
	if !ok {
		policy = s.policies["TripleConfirmation"]
	}
	params := s.params
	s.mu.RUnlock()

	return policy.Evaluate(symbol, candles, params)
}

// candles fetches the evaluation window, consulting the cache before the
// exchange and writing fetched candles back.
func (s *Service) candles(ctx context.Context, symbol, interval string) ([]exchange.Candle, error) {
	if s.cache != nil {
		cached, err := s.cache.RecentCandles(ctx, symbol, interval, MinCandles)
		if err != nil {
			log.Printf("strategy: candle cache read failed for %s: %v", symbol, err)
		} else if len(cached) >= MinCandles {
			out := make([]exchange.Candle, len(cached))
			for i, c := range cached {
				out[i] = exchange.Candle{
					OpenTime: c.OpenTime, CloseTime: c.CloseTime,
					Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
				}
			}
			return out, nil
		}
	}

	fetched, err := s.market.GetKlines(ctx, symbol, interval, MinCandles)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(fetched) > 0 {
		rows := make([]db.Candle, len(fetched))
		for i, c := range fetched {
			rows[i] = db.Candle{
				Symbol: symbol, Interval: interval,
				OpenTime: c.OpenTime, CloseTime: c.CloseTime,
				Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
			}
		}
		if err := s.cache.SaveCandles(ctx, rows); err != nil {
			log.Printf("strategy: candle cache write failed for %s: %v", symbol, err)
		}
	}
	return fetched, nil
}
