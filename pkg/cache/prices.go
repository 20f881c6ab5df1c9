// Package cache holds the last seen price per symbol, shared between the
// websocket market feed that writes it and the trading loop that reads it.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const priceShards = 16

// Prices is a sharded last-price cache. Entries carry the time they were
// written so readers can refuse stale data.
type Prices struct {
	shards [priceShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	updatedAt time.Time
}

func NewPrices() *Prices {
	p := &Prices{}
	for i := range p.shards {
		p.shards[i] = &priceShard{items: make(map[string]priceEntry)}
	}
	return p
}

func (p *Prices) shard(symbol string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return p.shards[h.Sum32()%priceShards]
}

// Set records the latest price for a symbol.
func (p *Prices) Set(symbol string, price float64) {
	s := p.shard(symbol)
	s.mu.Lock()
	s.items[symbol] = priceEntry{price: price, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Fresh returns the cached price if it was written within maxAge.
func (p *Prices) Fresh(symbol string, maxAge time.Duration) (float64, bool) {
	s := p.shard(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok || time.Since(e.updatedAt) > maxAge {
		return 0, false
	}
	return e.price, true
}

// Len reports the number of cached symbols.
func (p *Prices) Len() int {
	n := 0
	for _, s := range p.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
