package exchange

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// WeightTracker mirrors the exchange's request-weight accounting from
// response headers. It does not pace requests itself; the client pairs it
// with a rate.Limiter and consults Strained before each request.
type WeightTracker struct {
	used      int
	limit     int
	lastReset time.Time
	window    time.Duration
	mu        sync.RWMutex
}

// NewWeightTracker creates a tracker for the given weight limit per window
// (1200 per minute for Binance spot).
func NewWeightTracker(limit int, window time.Duration) *WeightTracker {
	return &WeightTracker{
		limit:     limit,
		window:    window,
		lastReset: time.Now(),
	}
}

// Observe records the used-weight value reported in a response header.
func (w *WeightTracker) Observe(header string) {
	if header == "" {
		return
	}
	used, err := strconv.Atoi(header)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReset) >= w.window {
		w.used = 0
		w.lastReset = time.Now()
	}
	w.used = used

	pct := float64(w.used) / float64(w.limit) * 100
	if pct >= 90 {
		log.Printf("exchange: request weight %d/%d (%.1f%%), backing off", w.used, w.limit, pct)
	}
}

// Strained reports whether usage is close enough to the limit that
// non-essential requests should wait for the window to roll over.
func (w *WeightTracker) Strained() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if time.Since(w.lastReset) >= w.window {
		return false
	}
	return float64(w.used)/float64(w.limit) >= 0.9
}
