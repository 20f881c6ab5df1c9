package exchange

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimeSync keeps a running offset between local and exchange server clocks so
// signed request timestamps stay within the venue's recvWindow.
type TimeSync struct {
	serverTime   func(ctx context.Context) (int64, error)
	offset       int64 // milliseconds, server minus local
	lastSync     time.Time
	syncInterval time.Duration
	mu           sync.RWMutex
}

// NewTimeSync creates a time synchronization helper around a server-time
// fetcher returning epoch milliseconds.
func NewTimeSync(serverTime func(ctx context.Context) (int64, error)) *TimeSync {
	return &TimeSync{
		serverTime:   serverTime,
		syncInterval: 30 * time.Minute,
	}
}

// Start performs an initial sync and keeps re-syncing until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("timesync: initial sync failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					log.Printf("timesync: sync failed: %v", err)
				}
			}
		}
	}()
}

// Sync fetches server time once and updates the offset, assuming symmetric
// network latency.
func (ts *TimeSync) Sync(ctx context.Context) error {
	before := time.Now().UnixMilli()
	server, err := ts.serverTime(ctx)
	if err != nil {
		return err
	}
	after := time.Now().UnixMilli()

	local := before + (after-before)/2

	ts.mu.Lock()
	ts.offset = server - local
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	log.Printf("timesync: offset=%dms", server-local)
	return nil
}

// Now returns the current time in epoch milliseconds adjusted to server time.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}
