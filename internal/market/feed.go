// Package market mirrors live exchange data into local state. Closed candles
// land in the sqlite candle cache, ticker prices in the shared price cache,
// so the trading loop reads mostly local data between REST calls.
package market

import (
	"context"
	"log"
	"sync"

	"tradebot/pkg/cache"
	"tradebot/pkg/config"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange/binance"
)

// Streams is the subset of the websocket client the feed consumes.
type Streams interface {
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan binance.ClosedCandle, func(), error)
	SubscribeMiniTicker(ctx context.Context, symbol string) (<-chan binance.PriceTick, func(), error)
}

// Feed subscribes to kline and ticker streams for every active pair.
type Feed struct {
	streams  Streams
	store    *db.Store
	prices   *cache.Prices
	symbols  []string
	interval string

	wg sync.WaitGroup
}

func NewFeed(streams Streams, store *db.Store, prices *cache.Prices, settings config.Settings) *Feed {
	symbols := make([]string, 0, len(settings.Pairs))
	for _, p := range settings.ActivePairs() {
		symbols = append(symbols, p.Symbol)
	}
	return &Feed{
		streams:  streams,
		store:    store,
		prices:   prices,
		symbols:  symbols,
		interval: settings.Trading.Interval,
	}
}

// Start opens the subscriptions and returns once all of them are running.
// Symbols whose subscription fails are logged and skipped; the feed is a
// warm path, the trading loop still falls back to REST.
func (f *Feed) Start(ctx context.Context) {
	for _, symbol := range f.symbols {
		candles, stopCandles, err := f.streams.SubscribeKlines(ctx, symbol, f.interval)
		if err != nil {
			log.Printf("market feed: subscribe klines %s: %v", symbol, err)
		} else {
			f.wg.Add(1)
			go f.consumeCandles(ctx, symbol, candles, stopCandles)
		}

		ticks, stopTicks, err := f.streams.SubscribeMiniTicker(ctx, symbol)
		if err != nil {
			log.Printf("market feed: subscribe ticker %s: %v", symbol, err)
		} else {
			f.wg.Add(1)
			go f.consumeTicks(ctx, ticks, stopTicks)
		}
	}
}

// Wait blocks until every stream goroutine has drained. Call after
// cancelling the context passed to Start.
func (f *Feed) Wait() {
	f.wg.Wait()
}

func (f *Feed) consumeCandles(ctx context.Context, symbol string, in <-chan binance.ClosedCandle, stop func()) {
	defer f.wg.Done()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case cc, ok := <-in:
			if !ok {
				return
			}
			row := db.Candle{
				Symbol:    symbol,
				Interval:  f.interval,
				OpenTime:  cc.Candle.OpenTime,
				Open:      cc.Candle.Open,
				High:      cc.Candle.High,
				Low:       cc.Candle.Low,
				Close:     cc.Candle.Close,
				Volume:    cc.Candle.Volume,
				CloseTime: cc.Candle.CloseTime,
			}
			if err := f.store.SaveCandles(ctx, []db.Candle{row}); err != nil {
				log.Printf("market feed: save candle %s: %v", symbol, err)
			}
			f.prices.Set(symbol, cc.Candle.Close)
		}
	}
}

func (f *Feed) consumeTicks(ctx context.Context, in <-chan binance.PriceTick, stop func()) {
	defer f.wg.Done()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-in:
			if !ok {
				return
			}
			f.prices.Set(tick.Symbol, tick.Price)
		}
	}
}
