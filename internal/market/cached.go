package market

import (
	"context"
	"time"

	"tradebot/pkg/cache"
	"tradebot/pkg/exchange"
)

// defaultMaxAge bounds how old a streamed price may be before GetPrice goes
// back to REST.
const defaultMaxAge = 10 * time.Second

// CachedData serves GetPrice from the feed's price cache when the entry is
// fresh, falling through to the wrapped source otherwise. Kline requests
// always pass through.
type CachedData struct {
	exchange.MarketData

	prices *cache.Prices
	maxAge time.Duration
}

func NewCachedData(source exchange.MarketData, prices *cache.Prices) *CachedData {
	return &CachedData{MarketData: source, prices: prices, maxAge: defaultMaxAge}
}

func (c *CachedData) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := c.prices.Fresh(symbol, c.maxAge); ok {
		return price, nil
	}
	price, err := c.MarketData.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	c.prices.Set(symbol, price)
	return price, nil
}
