package exchange

import "context"

// MarketData provides read-only market access.
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Trader places and inspects orders on a venue and reads account balances.
type Trader interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetBalance(ctx context.Context, asset string) (Balance, error)
}
