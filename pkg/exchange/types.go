package exchange

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT_LIMIT"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Closed reports whether the status is terminal on the exchange side.
func (s OrderStatus) Closed() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Balance is a single-asset account balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64 // required for LIMIT
	StopPrice     float64 // required for stop/take-profit orders
	ClientOrderID string
}

// Order is the decoded exchange view of an order. Every response is parsed
// into this struct at the client boundary; nothing downstream touches raw
// JSON.
type Order struct {
	ID               string
	ClientOrderID    string
	Symbol           string
	Side             Side
	Type             OrderType
	Price            float64
	Quantity         float64
	ExecutedQuantity float64
	Status           OrderStatus
	StopPrice        float64
	Commission       float64
	CommissionAsset  string
	CreateTime       time.Time
	UpdateTime       time.Time
}
