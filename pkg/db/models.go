package db

import "time"

// Position side.
const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"
)

// Position lifecycle.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position is a tracked holding with its protective levels. Profit is only
// set once the position is closed.
type Position struct {
	ID         int64
	Symbol     string
	Type       string
	Status     string
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Strategy   string
	OpenTime   time.Time
	CloseTime  time.Time
	Profit     float64
}

// Open reports whether the position is still held.
func (p Position) Open() bool { return p.Status == PositionOpen }

// Notional returns the position value at the given price.
func (p Position) Notional(price float64) float64 { return p.Quantity * price }

// Order mirrors the exchange order state we have persisted.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Price         float64
	Quantity      float64
	ExecutedQty   float64
	Status        string
	StopPrice     float64
	Commission    float64
	PositionID    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Candle is a cached OHLCV row.
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}
