package order

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/events"
	"tradebot/internal/notify"
	"tradebot/internal/position"
	"tradebot/internal/strategy"
	"tradebot/pkg/config"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange"
)

// fakeVenue fills market orders at the configured price and leaves
// everything else resting as NEW.
type fakeVenue struct {
	balances map[string]float64
	prices   map[string]float64
	placed   []exchange.OrderRequest
	statuses map[string]exchange.Order // id -> exchange-side view
}

func (f *fakeVenue) PlaceOrder(_ context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	f.placed = append(f.placed, req)
	o := exchange.Order{
		ID:            fmt.Sprintf("ord-%d", len(f.placed)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Status:        exchange.StatusNew,
	}
	if req.Type == exchange.OrderTypeMarket {
		o.Price = f.prices[req.Symbol]
		o.ExecutedQuantity = req.Quantity
		o.Status = exchange.StatusFilled
	}
	return o, nil
}

func (f *fakeVenue) GetOrder(_ context.Context, symbol, orderID string) (exchange.Order, error) {
	if o, ok := f.statuses[orderID]; ok {
		return o, nil
	}
	return exchange.Order{ID: orderID, Symbol: symbol, Status: exchange.StatusNew}, nil
}

func (f *fakeVenue) CancelOrder(context.Context, string, string) error { return nil }

func (f *fakeVenue) GetBalance(_ context.Context, asset string) (exchange.Balance, error) {
	return exchange.Balance{Asset: asset, Free: f.balances[asset]}, nil
}

func (f *fakeVenue) GetKlines(context.Context, string, string, int) ([]exchange.Candle, error) {
	return nil, nil
}

func (f *fakeVenue) GetPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func testExecutor(t *testing.T, venue *fakeVenue) (*Executor, *position.Ledger, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	settings := config.DefaultSettings()
	settings.Pairs = []config.TradingPair{{
		Symbol:            "ETHUSDT",
		BaseAsset:         "ETH",
		QuoteAsset:        "USDT",
		QuantityPrecision: 2,
		MinQuantity:       0.001,
		Active:            true,
	}}

	ledger := position.NewLedger(store, settings.Trading)
	exec := NewExecutor(venue, venue, store, ledger, notify.NewLogNotifier(), events.NewBus(), settings)
	return exec, ledger, store
}

func buySignal(confidence float64) strategy.Signal {
	return strategy.Signal{
		Symbol:     "ETHUSDT",
		Strategy:   "TripleConfirmation",
		Action:     strategy.ActionBuy,
		Price:      100,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

func TestExecuteRejectsLowConfidence(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 100}}
	exec, ledger, _ := testExecutor(t, venue)

	result, err := exec.ExecuteSignal(context.Background(), buySignal(0.5))
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusRejected, result.Status)
	assert.Empty(t, venue.placed)

	held, err := ledger.HasOpen(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestExecuteBuyOpensPositionAndProtectiveOrders(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 100}}
	exec, ledger, store := testExecutor(t, venue)
	ctx := context.Background()

	result, err := exec.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusFilled, result.Status)

	// 10000 * 0.02 = 200 USDT at price 100 buys 2.
	require.Len(t, venue.placed, 3)
	assert.Equal(t, exchange.SideBuy, venue.placed[0].Side)
	assert.InDelta(t, 2, venue.placed[0].Quantity, 1e-9)

	assert.Equal(t, exchange.OrderTypeStopLoss, venue.placed[1].Type)
	assert.InDelta(t, 98, venue.placed[1].StopPrice, 1e-9)
	assert.Equal(t, exchange.OrderTypeTakeProfit, venue.placed[2].Type)
	assert.InDelta(t, 105, venue.placed[2].StopPrice, 1e-9)

	open, err := ledger.OpenBySymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 100, open[0].EntryPrice, 1e-9)
	assert.InDelta(t, 2, open[0].Quantity, 1e-9)

	// The protective sells rest as NEW; the filled buy does not.
	resting, err := store.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, resting, 2)
}

func TestExecuteBuyRejectedWhenPositionHeld(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 100}}
	exec, ledger, _ := testExecutor(t, venue)
	ctx := context.Background()

	_, err := ledger.Open(ctx, "ETHUSDT", db.PositionLong, 100, 1, "TripleConfirmation")
	require.NoError(t, err)

	result, err := exec.ExecuteSignal(ctx, buySignal(0.9))
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusRejected, result.Status)
	assert.Empty(t, venue.placed)
}

func TestExecuteSellWithoutPositionRejected(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 100}}
	exec, _, _ := testExecutor(t, venue)

	sig := buySignal(0.9)
	sig.Action = strategy.ActionSell

	result, err := exec.ExecuteSignal(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusRejected, result.Status)
	assert.Empty(t, venue.placed)
}

func TestExecuteSellClosesPosition(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 110}}
	exec, ledger, _ := testExecutor(t, venue)
	ctx := context.Background()

	p, err := ledger.Open(ctx, "ETHUSDT", db.PositionLong, 100, 2, "TripleConfirmation")
	require.NoError(t, err)

	sig := buySignal(0.9)
	sig.Action = strategy.ActionSell

	result, err := exec.ExecuteSignal(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusFilled, result.Status)

	got, err := ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PositionClosed, got.Status)
	assert.InDelta(t, 110, got.ExitPrice, 1e-9)
	assert.InDelta(t, 20, got.Profit, 1e-9)
}

func TestOrderQuantitySizing(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		price   float64
		want    float64
	}{
		{"risk fraction truncated to precision", 10000, 333, 0.60}, // 200/333 = 0.6006...
		{"minimum order amount floor", 100, 100, 0.10},             // 2 -> floored to 10 USDT
		{"plain division", 10000, 100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			venue := &fakeVenue{balances: map[string]float64{"USDT": tt.balance}}
			exec, _, _ := testExecutor(t, venue)

			got, err := exec.OrderQuantity(context.Background(), "ETHUSDT", tt.price)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestOrderQuantityUnknownPair(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}}
	exec, _, _ := testExecutor(t, venue)

	_, err := exec.OrderQuantity(context.Background(), "DOGEUSDT", 1)
	assert.Error(t, err)
}

func TestManageClosesPositionOnStopBreach(t *testing.T) {
	venue := &fakeVenue{balances: map[string]float64{"USDT": 10000}, prices: map[string]float64{"ETHUSDT": 97}}
	exec, ledger, _ := testExecutor(t, venue)
	ctx := context.Background()

	p, err := ledger.Open(ctx, "ETHUSDT", db.PositionLong, 100, 1, "TripleConfirmation")
	require.NoError(t, err)
	require.InDelta(t, 98, p.StopLoss, 1e-9)

	require.NoError(t, exec.ManageOpenOrdersAndPositions(ctx))

	require.Len(t, venue.placed, 1)
	assert.Equal(t, exchange.SideSell, venue.placed[0].Side)

	got, err := ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PositionClosed, got.Status)
	assert.InDelta(t, -3, got.Profit, 1e-9)
}

func TestManageReconcilesFilledSellOrder(t *testing.T) {
	venue := &fakeVenue{
		balances: map[string]float64{"USDT": 10000},
		prices:   map[string]float64{"ETHUSDT": 107},
		statuses: map[string]exchange.Order{},
	}
	exec, ledger, store := testExecutor(t, venue)
	ctx := context.Background()

	p, err := ledger.Open(ctx, "ETHUSDT", db.PositionLong, 100, 1, "TripleConfirmation")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.SaveOrder(ctx, &db.Order{
		ID:         "ord-resting",
		Symbol:     "ETHUSDT",
		Side:       string(exchange.SideSell),
		Type:       string(exchange.OrderTypeTakeProfit),
		Price:      107,
		Quantity:   1,
		Status:     string(exchange.StatusNew),
		PositionID: p.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	venue.statuses["ord-resting"] = exchange.Order{
		ID:               "ord-resting",
		Symbol:           "ETHUSDT",
		Side:             exchange.SideSell,
		Price:            107,
		ExecutedQuantity: 1,
		Status:           exchange.StatusFilled,
	}

	require.NoError(t, exec.ManageOpenOrdersAndPositions(ctx))

	got, err := ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PositionClosed, got.Status)
	assert.InDelta(t, 7, got.Profit, 1e-9)

	resting, err := store.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, resting)
}
