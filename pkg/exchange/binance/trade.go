package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradebot/pkg/exchange"
)

type orderResponse struct {
	Symbol         string `json:"symbol"`
	OrderID        int64  `json:"orderId"`
	ClientOrderID  string `json:"clientOrderId"`
	TransactTime   int64  `json:"transactTime"`
	Price          string `json:"price"`
	OrigQty        string `json:"origQty"`
	ExecutedQty    string `json:"executedQty"`
	CumQuoteQty    string `json:"cummulativeQuoteQty"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	Side           string `json:"side"`
	StopPrice      string `json:"stopPrice"`
	Time           int64  `json:"time"`
	UpdateTime     int64  `json:"updateTime"`
	Fills          []fill `json:"fills"`
}

type fill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// PlaceOrder submits an order and returns the decoded exchange view of it.
// Market orders report their effective price as the volume-weighted average
// of the returned fills.
func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Quantity))
	params.Set("newOrderRespType", "FULL")

	if req.Type == exchange.OrderTypeLimit || req.Type == exchange.OrderTypeStopLoss || req.Type == exchange.OrderTypeTakeProfit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", "GTC")
	}
	if req.Type == exchange.OrderTypeStopLoss || req.Type == exchange.OrderTypeTakeProfit {
		params.Set("stopPrice", formatFloat(req.StopPrice))
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	var resp orderResponse
	if err := c.signed(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return exchange.Order{}, err
	}
	return resp.toOrder(), nil
}

// GetOrder fetches the current state of an order by exchange id.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (exchange.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := c.signed(ctx, http.MethodGet, "/api/v3/order", params, &resp); err != nil {
		return exchange.Order{}, err
	}
	return resp.toOrder(), nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	return c.signed(ctx, http.MethodDelete, "/api/v3/order", params, nil)
}

// GetBalance returns the account balance for a single asset. An asset the
// account has never touched comes back as a zero balance, not an error.
func (c *Client) GetBalance(ctx context.Context, asset string) (exchange.Balance, error) {
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &resp); err != nil {
		return exchange.Balance{}, err
	}

	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return exchange.Balance{}, fmt.Errorf("binance: bad free balance %q for %s", b.Free, asset)
		}
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		return exchange.Balance{Asset: asset, Free: free, Locked: locked}, nil
	}
	return exchange.Balance{Asset: asset}, nil
}

func (r orderResponse) toOrder() exchange.Order {
	price := parseF(r.Price)
	executed := parseF(r.ExecutedQty)

	var commission float64
	commissionAsset := ""
	for _, f := range r.Fills {
		commission += parseF(f.Commission)
		if commissionAsset == "" {
			commissionAsset = f.CommissionAsset
		}
	}
	if price == 0 && executed > 0 {
		price = parseF(r.CumQuoteQty) / executed
	}

	created := r.Time
	if created == 0 {
		created = r.TransactTime
	}
	updated := r.UpdateTime
	if updated == 0 {
		updated = r.TransactTime
	}

	return exchange.Order{
		ID:               strconv.FormatInt(r.OrderID, 10),
		ClientOrderID:    r.ClientOrderID,
		Symbol:           r.Symbol,
		Side:             exchange.Side(r.Side),
		Type:             exchange.OrderType(r.Type),
		Price:            price,
		Quantity:         parseF(r.OrigQty),
		ExecutedQuantity: executed,
		Status:           mapStatus(r.Status),
		StopPrice:        parseF(r.StopPrice),
		Commission:       commission,
		CommissionAsset:  commissionAsset,
		CreateTime:       time.UnixMilli(created),
		UpdateTime:       time.UnixMilli(updated),
	}
}

func mapStatus(s string) exchange.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return exchange.StatusNew
	case "PARTIALLY_FILLED":
		return exchange.StatusPartial
	case "FILLED":
		return exchange.StatusFilled
	case "CANCELED":
		return exchange.StatusCanceled
	case "REJECTED":
		return exchange.StatusRejected
	case "EXPIRED":
		return exchange.StatusExpired
	default:
		return exchange.StatusUnknown
	}
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
