package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"tradebot/pkg/exchange"
)

// GetServerTime fetches the exchange clock in epoch milliseconds.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.public(ctx, "/api/v3/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// GetKlines fetches up to limit recent candles for the symbol/interval.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	// Klines come back as positional arrays, not objects.
	var raw [][]any
	if err := c.public(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, err
	}
	return parseKlines(raw), nil
}

// GetKlinesRange fetches every candle between start and end, paginating in
// exchange-maximum batches of 1000.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]exchange.Candle, error) {
	const batch = 1000

	var out []exchange.Candle
	cursor := start
	for cursor.Before(end) {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", interval)
		params.Set("startTime", strconv.FormatInt(cursor.UnixMilli(), 10))
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(batch))

		var raw [][]any
		if err := c.public(ctx, "/api/v3/klines", params, &raw); err != nil {
			return nil, err
		}
		page := parseKlines(raw)
		if len(page) == 0 {
			break
		}
		out = append(out, page...)

		next := page[len(page)-1].OpenTime.Add(time.Millisecond)
		if !next.After(cursor) {
			break
		}
		cursor = next
		if len(page) < batch {
			break
		}
	}
	return out, nil
}

func parseKlines(raw [][]any) []exchange.Candle {
	candles := make([]exchange.Candle, 0, len(raw))
	for _, item := range raw {
		if len(item) < 7 {
			continue
		}
		candles = append(candles, exchange.Candle{
			OpenTime:  time.UnixMilli(toInt64(item[0])),
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			CloseTime: time.UnixMilli(toInt64(item[6])),
		})
	}
	return candles
}

// GetPrice fetches the latest traded price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.public(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: bad price %q for %s", resp.Price, symbol)
	}
	return price, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
