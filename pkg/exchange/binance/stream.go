package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradebot/pkg/exchange"
)

// StreamClient consumes Binance public websocket streams.
type StreamClient struct {
	streamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		streamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// ClosedCandle is a kline event for a candle that has closed on the exchange.
type ClosedCandle struct {
	Symbol string
	Candle exchange.Candle
}

// PriceTick is a lightweight last-price update.
type PriceTick struct {
	Symbol string
	Price  float64
}

// SubscribeKlines streams closed candles for a symbol/interval. In-progress
// kline updates are dropped; only final bars reach the channel. Returns the
// channel and a stop function. The stop function drops the connection, which
// unblocks the read loop; the channel is closed by the reader alone once that
// loop exits, so stopping can never race a send.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan ClosedCandle, func(), error) {
	// Stream names use lowercase symbols.
	u := fmt.Sprintf("%s/%s@kline_%s", c.streamURL, strings.ToLower(symbol), interval)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan ClosedCandle, 64)
	stop := connStopper(conn)

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if quietClose(err) {
					return
				}
				log.Printf("binance ws: kline read error: %v", err)
				return
			}

			cc, closed, err := parseKline(msg)
			if err != nil {
				log.Printf("binance ws: kline parse error: %v", err)
				continue
			}
			if !closed {
				continue
			}
			select {
			case out <- cc:
			default:
				// slow consumer, drop rather than stall the read loop
			}
		}
	}()

	return out, stop, nil
}

// SubscribeMiniTicker streams last-price updates for a symbol.
func (c *StreamClient) SubscribeMiniTicker(ctx context.Context, symbol string) (<-chan PriceTick, func(), error) {
	u := fmt.Sprintf("%s/%s@miniTicker", c.streamURL, strings.ToLower(symbol))

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan PriceTick, 64)
	stop := connStopper(conn)

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if quietClose(err) {
					return
				}
				log.Printf("binance ws: ticker read error: %v", err)
				return
			}

			var raw struct {
				Symbol string `json:"s"`
				Close  string `json:"c"`
			}
			if err := json.Unmarshal(msg, &raw); err != nil {
				log.Printf("binance ws: ticker parse error: %v", err)
				continue
			}
			price, err := strconv.ParseFloat(raw.Close, 64)
			if err != nil {
				continue
			}
			select {
			case out <- PriceTick{Symbol: raw.Symbol, Price: price}:
			default:
			}
		}
	}()

	return out, stop, nil
}

func parseKline(msg []byte) (ClosedCandle, bool, error) {
	var raw struct {
		Symbol string `json:"s"`
		Kline  struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return ClosedCandle{}, false, err
	}
	k := raw.Kline
	return ClosedCandle{
		Symbol: raw.Symbol,
		Candle: exchange.Candle{
			OpenTime:  time.UnixMilli(k.StartTime),
			CloseTime: time.UnixMilli(k.CloseTime),
			Open:      parseF(k.Open),
			High:      parseF(k.High),
			Low:       parseF(k.Low),
			Close:     parseF(k.Close),
			Volume:    parseF(k.Volume),
		},
	}, k.Final, nil
}

// connStopper shuts the connection down exactly once. It deliberately does
// not touch the outbound channel; only the sending goroutine closes that.
func connStopper(conn *websocket.Conn) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}
}

func quietClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
