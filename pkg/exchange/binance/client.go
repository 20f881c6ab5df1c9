package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"tradebot/pkg/exchange"
)

// Config holds Binance credentials and connection options.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client is a Binance spot client. It satisfies exchange.MarketData and
// exchange.Trader.
type Client struct {
	cfg      Config
	http     *resty.Client
	limiter  *rate.Limiter
	weight   *exchange.WeightTracker
	timeSync *exchange.TimeSync
}

// New builds a client; Testnet toggles the REST host.
func New(cfg Config) *Client {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}

	c := &Client{
		cfg: cfg,
		// 1200 weight/min allowed; pace below it and track the real
		// usage from response headers.
		limiter: rate.NewLimiter(rate.Limit(15), 10),
		weight:  exchange.NewWeightTracker(1200, time.Minute),
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	// Retry transport errors and 5xx. A 4xx is a definitive answer and is
	// never retried.
	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() >= http.StatusInternalServerError
	})
	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		c.weight.Observe(r.Header().Get("X-MBX-USED-WEIGHT-1M"))
		return nil
	})
	c.http = rc

	c.timeSync = exchange.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.GetServerTime(ctx)
	})
	return c
}

// StartTimeSync begins background clock synchronization for signed requests.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// pace waits for the local limiter and then holds off while the
// exchange-reported weight usage is near the cap. The limiter keeps the
// steady rate low; the tracker catches bursts the server actually counted.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	for c.weight.Strained() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// public performs an unsigned GET and decodes the JSON response into out.
func (c *Client) public(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.pace(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("binance GET %s: %w", path, err)
	}
	if resp.IsError() {
		return decodeError(resp, path)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("binance decode %s: %w", path, err)
	}
	return nil
}

// signed performs an authenticated request. The signature must cover the
// exact byte sequence sent, so the query is encoded once and the signature
// appended last rather than letting the HTTP layer re-encode parameters.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return fmt.Errorf("binance: API key/secret required for %s", path)
	}
	if err := c.pace(ctx); err != nil {
		return err
	}

	params.Set("timestamp", strconv.FormatInt(c.timeSync.Now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	encoded := params.Encode()
	payload := encoded + "&signature=" + sign(encoded, c.cfg.APISecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.cfg.APIKey)

	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case http.MethodPost:
		resp, err = req.
			SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(payload).
			Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path + "?" + payload)
	default:
		resp, err = req.Get(path + "?" + payload)
	}
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return decodeError(resp, path)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("binance decode %s: %w", path, err)
		}
	}
	return nil
}

func decodeError(resp *resty.Response, path string) error {
	var apiErr apiError
	if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Msg != "" {
		return fmt.Errorf("binance %s status %d code %d: %s", path, resp.StatusCode(), apiErr.Code, apiErr.Msg)
	}
	return fmt.Errorf("binance %s status %d: %s", path, resp.StatusCode(), resp.String())
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
