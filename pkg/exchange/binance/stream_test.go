package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// klineServer accepts a websocket upgrade and pushes final kline events as
// fast as the socket accepts them.
func klineServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	msg := []byte(`{"s":"ETHUSDT","k":{"t":1700000000000,"T":1700000059999,"o":"100","c":"101","h":"102","l":"99","v":"12","x":true}}`)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}))
}

func testStreamClient(srv *httptest.Server) *StreamClient {
	return &StreamClient{
		streamURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		dialer:    websocket.DefaultDialer,
	}
}

func TestSubscribeKlinesDeliversClosedCandles(t *testing.T) {
	srv := klineServer(t)
	defer srv.Close()

	out, stop, err := testStreamClient(srv).SubscribeKlines(context.Background(), "ETHUSDT", "1m")
	require.NoError(t, err)
	defer stop()

	select {
	case cc := <-out:
		require.Equal(t, "ETHUSDT", cc.Symbol)
		require.Equal(t, 101.0, cc.Candle.Close)
		require.Equal(t, 12.0, cc.Candle.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("no candle delivered")
	}
}

// Stopping while the server is still flooding events must end with a cleanly
// closed channel; the read loop owns the close, so a stop racing an in-flight
// delivery cannot panic.
func TestSubscribeKlinesStopMidStream(t *testing.T) {
	srv := klineServer(t)
	defer srv.Close()

	out, stop, err := testStreamClient(srv).SubscribeKlines(context.Background(), "ETHUSDT", "1m")
	require.NoError(t, err)

	<-out
	stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel did not close after stop")
		}
	}
}
