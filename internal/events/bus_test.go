package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventRiskAlert, 1)
	defer unsub()

	bus.Publish(EventRiskAlert, RiskAlert{Symbol: "BTCUSDT", Reason: "exposure"})

	select {
	case got := <-ch:
		alert, ok := got.(RiskAlert)
		require.True(t, ok)
		assert.Equal(t, "BTCUSDT", alert.Symbol)
	default:
		t.Fatal("expected a buffered payload")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 1)
	defer unsub()

	bus.Publish(EventSignal, "first")
	bus.Publish(EventSignal, "second") // buffer full, dropped

	assert.Equal(t, "first", <-ch)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected payload %v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderExecuted, 1)
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventOrderExecuted, "late")
}
