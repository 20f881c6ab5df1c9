// Package notify delivers fire-and-forget operator notifications. A failed
// delivery is logged and swallowed; it never propagates to the caller.
package notify

import (
	"log"

	"tradebot/pkg/exchange"
)

// Notifier receives trade and error notifications.
type Notifier interface {
	NotifyOrderExecuted(order exchange.Order)
	NotifyError(message string, cause error)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyOrderExecuted(order exchange.Order) {
	log.Printf("notify: %s %s %s qty=%.8f price=%.8f status=%s",
		order.Symbol, order.Side, order.Type, order.ExecutedQuantity, order.Price, order.Status)
}

func (n *LogNotifier) NotifyError(message string, cause error) {
	if cause != nil {
		log.Printf("notify: ERROR %s: %v", message, cause)
		return
	}
	log.Printf("notify: ERROR %s", message)
}
