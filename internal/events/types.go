package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventSignal         Event = "strategy.signal"
	EventOrderExecuted  Event = "order.executed"
	EventOrderRejected  Event = "order.rejected"
	EventPositionOpened Event = "position.opened"
	EventPositionClosed Event = "position.closed"
	EventRiskAlert      Event = "risk.alert"
)

// RiskAlert is the payload for EventRiskAlert.
type RiskAlert struct {
	Symbol string
	Reason string
}
