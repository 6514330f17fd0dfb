package events

// Event enumerates high-level topics inside the strategy core.
type Event string

const (
	EventPriceTick       Event = "price_tick"
	EventDecision        Event = "strategy.decision"
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderFilled     Event = "order.filled"
	EventOrderRejected   Event = "order.rejected"
	EventAlertEmitted    Event = "alert.emitted"
	EventAlertSuppressed Event = "alert.suppressed"
	EventSweepExecuted   Event = "sweep.executed"
	EventPositionChange  Event = "position_change"
	EventCycleCompleted  Event = "cycle.completed"
)
