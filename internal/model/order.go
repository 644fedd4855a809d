package model

import "time"

// OrderAction is the direction of a limit order submission.
type OrderAction string

const (
	ActionBuy        OrderAction = "BUY"          // enter long
	ActionSellShort  OrderAction = "SELL_SHORT"   // enter short
	ActionSell       OrderAction = "SELL"         // exit long
	ActionBuyToCover OrderAction = "BUY_TO_COVER" // exit short
)

// IsBuySide reports whether the action takes liquidity from the ask.
func (a OrderAction) IsBuySide() bool {
	return a == ActionBuy || a == ActionBuyToCover
}

// IsEntry reports whether the action opens a position rather than closing one.
func (a OrderAction) IsEntry() bool {
	return a == ActionBuy || a == ActionSellShort
}

// OrderState is the venue-reported state of a working order.
type OrderState string

const (
	OrderWorking    OrderState = "WORKING"
	OrderFilled     OrderState = "FILLED"
	OrderPartFilled OrderState = "PART_FILLED"
	OrderRejected   OrderState = "REJECTED"
	OrderUnknown    OrderState = "UNKNOWN"
)

// Order is the strategy's in-flight working order. At most one exists per
// controller instance; re-queues replace it rather than mutating it.
type Order struct {
	ID         string      `json:"id"` // venue handle
	Account    string      `json:"account"`
	Instrument string      `json:"instrument"`
	Action     OrderAction `json:"action"`
	Qty        int         `json:"qty"`
	LimitPrice float64     `json:"limit_price"`
	Signal     string      `json:"signal"` // e.g. "S.OPEN.MSFT.BUY"
	QueuedAt   time.Time   `json:"queued_at"`
}

// OrderUpdate is an asynchronous order-state notification from the venue.
// FilledQty and AvgFillPrice describe the delta reported by this update.
type OrderUpdate struct {
	OrderID      string     `json:"order_id"`
	State        OrderState `json:"state"`
	FilledQty    int        `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
	TS           time.Time  `json:"ts"`
}

// OrderEventType classifies lifecycle events emitted for journaling.
type OrderEventType string

const (
	EventQueued     OrderEventType = "QUEUED"
	EventPartFilled OrderEventType = "PART_FILLED"
	EventFilled     OrderEventType = "FILLED"
	EventFailed     OrderEventType = "FAILED"
	EventOverfilled OrderEventType = "OVERFILLED"
)

// OrderEvent is published off the hot path to the journal and Redis.
type OrderEvent struct {
	Type         OrderEventType `json:"type"`
	Order        Order          `json:"order"`
	FilledQty    int            `json:"filled_qty"`
	AvgFillPrice float64        `json:"avg_fill_price"`
	TS           time.Time      `json:"ts"`
}
