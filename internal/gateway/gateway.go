package gateway

import (
	"context"
	"errors"
	"time"

	"dividend-core/internal/costs"
)

// OrderType selects the execution style.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

var (
	// ErrRejected is returned when the venue declines an order.
	ErrRejected = errors.New("order rejected")
	// ErrTimeout is returned when a fill does not arrive within the
	// caller-supplied timeout. Treated as transient, never fatal.
	ErrTimeout = errors.New("order fill timed out")
)

// Order is a request to the execution venue.
type Order struct {
	Symbol string     `json:"symbol"`
	Side   costs.Side `json:"side"`
	Qty    float64    `json:"qty"`
	Price  float64    `json:"price"` // limit price; ignored for market orders
	Type   OrderType  `json:"type"`
}

// Fill is the confirmed execution. Price and Qty may differ from the
// request (partial fill, slippage).
type Fill struct {
	OrderID string     `json:"order_id"`
	Symbol  string     `json:"symbol"`
	Side    costs.Side `json:"side"`
	Price   float64    `json:"price"`
	Qty     float64    `json:"qty"`
	Time    time.Time  `json:"time"`
}

// Gateway abstracts the order-execution venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, o Order) (string, error)
	AwaitFill(ctx context.Context, orderID string, timeout time.Duration) (Fill, error)
}
