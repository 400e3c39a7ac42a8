package domain

import "time"

// EventRetrying is published when an attempt failed but will be retried.
// It is an event tag only, never a persisted order status: observers stay
// informed without the order ever looking terminally failed early.
const EventRetrying = "retrying"

// StatusEvent is one observable transition in an order's lifecycle,
// broadcast to every live subscriber of that order id. Stage-specific
// fields are omitted when empty so each status carries only its payload.
type StatusEvent struct {
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status"`
	Venue         string    `json:"venue,omitempty"`
	Price         float64   `json:"price,omitempty"`
	TxRef         string    `json:"txHash,omitempty"`
	ExecutedPrice float64   `json:"executedPrice,omitempty"`
	Error         string    `json:"error,omitempty"`
	Attempt       int       `json:"attempt,omitempty"`
	NextRetryMs   int64     `json:"nextRetryMs,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
