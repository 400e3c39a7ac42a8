package domain

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Order is the persisted view of a swap. All fields after creation are
// written only by the worker currently holding the order's job.
type Order struct {
	ID            string    `json:"orderId"`
	TokenIn       string    `json:"tokenIn"`
	TokenOut      string    `json:"tokenOut"`
	Amount        float64   `json:"amount"`
	Status        Status    `json:"status"`
	Venue         *string   `json:"venue,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	ExecutedPrice *float64  `json:"executedPrice,omitempty"`
	TxRef         *string   `json:"txHash,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OrderUpdate carries the fields written at one state transition. Nil
// pointers are left untouched by the store.
type OrderUpdate struct {
	Status        Status
	Venue         *string
	Price         *float64
	ExecutedPrice *float64
	TxRef         *string
	Error         *string
}

// next holds the single forward transition for each non-terminal status.
// Failed is reachable from any non-terminal status and is handled in
// CanTransition directly.
var next = map[Status]Status{
	StatusPending:   StatusRouting,
	StatusRouting:   StatusBuilding,
	StatusBuilding:  StatusSubmitted,
	StatusSubmitted: StatusConfirmed,
}

// Terminal reports whether no further transition may occur.
func Terminal(s Status) bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal status transition.
// Statuses only advance one step forward, or jump to failed from any
// non-terminal state.
func CanTransition(from, to Status) bool {
	if Terminal(from) {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return next[from] == to
}
