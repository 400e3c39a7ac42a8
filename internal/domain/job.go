package domain

import "time"

// Job is the unit of scheduled work for one order. It carries the immutable
// swap inputs so workers never re-read them, plus the attempt counter used
// by the retry policy. Jobs travel JSON-encoded through the queue.
type Job struct {
	OrderID  string  `json:"orderId"`
	TokenIn  string  `json:"tokenIn"`
	TokenOut string  `json:"tokenOut"`
	Amount   float64 `json:"amount"`
	Attempt  int     `json:"attempt"`
}

// Quote is a venue's proposed execution for a pair. Price is units of
// tokenOut per unit of tokenIn, so a higher price yields more output and is
// strictly better for the caller. Fee is proportional.
type Quote struct {
	Venue string
	Price float64
	Fee   float64
}

// Execution is the outcome of a settlement attempt. A failed settlement is
// a result value (non-empty Err), not a Go error: the caller decides
// whether it maps to a retry.
type Execution struct {
	TxRef         string
	ExecutedPrice float64
	Err           string
}

// Failed reports whether the settlement did not go through.
func (e Execution) Failed() bool { return e.Err != "" }

// Backoff returns the delay before retry attempt n (zero-based): base
// doubled per attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return base
	}
	// 2^31 already exceeds any sane cap; shifting further would overflow.
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<attempt)
	if d > max || d < base {
		return max
	}
	return d
}
