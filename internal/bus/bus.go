// Package bus fans order status transitions out to live observers. Delivery
// is ephemeral pub/sub: subscribers only see events published after they
// attach, and a dropped event never blocks the publishing worker.
package bus

import (
	"context"

	"github.com/SirClappington/swapd/internal/domain"
)

// Subscription is one observer's isolated channel onto an order's stream.
// Close releases it without affecting other subscribers.
type Subscription interface {
	Events() <-chan domain.StatusEvent
	Close()
}

// Bus decouples the scheduler from any number of observers, keyed by order
// id. Publish failures are the caller's to log and ignore: status delivery
// is best-effort and never gates a state transition.
type Bus interface {
	Publish(ctx context.Context, orderID string, event domain.StatusEvent) error
	Subscribe(ctx context.Context, orderID string) (Subscription, error)
}
