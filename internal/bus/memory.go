package bus

import (
	"context"
	"sync"

	"github.com/SirClappington/swapd/internal/domain"
)

const subBuffer = 16

// MemoryHub is an in-process Bus: a registry of subscriber channels per
// order id. Used in tests and when api and worker share a process.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	hub     *MemoryHub
	orderID string
	ch      chan domain.StatusEvent
	once    sync.Once
}

func (s *memorySub) Events() <-chan domain.StatusEvent { return s.ch }

func (s *memorySub) Close() {
	s.once.Do(func() { s.hub.detach(s) })
}

// Publish delivers the event to every subscriber currently attached to the
// order id. A subscriber whose buffer is full misses the event rather than
// stalling the worker that owns the order.
func (h *MemoryHub) Publish(_ context.Context, orderID string, event domain.StatusEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[orderID] {
		select {
		case s.ch <- event:
		default:
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(_ context.Context, orderID string) (Subscription, error) {
	s := &memorySub{
		hub:     h,
		orderID: orderID,
		ch:      make(chan domain.StatusEvent, subBuffer),
	}
	h.mu.Lock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[*memorySub]struct{})
	}
	h.subs[orderID][s] = struct{}{}
	h.mu.Unlock()
	return s, nil
}

// detach removes the subscriber and closes its channel. Holding the write
// lock here excludes Publish, so a send on the closed channel cannot race.
func (h *MemoryHub) detach(s *memorySub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.orderID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.orderID)
		}
	}
	close(s.ch)
}
