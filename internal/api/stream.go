package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/SirClappington/swapd/internal/bus"
)

type streamMessage struct {
	OrderID string `json:"orderId"`
}

// handleStream upgrades to WebSocket and forwards status events for one
// order at a time. The target order id comes from the orderId query param
// or from a JSON message {"orderId": "..."}; a later message replaces the
// current subscription (one target per connection, settable per message).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writes come from both the forward goroutine and the read loop's acks.
	var writeMu sync.Mutex
	writeJSONMsg := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	var (
		sub     bus.Subscription
		forward sync.WaitGroup
	)
	detach := func() {
		if sub == nil {
			return
		}
		sub.Close()
		forward.Wait()
		sub = nil
	}
	defer detach()

	attach := func(orderID string) {
		detach()
		next, err := s.bus.Subscribe(ctx, orderID)
		if err != nil {
			s.log.Warn("subscribe failed", zap.String("order_id", orderID), zap.Error(err))
			_ = writeJSONMsg(map[string]string{"error": "subscription failed"})
			return
		}
		sub = next
		forward.Add(1)
		go func() {
			defer forward.Done()
			// The subscription channel closes when the sub is released, so
			// this drains cleanly on detach and on disconnect.
			for ev := range next.Events() {
				if err := writeJSONMsg(ev); err != nil {
					cancel()
					return
				}
			}
		}()
		_ = writeJSONMsg(map[string]string{"message": "Subscribed to updates for " + orderID})
		s.log.Info("stream subscribed", zap.String("order_id", orderID))
	}

	if id := r.URL.Query().Get("orderId"); id != "" {
		attach(id)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.OrderID == "" {
			_ = writeJSONMsg(map[string]string{"error": "invalid message format"})
			continue
		}
		attach(msg.OrderID)
	}
}
