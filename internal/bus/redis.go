package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/swapd/internal/domain"
)

// RedisBus carries status events over Redis pub/sub so observers can attach
// from a different process than the worker pool. Each subscription opens
// its own PubSub connection, so closing one never disturbs another.
type RedisBus struct {
	rdb *r.Client
	log *zap.Logger
}

func NewRedis(rdb *r.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, log: log}
}

func channelFor(orderID string) string { return "order_status:" + orderID }

func (b *RedisBus) Publish(ctx context.Context, orderID string, event domain.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal status event")
	}
	return b.rdb.Publish(ctx, channelFor(orderID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, orderID string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channelFor(orderID))
	// Receive confirms the subscription is live before we report attached,
	// so a publish after Subscribe returns cannot be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "subscribe")
	}

	s := &redisSub{
		ps: ps,
		ch: make(chan domain.StatusEvent, subBuffer),
	}
	go func() {
		defer close(s.ch)
		for msg := range ps.Channel() {
			var ev domain.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed status event",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
				continue
			}
			select {
			case s.ch <- ev:
			default:
				b.log.Warn("slow subscriber, dropping status event",
					zap.String("order_id", orderID),
					zap.String("status", ev.Status),
				)
			}
		}
	}()
	return s, nil
}

type redisSub struct {
	ps   *r.PubSub
	ch   chan domain.StatusEvent
	once sync.Once
}

func (s *redisSub) Events() <-chan domain.StatusEvent { return s.ch }

func (s *redisSub) Close() {
	s.once.Do(func() { _ = s.ps.Close() })
}
