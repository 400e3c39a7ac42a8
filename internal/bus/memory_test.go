package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirClappington/swapd/internal/domain"
)

func recv(t *testing.T, sub Subscription) domain.StatusEvent {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.StatusEvent{}
	}
}

func TestMemoryHubFanOut(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	a, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{OrderID: "ord-1", Status: "routing"}))
	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{OrderID: "ord-1", Status: "building"}))

	// Both subscriptions receive independent full copies, in publish order.
	for _, sub := range []Subscription{a, b} {
		assert.Equal(t, "routing", recv(t, sub).Status)
		assert.Equal(t, "building", recv(t, sub).Status)
	}
}

func TestMemoryHubOrderIsolation(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	other, err := h.Subscribe(ctx, "ord-2")
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{OrderID: "ord-1", Status: "routing"}))

	select {
	case ev := <-other.Events():
		t.Fatalf("subscriber of ord-2 received event for %s", ev.OrderID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryHubLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{Status: "routing"}))

	late, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)
	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{Status: "building"}))

	assert.Equal(t, "building", recv(t, late).Status)
}

func TestMemoryHubCloseIsolation(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	a, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)

	a.Close()
	a.Close() // closing twice is harmless

	require.NoError(t, h.Publish(ctx, "ord-1", domain.StatusEvent{Status: "confirmed"}))
	assert.Equal(t, "confirmed", recv(t, b).Status)

	_, open := <-a.Events()
	assert.False(t, open, "closed subscription channel should be closed")
}

func TestMemoryHubSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewMemoryHub()
	ctx := context.Background()

	slow, err := h.Subscribe(ctx, "ord-1")
	require.NoError(t, err)
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subBuffer*4; i++ {
			_ = h.Publish(ctx, "ord-1", domain.StatusEvent{Status: "routing"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
