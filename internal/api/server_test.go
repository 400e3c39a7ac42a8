package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SirClappington/swapd/internal/bus"
	"github.com/SirClappington/swapd/internal/domain"
	"github.com/SirClappington/swapd/internal/queue"
	"github.com/SirClappington/swapd/internal/storage"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]domain.Order)}
}

func (s *fakeStore) CreateOrder(_ context.Context, tokenIn, tokenOut string, amount float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.orders[id] = domain.Order{
		ID: id, TokenIn: tokenIn, TokenOut: tokenOut, Amount: amount,
		Status: domain.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	return id, nil
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, storage.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// recordingBus captures publishes while remaining a live memory hub.
type recordingBus struct {
	*bus.MemoryHub
	mu        sync.Mutex
	published []domain.StatusEvent
}

func newRecordingBus() *recordingBus {
	return &recordingBus{MemoryHub: bus.NewMemoryHub()}
}

func (b *recordingBus) Publish(ctx context.Context, orderID string, ev domain.StatusEvent) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	b.mu.Unlock()
	return b.MemoryHub.Publish(ctx, orderID, ev)
}

func newTestServer(t *testing.T) (*Server, *fakeStore, *queue.MemoryQ, *recordingBus) {
	t.Helper()
	store := newFakeStore()
	q := queue.NewMemory(16)
	b := newRecordingBus()
	return NewServer(store, q, b, zap.NewNop()), store, q, b
}

func postJSON(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestSubmitCreatesOrderAndJob(t *testing.T) {
	srv, store, q, b := newTestServer(t)

	rec := postJSON(t, srv, `{"tokenIn":"SOL","tokenOut":"USDC","amount":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		OrderID string `json:"orderId"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.OrderID)

	// The job references the created order and carries the swap inputs.
	job, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, job.OrderID)
	assert.Equal(t, "SOL", job.TokenIn)
	assert.Equal(t, "USDC", job.TokenOut)
	assert.Equal(t, 1.0, job.Amount)
	assert.Equal(t, 0, job.Attempt)

	assert.Equal(t, 1, store.count())

	// Exactly one pending event was published for the new id.
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.published, 1)
	assert.Equal(t, resp.OrderID, b.published[0].OrderID)
	assert.Equal(t, string(domain.StatusPending), b.published[0].Status)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative amount", `{"tokenIn":"SOL","tokenOut":"USDC","amount":-5}`},
		{"zero amount", `{"tokenIn":"SOL","tokenOut":"USDC","amount":0}`},
		{"missing tokenIn", `{"tokenOut":"USDC","amount":1}`},
		{"missing tokenOut", `{"tokenIn":"SOL","amount":1}`},
		{"blank tokenIn", `{"tokenIn":"  ","tokenOut":"USDC","amount":1}`},
		{"not json", `amount=1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store, q, b := newTestServer(t)

			rec := postJSON(t, srv, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			// Rejected before any side effect: no order, no job, no event.
			assert.Equal(t, 0, store.count())
			_, err := q.Dequeue(context.Background(), 10*time.Millisecond)
			assert.ErrorIs(t, err, queue.ErrEmpty)
			b.mu.Lock()
			assert.Empty(t, b.published)
			b.mu.Unlock()
		})
	}
}

func TestGetOrder(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	id, err := store.CreateOrder(context.Background(), "SOL", "USDC", 2)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestGetOrderNotFound(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"ok"`))
}
