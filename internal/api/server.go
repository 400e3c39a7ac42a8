// Package api is the submission boundary and live status channel: it
// validates swap requests, persists them, hands jobs to the queue, and
// streams status events to WebSocket observers.
package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/swapd/internal/bus"
	"github.com/SirClappington/swapd/internal/domain"
	"github.com/SirClappington/swapd/internal/queue"
	"github.com/SirClappington/swapd/internal/storage"
)

// Store is the persistence the API needs.
type Store interface {
	CreateOrder(ctx context.Context, tokenIn, tokenOut string, amount float64) (string, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

type Server struct {
	store    Store
	queue    queue.Queue
	bus      bus.Bus
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(store Store, q queue.Queue, b bus.Bus, log *zap.Logger) *Server {
	return &Server{
		store: store,
		queue: q,
		bus:   b,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth and origin policy are out of scope for this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/execute", s.handleSubmit)
		r.Get("/execute/stream", s.handleStream)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

type submitRequest struct {
	TokenIn  string  `json:"tokenIn"`
	TokenOut string  `json:"tokenOut"`
	Amount   float64 `json:"amount"`
}

func (req submitRequest) validate() []string {
	var details []string
	if strings.TrimSpace(req.TokenIn) == "" {
		details = append(details, "tokenIn is required")
	}
	if strings.TrimSpace(req.TokenOut) == "" {
		details = append(details, "tokenOut is required")
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		details = append(details, "amount must be a positive number")
	}
	return details
}

// handleSubmit accepts a swap order: validate, persist pending, enqueue the
// job, publish the initial pending event. The caller only ever gets an
// accept/reject for the request itself; outcomes arrive via the stream.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if details := req.validate(); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	ctx := r.Context()
	id, err := s.store.CreateOrder(ctx, req.TokenIn, req.TokenOut, req.Amount)
	if err != nil {
		s.log.Error("create order failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	job := domain.Job{
		OrderID:  id,
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		Amount:   req.Amount,
	}
	if err := s.queue.Enqueue(ctx, job, time.Now()); err != nil {
		s.log.Error("enqueue failed", zap.String("order_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	pending := domain.StatusEvent{
		OrderID:   id,
		Status:    string(domain.StatusPending),
		Timestamp: time.Now().UTC(),
	}
	if err := s.bus.Publish(ctx, id, pending); err != nil {
		// Best-effort: a missed pending event never fails the submission.
		s.log.Warn("publish pending failed", zap.String("order_id", id), zap.Error(err))
	}

	s.log.Info("order submitted",
		zap.String("order_id", id),
		zap.String("token_in", req.TokenIn),
		zap.String("token_out", req.TokenOut),
		zap.Float64("amount", req.Amount),
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"orderId": id,
		"message": "Order submitted successfully",
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := s.store.GetOrder(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
		return
	}
	if err != nil {
		s.log.Error("get order failed", zap.String("order_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "swapd"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
