// Package scheduler owns order execution: admission control (a global
// concurrency cap plus a rolling-window rate limit), the per-order stage
// pipeline, and the retry policy. Exactly one worker goroutine drives a
// given order at any instant, which is what makes order state single-writer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/SirClappington/swapd/internal/bus"
	"github.com/SirClappington/swapd/internal/domain"
	"github.com/SirClappington/swapd/internal/queue"
	"github.com/SirClappington/swapd/internal/ratelimit"
)

const redeliveryBatch = 200

// Store is the slice of persistence the engine needs. Write failures are
// logged and swallowed: persistence is not transactionally coupled to the
// in-memory state machine.
type Store interface {
	UpdateOrder(ctx context.Context, id string, upd domain.OrderUpdate) error
}

// Aggregator is the venue layer as the engine sees it.
type Aggregator interface {
	BestQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (domain.Quote, error)
	Execute(ctx context.Context, venue, tokenIn, tokenOut string, amount, price float64) (domain.Execution, error)
}

type Config struct {
	Concurrency        int
	RateLimitMax       int
	RateLimitWindow    time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	BuildDelay         time.Duration
	DequeueBlock       time.Duration
	RedeliveryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = 100
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
	if c.DequeueBlock <= 0 {
		c.DequeueBlock = time.Second
	}
	if c.RedeliveryInterval <= 0 {
		c.RedeliveryInterval = time.Second
	}
	return c
}

// Engine consumes jobs from the queue and drives each through the order
// state machine, publishing every transition to the bus.
type Engine struct {
	cfg     Config
	queue   queue.Queue
	bus     bus.Bus
	store   Store
	agg     Aggregator
	limiter *ratelimit.Window
	sem     *semaphore.Weighted
	log     *zap.Logger

	sleep func(context.Context, time.Duration) error
	wg    sync.WaitGroup
}

func New(cfg Config, q queue.Queue, b bus.Bus, store Store, agg Aggregator, log *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:     cfg,
		queue:   q,
		bus:     b,
		store:   store,
		agg:     agg,
		limiter: ratelimit.NewWindow(cfg.RateLimitMax, cfg.RateLimitWindow),
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		log:     log,
		sleep:   sleepCtx,
	}
}

// Run blocks consuming jobs until the context is cancelled, then waits for
// in-flight orders to reach a terminal outcome for their current attempt.
func (e *Engine) Run(ctx context.Context) error {
	go e.redeliveryLoop(ctx)

	// Admitted attempts run to a terminal outcome even during shutdown:
	// there is no mid-flight cancellation of an order.
	work := context.WithoutCancel(ctx)

	for {
		job, err := e.queue.Dequeue(ctx, e.cfg.DequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			e.log.Warn("dequeue failed", zap.Error(err))
			continue
		}

		if err := e.admit(ctx); err != nil {
			e.requeue(work, job)
			break
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.requeue(work, job)
			break
		}
		e.wg.Add(1)
		go func(job domain.Job) {
			defer e.wg.Done()
			defer e.sem.Release(1)
			e.process(work, job)
		}(job)
	}

	e.wg.Wait()
	return nil
}

// redeliveryLoop promotes due delayed jobs (scheduled retries) back onto
// the ready queue.
func (e *Engine) redeliveryLoop(ctx context.Context) {
	tick := time.NewTicker(e.cfg.RedeliveryInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := e.queue.MoveDue(ctx, time.Now(), redeliveryBatch); err != nil && ctx.Err() == nil {
				e.log.Warn("redelivery failed", zap.Error(err))
			}
		}
	}
}

// requeue puts a job that was dequeued but never admitted back on the ready
// queue. Without it a shutdown during the admission wait would strand the
// order non-terminal with its job already consumed.
func (e *Engine) requeue(ctx context.Context, job domain.Job) {
	if err := e.queue.Enqueue(ctx, job, time.Now()); err != nil {
		e.log.Error("requeue on shutdown failed",
			zap.String("order_id", job.OrderID),
			zap.Error(err),
		)
	}
}

// admit blocks until the rolling-window rate limit allows one more job to
// begin processing.
func (e *Engine) admit(ctx context.Context) error {
	for {
		ok, wait := e.limiter.Reserve()
		if ok {
			return nil
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// process runs the full stage sequence for one attempt of one order. It is
// the only writer of that order while it runs.
func (e *Engine) process(ctx context.Context, job domain.Job) {
	log := e.log.With(zap.String("order_id", job.OrderID), zap.Int("attempt", job.Attempt))
	log.Info("processing order",
		zap.String("token_in", job.TokenIn),
		zap.String("token_out", job.TokenOut),
		zap.Float64("amount", job.Amount),
	)

	// from tracks the attempt-local stage: every attempt, retries
	// included, replays the pipeline from the top.
	from := domain.StatusPending

	e.transition(ctx, job.OrderID, from,
		domain.OrderUpdate{Status: domain.StatusRouting},
		domain.StatusEvent{Status: string(domain.StatusRouting)},
	)
	from = domain.StatusRouting

	quote, err := e.agg.BestQuote(ctx, job.TokenIn, job.TokenOut, job.Amount)
	if err != nil {
		e.retryOrFail(ctx, log, job, from, err)
		return
	}
	log.Debug("routed", zap.String("venue", quote.Venue), zap.Float64("price", quote.Price))

	e.transition(ctx, job.OrderID, from,
		domain.OrderUpdate{Status: domain.StatusBuilding, Venue: &quote.Venue, Price: &quote.Price},
		domain.StatusEvent{Status: string(domain.StatusBuilding), Venue: quote.Venue, Price: quote.Price},
	)
	from = domain.StatusBuilding

	if err := e.sleep(ctx, e.cfg.BuildDelay); err != nil {
		e.retryOrFail(ctx, log, job, from, errors.Wrap(err, "build interrupted"))
		return
	}

	e.transition(ctx, job.OrderID, from,
		domain.OrderUpdate{Status: domain.StatusSubmitted},
		domain.StatusEvent{Status: string(domain.StatusSubmitted)},
	)
	from = domain.StatusSubmitted

	res, err := e.agg.Execute(ctx, quote.Venue, job.TokenIn, job.TokenOut, job.Amount, quote.Price)
	if err != nil {
		e.retryOrFail(ctx, log, job, from, err)
		return
	}
	if res.Failed() {
		e.retryOrFail(ctx, log, job, from, errors.New(res.Err))
		return
	}

	e.transition(ctx, job.OrderID, from,
		domain.OrderUpdate{
			Status:        domain.StatusConfirmed,
			Venue:         &quote.Venue,
			ExecutedPrice: &res.ExecutedPrice,
			TxRef:         &res.TxRef,
		},
		domain.StatusEvent{
			Status:        string(domain.StatusConfirmed),
			TxRef:         res.TxRef,
			ExecutedPrice: res.ExecutedPrice,
		},
	)
	log.Info("order confirmed", zap.String("tx_ref", res.TxRef), zap.Float64("executed_price", res.ExecutedPrice))
}

// retryOrFail applies the retry policy: schedule the next attempt with
// exponential backoff, or mark the order terminally failed once the cap is
// exhausted. Failed is published exactly once per order; retried attempts
// publish a distinct retrying event instead.
func (e *Engine) retryOrFail(ctx context.Context, log *zap.Logger, job domain.Job, from domain.Status, cause error) {
	nextAttempt := job.Attempt + 1
	if nextAttempt < e.cfg.MaxAttempts {
		delay := domain.Backoff(e.cfg.BackoffBase, e.cfg.BackoffMax, job.Attempt)
		log.Warn("attempt failed, scheduling retry", zap.Error(cause), zap.Duration("delay", delay))

		e.publish(ctx, job.OrderID, domain.StatusEvent{
			Status:      domain.EventRetrying,
			Error:       cause.Error(),
			Attempt:     nextAttempt,
			NextRetryMs: delay.Milliseconds(),
		})

		retry := job
		retry.Attempt = nextAttempt
		err := e.queue.Enqueue(ctx, retry, time.Now().Add(delay))
		if err == nil {
			return
		}
		log.Error("re-enqueue failed, failing order early", zap.Error(err))
	} else {
		log.Error("retries exhausted", zap.Error(cause), zap.Int("attempts", nextAttempt))
	}

	msg := cause.Error()
	e.transition(ctx, job.OrderID, from,
		domain.OrderUpdate{Status: domain.StatusFailed, Error: &msg},
		domain.StatusEvent{Status: string(domain.StatusFailed), Error: msg, Attempt: nextAttempt},
	)
}

// transition persists one state change and broadcasts it. Neither failure
// aborts the in-memory progression. An illegal from -> to pair is a
// programming error in the pipeline and is refused outright.
func (e *Engine) transition(ctx context.Context, orderID string, from domain.Status, upd domain.OrderUpdate, ev domain.StatusEvent) {
	if !domain.CanTransition(from, upd.Status) {
		e.log.Error("illegal status transition",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(upd.Status)),
		)
		return
	}
	if err := e.store.UpdateOrder(ctx, orderID, upd); err != nil {
		e.log.Error("persist transition failed",
			zap.String("order_id", orderID),
			zap.String("status", string(upd.Status)),
			zap.Error(err),
		)
	}
	e.publish(ctx, orderID, ev)
}

func (e *Engine) publish(ctx context.Context, orderID string, ev domain.StatusEvent) {
	ev.OrderID = orderID
	ev.Timestamp = time.Now().UTC()
	if err := e.bus.Publish(ctx, orderID, ev); err != nil {
		e.log.Warn("publish failed",
			zap.String("order_id", orderID),
			zap.String("status", ev.Status),
			zap.Error(err),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
