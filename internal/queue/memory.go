package queue

import (
	"context"
	"sync"
	"time"

	"github.com/SirClappington/swapd/internal/domain"
)

// MemoryQ mirrors RedisQ's semantics in-process: a buffered ready channel
// and a delayed slice promoted by MoveDue. Used by tests and by
// single-process dev mode.
type MemoryQ struct {
	ready chan domain.Job

	mu      sync.Mutex
	delayed []delayedJob
}

type delayedJob struct {
	job   domain.Job
	runAt time.Time
}

func NewMemory(capacity int) *MemoryQ {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQ{ready: make(chan domain.Job, capacity)}
}

func (q *MemoryQ) Enqueue(ctx context.Context, job domain.Job, runAt time.Time) error {
	if time.Until(runAt) > 0 {
		q.mu.Lock()
		q.delayed = append(q.delayed, delayedJob{job: job, runAt: runAt})
		q.mu.Unlock()
		return nil
	}
	select {
	case q.ready <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQ) Dequeue(ctx context.Context, block time.Duration) (domain.Job, error) {
	t := time.NewTimer(block)
	defer t.Stop()
	select {
	case job := <-q.ready:
		return job, nil
	case <-t.C:
		return domain.Job{}, ErrEmpty
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

func (q *MemoryQ) MoveDue(_ context.Context, now time.Time, batch int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := q.delayed[:0]
	var moved int64
	for _, d := range q.delayed {
		if moved < batch && !d.runAt.After(now) {
			select {
			case q.ready <- d.job:
				moved++
				continue
			default:
				// ready buffer full, keep the job delayed for the next tick
			}
		}
		remaining = append(remaining, d)
	}
	q.delayed = remaining
	return nil
}
