package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/SirClappington/swapd/internal/domain"
)

// ErrEmpty is returned by Dequeue when no job became ready within the
// blocking window.
var ErrEmpty = errors.New("queue empty")

// Queue hands jobs from the submission boundary to the worker pool. A job
// enqueued with a future runAt stays invisible until MoveDue promotes it,
// which is how retry backoff is realized.
type Queue interface {
	Enqueue(ctx context.Context, job domain.Job, runAt time.Time) error
	Dequeue(ctx context.Context, block time.Duration) (domain.Job, error)
	MoveDue(ctx context.Context, now time.Time, batch int64) error
}
