package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/SirClappington/swapd/internal/domain"
)

const (
	readyKey   = "swap:ready"
	delayedKey = "swap:delayed"
)

// RedisQ keeps ready jobs in a list and delayed jobs in a ZSET scored by
// their due time. Jobs travel as JSON payloads.
type RedisQ struct{ rdb *r.Client }

func NewRedis(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func (q *RedisQ) Enqueue(ctx context.Context, job domain.Job, runAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}
	if time.Until(runAt) > 0 {
		return q.rdb.ZAdd(ctx, delayedKey, r.Z{Score: float64(runAt.Unix()), Member: payload}).Err()
	}
	return q.rdb.LPush(ctx, readyKey, payload).Err()
}

func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (domain.Job, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if err == r.Nil {
		return domain.Job{}, ErrEmpty
	}
	if err != nil {
		return domain.Job{}, errors.Wrap(err, "brpop")
	}
	if len(res) != 2 {
		return domain.Job{}, ErrEmpty
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return domain.Job{}, errors.Wrap(err, "unmarshal job")
	}
	return job, nil
}

func (q *RedisQ) MoveDue(ctx context.Context, now time.Time, batch int64) error {
	payloads, err := q.rdb.ZRangeByScore(ctx, delayedKey, &r.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.Unix()), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(payloads) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, p := range payloads {
		pipe.LPush(ctx, readyKey, p)
		pipe.ZRem(ctx, delayedKey, p)
	}
	_, err = pipe.Exec(ctx)
	return err
}
