package venue

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/swapd/internal/domain"
)

// ErrNoQuotes means every configured venue was excluded (errored or timed
// out), so there is nothing to select from. Retryable by the scheduler.
var ErrNoQuotes = errors.New("no venue returned a quote")

// Aggregator queries every registered venue concurrently and selects the
// best executable quote. Price is tokenOut per tokenIn, so the highest
// price wins.
type Aggregator struct {
	venues  []Venue
	byName  map[string]Venue
	timeout time.Duration
	log     *zap.Logger
}

// NewAggregator registers the venues. timeout bounds each individual quote
// request; a venue that misses it is excluded from selection rather than
// failing the whole quote.
func NewAggregator(log *zap.Logger, timeout time.Duration, venues ...Venue) *Aggregator {
	byName := make(map[string]Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}
	return &Aggregator{
		venues:  venues,
		byName:  byName,
		timeout: timeout,
		log:     log,
	}
}

// BestQuote fans out to all venues and returns the highest-priced quote.
func (a *Aggregator) BestQuote(ctx context.Context, tokenIn, tokenOut string, amount float64) (domain.Quote, error) {
	quotes := make([]domain.Quote, len(a.venues))
	var g errgroup.Group
	for i, v := range a.venues {
		i, v := i, v
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			q, err := v.Quote(qctx, tokenIn, tokenOut, amount)
			if err != nil {
				a.log.Warn("venue excluded from selection",
					zap.String("venue", v.Name()),
					zap.Error(err),
				)
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	_ = g.Wait() // workers record failures as exclusions, never return them

	var best domain.Quote
	for _, q := range quotes {
		if q.Venue == "" {
			continue
		}
		if best.Venue == "" || q.Price > best.Price {
			best = q
		}
	}
	if best.Venue == "" {
		return domain.Quote{}, ErrNoQuotes
	}
	return best, nil
}

// Execute settles the swap on the named venue at the quoted price.
func (a *Aggregator) Execute(ctx context.Context, venueName, tokenIn, tokenOut string, amount, price float64) (domain.Execution, error) {
	v, ok := a.byName[venueName]
	if !ok {
		return domain.Execution{}, errors.Errorf("unknown venue %q", venueName)
	}
	return v.Execute(ctx, tokenIn, tokenOut, amount, price)
}
