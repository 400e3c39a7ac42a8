// Package venue holds the liquidity venue abstraction: a capability
// interface with simulated implementations behind it, and an aggregator
// that fans quote requests out across every configured venue.
package venue

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SirClappington/swapd/internal/domain"
)

// Venue is one liquidity source. Implementations must be safe for
// concurrent calls from independent orders.
type Venue interface {
	Name() string
	Quote(ctx context.Context, tokenIn, tokenOut string, amount float64) (domain.Quote, error)
	Execute(ctx context.Context, tokenIn, tokenOut string, amount, price float64) (domain.Execution, error)
}

// basePrices is the fixed pair table for the simulation. Unknown pairs
// fall back to defaultBasePrice.
var basePrices = map[string]float64{
	"SOL-USDC": 100,
	"BTC-USDC": 50000,
	"ETH-USDC": 3000,
}

const defaultBasePrice = 100

func basePrice(tokenIn, tokenOut string) float64 {
	pair := strings.ToUpper(tokenIn + "-" + tokenOut)
	if p, ok := basePrices[pair]; ok {
		return p
	}
	return defaultBasePrice
}

// Profile describes one simulated venue. The variance band models
// liquidity depth: a deeper venue quotes closer to the base price.
type Profile struct {
	Name         string
	Fee          float64
	VarianceLow  float64
	VarianceHigh float64
	QuoteDelay   time.Duration
}

// DefaultProfiles returns the two stock venue models.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "Raydium", Fee: 0.003, VarianceLow: 0.98, VarianceHigh: 1.02, QuoteDelay: 200 * time.Millisecond},
		{Name: "Meteora", Fee: 0.002, VarianceLow: 0.97, VarianceHigh: 1.02, QuoteDelay: 200 * time.Millisecond},
	}
}

// Simulated is a Venue that answers with randomized prices after a
// simulated network delay, and settles with a configurable failure
// probability. It keeps no state across calls beyond its RNG.
type Simulated struct {
	profile     Profile
	failureRate float64
	execDelay   time.Duration
	execJitter  time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(context.Context, time.Duration) error
}

type Option func(*Simulated)

// WithRand injects a seeded RNG so tests get fixed prices and outcomes.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulated) { s.rng = rng }
}

// WithSleep replaces the delay function, letting tests skip real time.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Simulated) { s.sleep = fn }
}

// WithExecDelay overrides the simulated settlement latency band.
func WithExecDelay(base, jitter time.Duration) Option {
	return func(s *Simulated) {
		s.execDelay = base
		s.execJitter = jitter
	}
}

// NewSimulated builds a venue from a profile. failureRate is the
// probability that Execute reports a slippage failure.
func NewSimulated(profile Profile, failureRate float64, opts ...Option) *Simulated {
	s := &Simulated{
		profile:     profile,
		failureRate: failureRate,
		execDelay:   2 * time.Second,
		execJitter:  time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Name() string { return s.profile.Name }

func (s *Simulated) Quote(ctx context.Context, tokenIn, tokenOut string, amount float64) (domain.Quote, error) {
	if err := s.sleep(ctx, s.profile.QuoteDelay); err != nil {
		return domain.Quote{}, err
	}
	span := s.profile.VarianceHigh - s.profile.VarianceLow
	variance := s.profile.VarianceLow + s.rand()*span
	return domain.Quote{
		Venue: s.profile.Name,
		Price: basePrice(tokenIn, tokenOut) * variance,
		Fee:   s.profile.Fee,
	}, nil
}

func (s *Simulated) Execute(ctx context.Context, tokenIn, tokenOut string, amount, price float64) (domain.Execution, error) {
	delay := s.execDelay + time.Duration(s.rand()*float64(s.execJitter))
	if err := s.sleep(ctx, delay); err != nil {
		return domain.Execution{}, err
	}
	if s.rand() < s.failureRate {
		return domain.Execution{Err: "slippage tolerance exceeded"}, nil
	}
	return domain.Execution{
		// No partial fills modeled: execution settles at the quoted price.
		TxRef:         "tx_" + uuid.NewString(),
		ExecutedPrice: price,
	}, nil
}

// rand returns a uniform float in [0,1). rand.Rand is not safe for
// concurrent use, so calls serialize on the mutex.
func (s *Simulated) rand() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
