package booking

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
)

// TokenSource hands out free-tier queue tokens for a booking date.
type TokenSource interface {
	NextToken(ctx context.Context, date string) (int, error)
}

// RandomTokenSource draws uniformly from [low, high). Two patients can draw
// the same token.
type RandomTokenSource struct {
	low, high int
	mu        sync.Mutex
	rnd       *rand.Rand
}

func NewRandomTokenSource(low, high int, rnd *rand.Rand) (*RandomTokenSource, error) {
	if low <= 0 || high <= low {
		return nil, fmt.Errorf("invalid token range [%d, %d)", low, high)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomTokenSource{low: low, high: high, rnd: rnd}, nil
}

func (s *RandomTokenSource) NextToken(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.low + s.rnd.IntN(s.high-s.low), nil
}

// Counter is a per-date monotonic counter starting at 1.
type Counter interface {
	NextToken(ctx context.Context, date string) (int64, error)
}

// SequentialTokenSource walks the range in order per date and wraps around
// once it is exhausted.
type SequentialTokenSource struct {
	low, high int
	counter   Counter
}

func NewSequentialTokenSource(low, high int, counter Counter) (*SequentialTokenSource, error) {
	if low <= 0 || high <= low {
		return nil, fmt.Errorf("invalid token range [%d, %d)", low, high)
	}
	return &SequentialTokenSource{low: low, high: high, counter: counter}, nil
}

func (s *SequentialTokenSource) NextToken(ctx context.Context, date string) (int, error) {
	n, err := s.counter.NextToken(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("next token: %w", err)
	}
	span := int64(s.high - s.low)
	return s.low + int((n-1)%span), nil
}
