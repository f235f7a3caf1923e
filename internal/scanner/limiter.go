package scanner

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Bounds accepted for scan concurrency.
const (
	MinScanConcurrency = 1
	MaxScanConcurrency = 50
)

// Limiter is a counting admission gate. At most Bound() holders are admitted
// at any instant.
type Limiter struct {
	sem   *semaphore.Weighted
	bound int
}

// NewLimiter creates a limiter admitting up to bound holders. The bound must
// lie within [min, max].
func NewLimiter(bound, min, max int) (*Limiter, error) {
	if bound < min || bound > max {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidConcurrency, bound, min, max)
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(bound)),
		bound: bound,
	}, nil
}

// Acquire blocks until a slot is free or ctx is done, in which case it
// returns ctx.Err() and holds nothing.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Bound returns the configured number of slots.
func (l *Limiter) Bound() int {
	return l.bound
}
