package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

const DefaultConcurrency = 8

// Limiter bounds how many units of work run at once. Waiters are admitted
// in arrival order.
type Limiter struct {
	sem   *semaphore.Weighted
	limit int

	mu     sync.Mutex
	active int
}

func New(concurrency int) *Limiter {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		limit: concurrency,
	}
}

// Do waits for a slot and runs fn in the caller's goroutine. The slot is
// released when fn returns, whatever the outcome.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("limiter acquire: %w", err)
	}
	l.mu.Lock()
	l.active++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
		l.sem.Release(1)
	}()

	return fn(ctx)
}

func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Limiter) Limit() int {
	return l.limit
}

// Run is Do for functions that produce a value.
func Run[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
