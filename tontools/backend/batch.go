package backend

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds batches whose caller passed no positive limit.
const DefaultConcurrency = 16

// Batch runs fn for every index in [0, n) with at most concurrency calls in
// flight. The first error cancels the rest and is returned.
func Batch(ctx context.Context, n, concurrency int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

// Map is Batch collecting one result per index, in index order.
func Map[T any](ctx context.Context, n, concurrency int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if n < 0 {
		n = 0
	}
	res := make([]T, n)
	err := Batch(ctx, n, concurrency, func(ctx context.Context, i int) error {
		v, err := fn(ctx, i)
		if err != nil {
			return err
		}
		res[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
