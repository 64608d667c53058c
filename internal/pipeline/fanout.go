package pipeline

import (
	"context"
	"sync"
)

// Map runs fn over items with at most workers concurrent goroutines and
// returns one result slot and one error slot per item, always in input
// order. Each worker writes only its own index, so completion order never
// reorders results and no lock is needed around the slices. Call sites
// decide per slot whether an error drops the item or fails the stage.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, item := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = fn(ctx, i, item)
		}(i, item)
	}
	wg.Wait()
	return results, errs
}
