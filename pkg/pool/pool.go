package pool

import (
	"context"
	"sync"
)

// WorkerFunc defines the function signature for a worker that processes an item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// MapFunc turns one item into one result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result pairs a mapped value with the error its worker returned.
type Result[R any] struct {
	Value R
	Err   error
}

// Run executes a worker pool. It processes a slice of items concurrently.
// It returns a slice containing any errors that occurred during processing.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	results := Map(ctx, items, numWorkers, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, workerFunc(ctx, item)
	})

	var allErrors []error
	for _, r := range results {
		if r.Err != nil {
			allErrors = append(allErrors, r.Err)
		}
	}
	return allErrors
}

// Map runs fn over items with at most numWorkers goroutines and returns the results in input order.
// Items not started before ctx is cancelled get ctx.Err() as their error.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	results := make([]Result[R], len(items))
	started := make([]bool, len(items))

	var wg sync.WaitGroup
	taskChan := make(chan int, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				select {
				case <-ctx.Done():
					results[idx].Err = ctx.Err()
				default:
					v, err := fn(ctx, items[idx])
					results[idx] = Result[R]{Value: v, Err: err}
				}
			}
		}()
	}

OUT:
	for idx := range items {
		select {
		case taskChan <- idx:
			started[idx] = true
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for idx, ok := range started {
		if !ok {
			results[idx].Err = ctx.Err()
		}
	}
	return results
}
