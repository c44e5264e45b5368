// Package worker runs a function over a batch of items on a fixed pool of
// goroutines while preserving input order in the results.
package worker

import (
	"context"
	"sync"
)

// Result pairs the output of fn for one item with its error.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

type task[T any] struct {
	index int
	item  T
}

// Map applies fn to every item using up to workers goroutines. Results are
// returned in the order of items. Items not yet started when ctx is
// cancelled get ctx.Err() as their error.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	for i := range results {
		results[i].Index = i
	}
	if len(items) == 0 {
		return results
	}
	workers = max(1, min(workers, len(items)))

	taskChan := make(chan task[T], workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				if err := ctx.Err(); err != nil {
					results[t.index].Err = err
					continue
				}
				// Each task owns its slot; no two goroutines write the same index.
				v, err := fn(ctx, t.item)
				results[t.index].Value = v
				results[t.index].Err = err
			}
		}()
	}

	next := 0
feed:
	for ; next < len(items); next++ {
		select {
		case taskChan <- task[T]{index: next, item: items[next]}:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskChan)
	wg.Wait()

	for ; next < len(items); next++ {
		results[next].Err = ctx.Err()
	}
	return results
}
