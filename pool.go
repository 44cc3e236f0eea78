package fundmate

import (
	"context"
	"sync"
)

// runPool runs fn on every job with at most workers goroutines and returns
// the results in job order. A non positive workers defaults to 10.
func runPool[J, R any](ctx context.Context, workers int, jobs []J, fn func(context.Context, J) R) []R {
	results := make([]R, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = 10
	}
	if len(jobs) < workers {
		workers = len(jobs) // Don't spawn more workers than jobs
	}

	type jobItem struct {
		index int
		job   J
	}
	queue := make(chan jobItem, len(jobs))
	for i, j := range jobs {
		queue <- jobItem{index: i, job: j}
	}
	close(queue)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				// each goroutine writes distinct indexes.
				results[item.index] = fn(ctx, item.job)
			}
		}()
	}
	wg.Wait()
	return results
}
