package dynamo

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelFor splits [0, n) into contiguous chunks of at least minChunk
// items and runs fn on each chunk with at most workers goroutines.
// workers <= 0 selects runtime.NumCPU(). The first error returned by any
// chunk is returned after all chunks finish.
func ParallelFor(n, minChunk, workers int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if minChunk < 1 {
		minChunk = 1
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers <= 1 {
		return fn(0, n)
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		s, e := start, end
		g.Go(func() error {
			return fn(s, e)
		})
	}
	return g.Wait()
}
