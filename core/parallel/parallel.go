// Package parallel provides the fork-join primitives used by the estimators:
// a contiguous range [0, items) is split into one chunk per worker and each
// chunk runs on its own goroutine, with a barrier at the end.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers normalizes a requested worker count. Values <= 0 mean one worker
// per CPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Chunks splits [0, items) into at most workers contiguous, non-empty ranges
// of near-equal size (ceiling division).
func Chunks(workers, items int) [][2]int {
	if items <= 0 {
		return nil
	}
	workers = Workers(workers)
	if workers > items {
		workers = items // No need for more workers than items
	}

	chunkSize := (items + workers - 1) / workers
	chunks := make([][2]int, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		chunks = append(chunks, [2]int{start, end})
	}
	return chunks
}

// ParallelizeN is Parallelize with an explicit worker count.
func ParallelizeN(workers, items int, fn func(start, end int)) {
	_ = ParallelizeErr(workers, items, func(start, end int) error {
		fn(start, end)
		return nil
	})
}

// ParallelizeWithThreshold performs parallelization only when the number of
// items exceeds the threshold. Otherwise fn runs once over the whole range on
// the calling goroutine.
func ParallelizeWithThreshold(workers, items, threshold int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold {
		fn(0, items)
		return
	}
	ParallelizeN(workers, items, fn)
}

// ParallelizeErr runs fn over each chunk and returns the first non-nil
// error. All chunks run to completion; there is no cancellation.
func ParallelizeErr(workers, items int, fn func(start, end int) error) error {
	return run(Chunks(workers, items), func(_, start, end int) error {
		return fn(start, end)
	})
}

// SumReduce evaluates fn on each chunk and returns the sum of the partial
// results. Partials are stored per chunk and added in chunk order after the
// barrier, so results only vary with the worker count.
func SumReduce(workers, items int, fn func(start, end int) float64) float64 {
	chunks := Chunks(workers, items)
	partials := make([]float64, len(chunks))

	_ = run(chunks, func(idx, start, end int) error {
		partials[idx] = fn(start, end)
		return nil
	})

	total := 0.0
	for _, p := range partials {
		total += p
	}
	return total
}

func run(chunks [][2]int, fn func(idx, start, end int) error) error {
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		return fn(0, chunks[0][0], chunks[0][1])
	}

	var g errgroup.Group
	for i, c := range chunks {
		idx, start, end := i, c[0], c[1]
		g.Go(func() error {
			return fn(idx, start, end)
		})
	}
	return g.Wait()
}
