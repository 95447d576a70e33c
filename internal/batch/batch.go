// Package batch runs one job per input with bounded parallelism.
package batch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of the job for Items[Index].
type Result[I, T any] struct {
	Index int
	Item  I
	Value T
	Err   error
}

// Run calls fn for every item with at most workers calls in flight and
// returns the results in input order. A failing item does not stop the
// others; its error is kept in its Result. Once ctx is done no new item is
// started and the remaining results carry ctx.Err(), which Run also returns.
// workers below 1 means runtime.NumCPU().
func Run[I, T any](ctx context.Context, items []I, workers int, fn func(context.Context, I) (T, error)) ([]Result[I, T], error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	results := make([]Result[I, T], len(items))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		results[i].Index, results[i].Item = i, item
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			r := &results[i]
			if err := ctx.Err(); err != nil {
				r.Err = err
				return nil
			}
			r.Value, r.Err = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

// Failed counts the results carrying an error.
func Failed[I, T any](results []Result[I, T]) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
