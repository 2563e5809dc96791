package function

import (
	"context"
	"sync"
)

type Evaluator interface {
	Evaluate(args []Value) (hash string, ok bool, err error)
}

type RowResult struct {
	Hash string
	Null bool
	Err  error
}

// EvaluateRows evaluates rows on at most workers goroutines. Results keep the
// input order; a failing row records its error without stopping the others.
func EvaluateRows(ctx context.Context, ev Evaluator, rows [][]Value, workers int) []RowResult {
	out := make([]RowResult, len(rows))
	if len(rows) == 0 {
		return out
	}
	if workers <= 0 {
		workers = 8
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	jobs := make(chan int, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				hash, ok, err := ev.Evaluate(rows[i])
				out[i] = RowResult{Hash: hash, Null: !ok && err == nil, Err: err}
			}
		}()
	}

	next := 0
dispatch:
	for ; next < len(rows); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(rows); i++ {
		out[i] = RowResult{Err: ctx.Err()}
	}
	return out
}
