package dispatch

import "context"

// Future is the handle of an asynchronous batch.
type Future struct {
	done    chan struct{}
	results []Result
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(results []Result, err error) {
	f.results = results
	f.err = err
	close(f.done)
}

// Done is closed once the batch has finished or was dropped.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the batch finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-f.done:
		return f.results, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
