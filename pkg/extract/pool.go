package extract

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// Worker transforms one input batch into one output batch. Implementations
// may hold per-worker state such as a lazily opened file handle; a Worker
// is only ever used from a single goroutine. Workers that also implement
// io.Closer are closed when their goroutine finishes.
type Worker[I, O any] interface {
	Process(in I) (O, error)
}

// RunOrdered feeds the tasks produced by next through a pool of nworkers
// workers and delivers every result to sink in task-submission order.
// nworkers == 0 runs everything inline in the calling goroutine. The first
// error from any stage cancels the run and is returned; at most a bounded
// number of results are in flight at any time.
func RunOrdered[I, O any](ctx context.Context, nworkers int,
	next func() (I, bool), factory func() Worker[I, O], sink func(O) error) error {

	if nworkers == 0 {
		return runInline(ctx, next, factory(), sink)
	}

	type result struct {
		out O
		err error
	}
	type task struct {
		in   I
		done chan result
	}

	// pending preserves submission order; its capacity bounds how far
	// ahead of the sink the producer can run.
	pending := make(chan chan result, nworkers)
	tasks := make(chan task)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pending)
		defer close(tasks)
		for {
			in, ok := next()
			if !ok {
				return nil
			}
			done := make(chan result, 1)
			select {
			case pending <- done:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case tasks <- task{in: in, done: done}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < nworkers; i++ {
		g.Go(func() error {
			w := factory()
			defer closeWorker(w)
			for t := range tasks {
				out, err := w.Process(t.in)
				if err != nil {
					return err
				}
				t.done <- result{out: out}
			}
			return nil
		})
	}

	g.Go(func() error {
		for done := range pending {
			var res result
			select {
			case res = <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := sink(res.out); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func runInline[I, O any](ctx context.Context, next func() (I, bool), w Worker[I, O], sink func(O) error) error {
	defer closeWorker(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, ok := next()
		if !ok {
			return nil
		}
		out, err := w.Process(in)
		if err != nil {
			return err
		}
		if err := sink(out); err != nil {
			return err
		}
	}
}

func closeWorker(w any) {
	if c, ok := w.(io.Closer); ok {
		c.Close()
	}
}
