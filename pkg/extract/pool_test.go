package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// squareWorker squares its input, with an optional per-call delay to shake
// out ordering under real concurrency.
type squareWorker struct {
	delay  time.Duration
	closed *atomic.Int32
}

func (w *squareWorker) Process(in int) (int, error) {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	return in * in, nil
}

func (w *squareWorker) Close() error {
	if w.closed != nil {
		w.closed.Add(1)
	}
	return nil
}

func counter(n int) func() (int, bool) {
	i := 0
	return func() (int, bool) {
		if i >= n {
			return 0, false
		}
		i++
		return i, true
	}
}

// TestRunOrderedPreservesOrder checks that results arrive at the sink in
// submission order even when workers finish out of order.
func TestRunOrderedPreservesOrder(t *testing.T) {
	var closed atomic.Int32
	var mu sync.Mutex
	var got []int

	err := RunOrdered(context.Background(), 4,
		counter(50),
		func() Worker[int, int] {
			return &squareWorker{delay: time.Millisecond, closed: &closed}
		},
		func(out int) error {
			mu.Lock()
			got = append(got, out)
			mu.Unlock()
			return nil
		})
	if err != nil {
		t.Fatalf("RunOrdered failed: %v", err)
	}

	if len(got) != 50 {
		t.Fatalf("sink saw %d results, want 50", len(got))
	}
	for i, v := range got {
		if want := (i + 1) * (i + 1); v != want {
			t.Errorf("result %d = %d, want %d", i, v, want)
		}
	}
	if closed.Load() != 4 {
		t.Errorf("%d workers closed, want 4", closed.Load())
	}
}

// TestRunOrderedInline checks the single-goroutine path used when no
// workers are requested.
func TestRunOrderedInline(t *testing.T) {
	var closed atomic.Int32
	var got []int

	err := RunOrdered(context.Background(), 0,
		counter(5),
		func() Worker[int, int] { return &squareWorker{closed: &closed} },
		func(out int) error {
			got = append(got, out)
			return nil
		})
	if err != nil {
		t.Fatalf("RunOrdered failed: %v", err)
	}
	if len(got) != 5 || got[4] != 25 {
		t.Errorf("results %v", got)
	}
	if closed.Load() != 1 {
		t.Errorf("%d workers closed, want 1", closed.Load())
	}
}

type failingWorker struct {
	failAt int
}

func (w *failingWorker) Process(in int) (int, error) {
	if in == w.failAt {
		return 0, errors.New("bad batch")
	}
	return in, nil
}

// TestRunOrderedStopsOnWorkerError checks that a worker error aborts the
// run and surfaces to the caller.
func TestRunOrderedStopsOnWorkerError(t *testing.T) {
	var sunk atomic.Int32
	err := RunOrdered(context.Background(), 3,
		counter(100),
		func() Worker[int, int] { return &failingWorker{failAt: 10} },
		func(out int) error {
			sunk.Add(1)
			return nil
		})
	if err == nil || err.Error() != "bad batch" {
		t.Fatalf("err = %v, want bad batch", err)
	}
	if sunk.Load() >= 100 {
		t.Error("sink ran to completion despite worker error")
	}
}

// TestRunOrderedStopsOnSinkError checks that a sink error aborts the run.
func TestRunOrderedStopsOnSinkError(t *testing.T) {
	sinkErr := errors.New("disk full")
	calls := 0
	err := RunOrdered(context.Background(), 2,
		counter(100),
		func() Worker[int, int] { return &squareWorker{} },
		func(out int) error {
			calls++
			if calls == 3 {
				return sinkErr
			}
			return nil
		})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want %v", err, sinkErr)
	}
}

// TestRunOrderedCancellation checks that cancelling the context unblocks
// the pipeline.
func TestRunOrderedCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- RunOrdered(ctx, 2,
			counter(1_000_000),
			func() Worker[int, int] {
				return &squareWorker{delay: time.Millisecond}
			},
			func(out int) error { return nil })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}
