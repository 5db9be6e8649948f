package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := NewPool(workers, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func TestRunReturnsResult(t *testing.T) {
	p := newTestPool(t, 2)

	got, err := Run(context.Background(), p, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestDoPropagatesError(t *testing.T) {
	p := newTestPool(t, 1)
	want := errors.New("vendor down")

	err := Do(context.Background(), p, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := newTestPool(t, 2)

	var running, peak atomic.Int32
	done := make(chan struct{}, 10)
	for range 10 {
		if err := p.Submit(context.Background(), func(context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			done <- struct{}{}
		}); err != nil {
			t.Fatal(err)
		}
	}

	for range 10 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for jobs")
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunHonoursCallerContext(t *testing.T) {
	p := newTestPool(t, 1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, p, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestQueuedJobRunsAfterCancel(t *testing.T) {
	p := newTestPool(t, 1)
	release := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) { <-release }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	if err := p.Submit(ctx, func(ctx context.Context) { ran <- ctx.Err() }); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(release)

	select {
	case err := <-ran:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("job ctx err = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued job was dropped after its ctx was cancelled")
	}
}

func TestRunSkipsFnWhenCancelledInQueue(t *testing.T) {
	p := newTestPool(t, 1)
	release := make(chan struct{})
	if err := p.Submit(context.Background(), func(context.Context) { <-release }); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var called atomic.Bool
	errc := make(chan error, 1)
	go func() {
		errc <- Do(ctx, p, func(context.Context) error {
			called.Store(true)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want canceled", err)
	}
	close(release)

	// A follow-up job on the single worker runs after the cancelled one.
	if err := Do(context.Background(), p, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if called.Load() {
		t.Error("fn ran although its ctx was cancelled while queued")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1, nil)
	p.Start()
	p.Stop()

	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
	p.Stop()
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := newTestPool(t, 1)

	if err := p.Submit(context.Background(), func(context.Context) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	got, err := Run(context.Background(), p, func(context.Context) (string, error) { return "alive", nil })
	if err != nil || got != "alive" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestDefaultWorkers(t *testing.T) {
	if got := NewPool(0, nil).Workers(); got != defaultWorkers {
		t.Errorf("Workers() = %d, want %d", got, defaultWorkers)
	}
}
