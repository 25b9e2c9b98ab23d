package save

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatch_Wait_JoinedErrors(t *testing.T) {
	err1 := errors.New("error one")
	err2 := errors.New("error two")
	b := NewBatch(0)

	b.Go(t.Context(), func(ctx context.Context) error { return err1 })
	b.Go(t.Context(), func(ctx context.Context) error { return nil })
	b.Go(t.Context(), func(ctx context.Context) error { return err2 })

	err := b.Wait()
	if !errors.Is(err, err1) || !errors.Is(err, err2) {
		t.Errorf("expected both errors joined, got %v", err)
	}
}

func TestBatch_Wait_Success(t *testing.T) {
	b := NewBatch(2)

	var ran atomic.Int32
	for range 5 {
		b.Go(t.Context(), func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	if err := b.Wait(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Errorf("expected 5 runs, got %d", got)
	}
}

func TestBatch_ConcurrencyLimit(t *testing.T) {
	const limit = 2
	b := NewBatch(limit)

	var cur, peak atomic.Int32
	for range 6 {
		b.Go(t.Context(), func(ctx context.Context) error {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			cur.Add(-1)
			return nil
		})
	}

	if err := b.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("expected at most %d concurrent, got %d", limit, got)
	}
}

func TestBatch_Shutdown(t *testing.T) {
	b := NewBatch(0)
	b.Shutdown()

	var ran atomic.Bool
	b.Go(t.Context(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	if err := b.Wait(); !errors.Is(err, ErrBatchShutdown) {
		t.Errorf("expected ErrBatchShutdown, got %v", err)
	}
	if ran.Load() {
		t.Error("expected work not to run after shutdown")
	}
}

func TestBatch_ContextEndsWhileQueued(t *testing.T) {
	b := NewBatch(1)

	started := make(chan struct{})
	release := make(chan struct{})
	b.Go(t.Context(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(t.Context())
	b.Go(ctx, func(ctx context.Context) error {
		t.Error("queued work should not run")
		return nil
	})

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := b.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
