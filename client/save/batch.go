package save

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// WorkFunc is one unit of work run by a [Batch].
type WorkFunc func(ctx context.Context) error

// Batch runs saves concurrently and collects their errors.
type Batch struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	sem      chan struct{}
	shutdown atomic.Bool
	errs     []error
}

// NewBatch creates a Batch running at most maxConcurrent functions at
// once. If maxConcurrent <= 0, concurrency is unlimited.
func NewBatch(maxConcurrent int) *Batch {
	b := &Batch{}
	if maxConcurrent > 0 {
		b.sem = make(chan struct{}, maxConcurrent)
	}
	return b
}

// Go runs fn in a new goroutine managed by the batch.
func (b *Batch) Go(ctx context.Context, fn WorkFunc) {
	b.wg.Go(func() {
		if b.sem != nil {
			select {
			case b.sem <- struct{}{}:
				defer func() {
					<-b.sem
				}()
			case <-ctx.Done():
				b.record(ctx.Err())
				return
			}
		}

		if b.shutdown.Load() {
			b.record(ErrBatchShutdown)
			return
		}

		if err := fn(ctx); err != nil {
			b.record(err)
		}
	})
}

// Wait blocks until every function started with Go returns, and
// returns all of their errors joined.
func (b *Batch) Wait() error {
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	return errors.Join(b.errs...)
}

// Shutdown makes functions that have not started yet fail with
// [ErrBatchShutdown].
func (b *Batch) Shutdown() {
	b.shutdown.Store(true)
}

func (b *Batch) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}
