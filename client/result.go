package client

import (
	"sync/atomic"
)

type outcome struct {
	resp Response
	err  error
}

// result bridges the exchange's terminal callbacks to a single waiter. The
// first of resolve or fail wins; later calls are dropped.
type result struct {
	consumed atomic.Bool
	ch       chan outcome
}

func newResult() *result {
	return &result{ch: make(chan outcome, 1)}
}

// resolve delivers resp. It reports whether this call settled the result.
func (r *result) resolve(resp Response) bool {
	return r.settle(outcome{resp: resp})
}

// fail delivers err. It reports whether this call settled the result.
func (r *result) fail(err error) bool {
	return r.settle(outcome{err: err})
}

func (r *result) settle(o outcome) bool {
	if !r.consumed.CompareAndSwap(false, true) {
		return false
	}
	r.ch <- o
	return true
}

// done yields the outcome once it is settled.
func (r *result) done() <-chan outcome {
	return r.ch
}
