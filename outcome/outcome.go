// Package outcome provides a settle-once asynchronous result.
//
// An Outcome starts pending and is settled exactly once, either resolved with
// a value or rejected with an error. Later attempts to settle it are no-ops.
// Any number of goroutines may wait on it.
package outcome

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result for an outcome that has not settled yet.
var ErrPending = errors.New("outcome is still pending")

// Awaitable is anything that eventually yields a value or an error.
type Awaitable[T any] interface {
	Await(ctx context.Context) (T, error)
}

// Outcome is a one-shot result holder.
type Outcome[T any] struct {
	done  chan struct{}
	mu    sync.Mutex
	set   bool
	value T
	err   error
}

// New creates a pending outcome.
func New[T any]() *Outcome[T] {
	return &Outcome[T]{done: make(chan struct{})}
}

// Resolved creates an outcome already resolved with value.
func Resolved[T any](value T) *Outcome[T] {
	o := New[T]()
	o.Resolve(value)
	return o
}

// Rejected creates an outcome already rejected with err.
func Rejected[T any](err error) *Outcome[T] {
	o := New[T]()
	o.Reject(err)
	return o
}

// Resolve settles the outcome with value. It reports whether this call
// performed the settlement.
func (o *Outcome[T]) Resolve(value T) bool {
	return o.settle(value, nil)
}

// Reject settles the outcome with err. A nil err is replaced by a generic
// error so that a rejected outcome can always be told apart from a resolved one.
func (o *Outcome[T]) Reject(err error) bool {
	if err == nil {
		err = errors.New("outcome rejected without an error")
	}
	var zero T
	return o.settle(zero, err)
}

// Settle resolves or rejects depending on err.
func (o *Outcome[T]) Settle(value T, err error) bool {
	if err != nil {
		return o.Reject(err)
	}
	return o.Resolve(value)
}

func (o *Outcome[T]) settle(value T, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.set {
		return false
	}

	o.set = true
	o.value = value
	o.err = err
	close(o.done)
	return true
}

// Done is closed once the outcome settles.
func (o *Outcome[T]) Done() <-chan struct{} {
	return o.done
}

// Settled reports whether the outcome has been resolved or rejected.
func (o *Outcome[T]) Settled() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value and error without blocking. It returns
// ErrPending while the outcome is still pending.
func (o *Outcome[T]) Result() (T, error) {
	if !o.Settled() {
		var zero T
		return zero, ErrPending
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.err
}

// Await blocks until the outcome settles or ctx is done. Cancelling ctx only
// stops the wait, the outcome itself keeps going.
func (o *Outcome[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to be called with the settled value and error. fn runs on
// its own goroutine, never on the goroutine that settles the outcome.
func (o *Outcome[T]) Then(fn func(T, error)) {
	go func() {
		<-o.done
		fn(o.Result())
	}()
}

// Follow settles target with whatever source settles with.
func Follow[T any](ctx context.Context, source Awaitable[T], target *Outcome[T]) {
	value, err := source.Await(ctx)
	target.Settle(value, err)
}
