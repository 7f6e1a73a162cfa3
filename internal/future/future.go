// Package future provides a resolve-once value shared between the flow
// engine and its observers.
package future

import (
	"context"
	"sync"
)

// Future resolves exactly once, either with a value or with an error.
// Later Complete/Fail calls are ignored.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New creates an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete resolves the future with a value. First settlement wins.
func (f *Future[T]) Complete(val T) {
	f.once.Do(func() {
		f.val = val
		close(f.done)
	})
}

// Fail resolves the future with an error. First settlement wins.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future settles or the context is cancelled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Peek returns the settled value without blocking. ok is false while the
// future is still pending.
func (f *Future[T]) Peek() (val T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
