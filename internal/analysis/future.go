package analysis

import (
	"context"
	"sync"
)

// future is a settle-once result cell.
type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// settledFuture returns a future already holding v.
func settledFuture[T any](v T) *future[T] {
	f := newFuture[T]()
	f.settle(v, nil)
	return f
}

// settle records the outcome. Only the first call has an effect.
func (f *future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

func (f *future[T]) wait(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// value returns the result if the future settled successfully.
func (f *future[T]) value() (T, bool) {
	select {
	case <-f.done:
		return f.val, f.err == nil
	default:
		var zero T
		return zero, false
	}
}
