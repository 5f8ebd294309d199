// Package group provides a join primitive for a dynamically growing set of
// asynchronous tasks: tasks may be added while earlier ones are still
// running, the aggregate completes only once the group is closed and every
// task succeeded, and the first failure rejects the group immediately.
package group

import (
	"context"
	"slices"
	"sync"
)

// State is the lifecycle stage of a Group.
type State int

const (
	// Pending accepts new tasks.
	Pending State = iota
	// Closed accepts no new tasks; some are still running.
	Closed
	// Fulfilled means closed and every task succeeded.
	Fulfilled
	// Rejected means some task failed. Terminal.
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Closed:
		return "closed"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Group joins the results of tasks of type T.
type Group[T any] struct {
	mu          sync.Mutex
	state       State
	closed      bool
	results     []T
	outstanding int
	err         error
	done        chan struct{}
}

// New creates an empty, pending group.
func New[T any]() *Group[T] {
	return &Group[T]{done: make(chan struct{})}
}

// Of returns a closed group already fulfilled with results.
func Of[T any](results ...T) *Group[T] {
	g := &Group[T]{
		state:   Fulfilled,
		closed:  true,
		results: slices.Clone(results),
		done:    make(chan struct{}),
	}
	close(g.done)
	return g
}

// Add registers one more task and starts it on its own goroutine. Its
// result lands at the position matching the order of Add calls. Calling Add
// after Close is a programming error and panics.
func (g *Group[T]) Add(task func() (T, error)) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		panic("group: Add called after Close")
	}
	idx := len(g.results)
	var zero T
	g.results = append(g.results, zero)
	g.outstanding++
	g.mu.Unlock()

	go func() {
		v, err := task()
		g.settle(idx, v, err)
	}()
}

func (g *Group[T]) settle(idx int, v T, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outstanding--
	if g.state == Rejected {
		return
	}
	if err != nil {
		g.err = err
		g.state = Rejected
		close(g.done)
		return
	}
	g.results[idx] = v
	g.maybeFulfill()
}

// Close declares that no further tasks will be added. Closing twice is a
// no-op.
func (g *Group[T]) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.state == Pending {
		g.state = Closed
		g.maybeFulfill()
	}
}

// maybeFulfill must be called with mu held.
func (g *Group[T]) maybeFulfill() {
	if g.state == Closed && g.outstanding == 0 {
		g.state = Fulfilled
		close(g.done)
	}
}

// Done is closed once the group is fulfilled or rejected.
func (g *Group[T]) Done() <-chan struct{} {
	return g.done
}

// State returns the current lifecycle stage.
func (g *Group[T]) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Wait blocks until the group settles or ctx is done. On success it
// returns the results in Add order.
func (g *Group[T]) Wait(ctx context.Context) ([]T, error) {
	select {
	case <-g.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Result()
}

// Result returns the settled outcome without blocking. Before the group
// settles it returns (nil, nil).
func (g *Group[T]) Result() ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case Fulfilled:
		out := make([]T, len(g.results))
		copy(out, g.results)
		return out, nil
	case Rejected:
		return nil, g.err
	}
	return nil, nil
}

// Settled reports whether the group has been fulfilled or rejected.
func (g *Group[T]) Settled() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}
