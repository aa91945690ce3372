// Package task runs batch operations over item lists on a background
// goroutine, reporting per-item progress and honoring cooperative
// cancellation. It is the execution layer under library scans, loudness
// normalization, downloads and trims.
package task

import (
	"fmt"
	"sync/atomic"
)

// Flag is a cancellation flag shared between the initiator (who sets it)
// and the worker (who polls it between items). Once set it stays set for
// the lifetime of the task.
type Flag struct {
	set atomic.Bool
}

// Set requests cancellation. Safe to call from any goroutine, idempotent.
func (f *Flag) Set() {
	f.set.Store(true)
}

// IsSet reports whether cancellation has been requested.
func (f *Flag) IsSet() bool {
	return f.set.Load()
}

// FailurePolicy controls what happens when the per-item operation fails.
type FailurePolicy int

const (
	// SkipFailed skips the failed item and continues with the rest.
	// Used for best-effort batches such as loudness normalization.
	SkipFailed FailurePolicy = iota

	// AbortOnError stops the task at the first failure and records it.
	// Used for operations where a partial result is worse than none,
	// such as trimming.
	AbortOnError
)

// Observer receives task events. All callbacks are optional. They are
// invoked sequentially from the task's goroutine, so progress arrives in
// non-decreasing completed-count order and the terminal callbacks fire at
// most once. Callers that need delivery on another goroutine (a UI loop,
// a websocket writer) should forward events through their own channel;
// internal/web does exactly that.
type Observer struct {
	// OnProgress fires after each processed item with the updated count.
	OnProgress func(completed, total int)

	// OnDone fires once when every item was processed without cancellation.
	OnDone func()

	// OnFinished always fires exactly once, after OnDone or on
	// cancellation or abort. It is the terminal event.
	OnFinished func()

	// OnError fires when the task aborts under AbortOnError.
	OnError func(err error)
}

// Runner executes a per-item operation over an ordered item list.
// Cancellation is cooperative: the flag is checked between items, so an
// in-flight operation always runs to completion before the task stops.
type Runner[T any] struct {
	Name   string
	Policy FailurePolicy

	items []T
	op    func(T) error
	flag  *Flag

	started   atomic.Bool
	completed atomic.Int32
	skipped   atomic.Int32
	err       error
	done      chan struct{}
}

// New creates a runner for the given items and per-item operation.
// The default failure policy is SkipFailed.
func New[T any](name string, items []T, op func(T) error) *Runner[T] {
	return &Runner[T]{
		Name:  name,
		items: items,
		op:    op,
		flag:  &Flag{},
		done:  make(chan struct{}),
	}
}

// Total returns the number of items in the task.
func (r *Runner[T]) Total() int {
	return len(r.items)
}

// Completed returns the number of items processed so far.
func (r *Runner[T]) Completed() int {
	return int(r.completed.Load())
}

// Skipped returns the number of items that failed and were skipped
// under the SkipFailed policy.
func (r *Runner[T]) Skipped() int {
	return int(r.skipped.Load())
}

// Cancel requests cooperative cancellation. The task stops before the
// next item; the current item is not interrupted.
func (r *Runner[T]) Cancel() {
	r.flag.Set()
}

// Cancelled reports whether cancellation has been requested.
func (r *Runner[T]) Cancelled() bool {
	return r.flag.IsSet()
}

// Start launches the task on a new goroutine and returns immediately.
// It fails if the runner was already started.
func (r *Runner[T]) Start(obs Observer) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("task %s already started", r.Name)
	}

	go r.run(obs)
	return nil
}

// Wait blocks until the task has finished. It returns the abort error
// under AbortOnError; cancellation is a normal terminal state, not an
// error.
func (r *Runner[T]) Wait() error {
	<-r.done
	return r.err
}

// Err returns the abort error, if any, once the task has finished.
func (r *Runner[T]) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Runner[T]) run(obs Observer) {
	defer func() {
		if obs.OnFinished != nil {
			obs.OnFinished()
		}
		close(r.done)
	}()

	total := len(r.items)
	for _, item := range r.items {
		if r.flag.IsSet() {
			return
		}

		if err := r.op(item); err != nil {
			if r.Policy == AbortOnError {
				r.err = fmt.Errorf("task %s: %w", r.Name, err)
				if obs.OnError != nil {
					obs.OnError(r.err)
				}
				return
			}
			// Best effort: the item is skipped but still counts as
			// processed so the progress counter reaches the total.
			r.skipped.Add(1)
		}

		n := int(r.completed.Add(1))
		if obs.OnProgress != nil {
			obs.OnProgress(n, total)
		}
	}

	if obs.OnDone != nil {
		obs.OnDone()
	}
}
