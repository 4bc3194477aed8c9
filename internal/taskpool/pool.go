// Package taskpool provides the bounded-concurrency primitives used to keep
// archive fetches and multi-day SSE fan-out within a small worker budget,
// so the origin never opens more concurrent upstream requests than the
// archive's rate limits tolerate. A buffered channel acts as a semaphore,
// joined with a WaitGroup.
package taskpool

import (
	"context"
	"sync"
)

// Semaphore bounds how many goroutines may run a given section concurrently.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. A non-positive
// capacity is treated as 1 (at least one concurrent task is always allowed).
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire.
func (s *Semaphore) Release() {
	<-s.slots
}

// Run executes tasks with bounded concurrency, waiting for all of them to
// finish before returning: one goroutine per task, a semaphore channel to
// cap concurrency, a WaitGroup to join.
func Run(ctx context.Context, concurrency int, tasks []func(ctx context.Context) error) []error {
	sem := NewSemaphore(concurrency)
	results := make([]error, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		if err := sem.Acquire(ctx); err != nil {
			results[i] = err
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release()
			results[i] = task(ctx)
		}()
	}

	wg.Wait()
	return results
}
