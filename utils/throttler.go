package utils

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrResourceBusy = errors.New("resource busy, try again")

// Throttler bounds the number of concurrent users of a shared resource. Callers beyond the budget
// wait in a queue; once the queue is full further callers are refused with ErrResourceBusy.
type Throttler[T any] struct {
	resource *T
	budget   *semaphore.Weighted

	waiting  atomic.Int32
	running  atomic.Int32
	maxQueue int32
}

func NewThrottler[T any](budget uint, resource *T) *Throttler[T] {
	return &Throttler[T]{
		resource: resource,
		budget:   semaphore.NewWeighted(int64(budget)),
		maxQueue: math.MaxInt32,
	}
}

// WithMaxQueueLen caps the number of callers waiting for the resource.
func (t *Throttler[T]) WithMaxQueueLen(maxQueueLen int32) *Throttler[T] {
	t.maxQueue = maxQueueLen
	return t
}

// Do runs fn with the resource once a slot is free.
func (t *Throttler[T]) Do(fn func(resource *T) error) error {
	return t.DoContext(context.Background(), fn)
}

// DoContext is Do that stops waiting when ctx is done.
func (t *Throttler[T]) DoContext(ctx context.Context, fn func(resource *T) error) error {
	if t.waiting.Add(1) > t.maxQueue {
		t.waiting.Add(-1)
		return ErrResourceBusy
	}
	err := t.budget.Acquire(ctx, 1)
	t.waiting.Add(-1)
	if err != nil {
		return err
	}

	t.running.Add(1)
	defer func() {
		t.running.Add(-1)
		t.budget.Release(1)
	}()
	return fn(t.resource)
}

// QueueLen is the number of callers waiting for a slot.
func (t *Throttler[T]) QueueLen() int {
	return int(t.waiting.Load())
}

// JobsRunning is the number of callers holding a slot.
func (t *Throttler[T]) JobsRunning() int {
	return int(t.running.Load())
}
