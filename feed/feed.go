// Package feed broadcasts values to any number of subscribers without letting a slow subscriber
// hold up the sender.
package feed

import "sync"

type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]*Subscription[T])}
}

type Subscription[T any] struct {
	feed     *Feed[T]
	id       uint64
	c        chan T
	keepLast bool
	once     sync.Once
}

func (s *Subscription[T]) Recv() <-chan T {
	return s.c
}

// Unsubscribe closes the channel returned by Recv. It is safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()
		delete(s.feed.subs, s.id)
		close(s.c)
	})
}

// Subscribe returns a subscription that misses values sent while its buffer is full.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	return f.add(false)
}

// SubscribeKeepLast returns a subscription that drops its oldest buffered value to make room, so
// the latest value is never missed.
func (f *Feed[T]) SubscribeKeepLast() *Subscription[T] {
	return f.add(true)
}

func (f *Feed[T]) add(keepLast bool) *Subscription[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &Subscription[T]{feed: f, id: f.nextID, c: make(chan T, 1), keepLast: keepLast}
	f.subs[sub.id] = sub
	f.nextID++
	return sub
}

// Send hands v to every subscriber without blocking.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		select {
		case sub.c <- v:
			continue
		default:
		}
		if !sub.keepLast {
			continue
		}
		// The subscriber may have drained the buffer in the meantime.
		select {
		case <-sub.c:
		default:
		}
		sub.c <- v
	}
}

// Len is the number of live subscriptions.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
