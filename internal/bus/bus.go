// Package bus is a small fan-out pub/sub used for view and resource events.
package bus

import "sync"

// Bus is a simple fan-out pub/sub. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
	size int
}

// New creates a bus whose subscriber channels hold size events.
func New[T any](size int) *Bus[T] {
	if size <= 0 {
		size = 16
	}
	return &Bus[T]{subs: make(map[chan T]struct{}), size: size}
}

// Publish sends e to all subscribers (non-blocking).
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus[T]) Subscribe() chan T {
	ch := make(chan T, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown channels
// are ignored so a subscription can be released twice.
func (b *Bus[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
