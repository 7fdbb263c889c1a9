package query

import (
	"container/list"
	"sync"
)

// lruTracker is a capacity-bounded recency list over memo keys. It does not
// hold values; it only decides which key falls off the end when a new one is
// touched, and the owning Query strips that memo's value.
type lruTracker[K comparable] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used
}

func newLRUTracker[K comparable](capacity int) *lruTracker[K] {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruTracker[K]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// touch marks key as most-recently used. When that pushes the tracker over
// capacity, the least-recently-used key is removed and returned.
func (t *lruTracker[K]) touch(key K) (K, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero K
	if el, ok := t.items[key]; ok {
		t.order.MoveToFront(el)
		return zero, false
	}
	t.items[key] = t.order.PushFront(key)
	if t.order.Len() <= t.capacity {
		return zero, false
	}
	back := t.order.Back()
	t.order.Remove(back)
	evicted := back.Value.(K)
	delete(t.items, evicted)
	return evicted, true
}

// Len returns the number of tracked keys.
func (t *lruTracker[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
