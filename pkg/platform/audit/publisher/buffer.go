package publisher

import "sync"

// ring is a bounded FIFO that overwrites its oldest element when full.
type ring[T any] struct {
	mu      sync.Mutex
	items   []T
	start   int
	size    int
	dropped int64
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &ring[T]{items: make([]T, capacity)}
}

// push appends v and reports whether an older element was evicted.
func (r *ring[T]) push(v T) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := (r.start + r.size) % len(r.items)
	r.items[end] = v
	if r.size == len(r.items) {
		r.start = (r.start + 1) % len(r.items)
		r.dropped++
		return true
	}
	r.size++
	return false
}

// pop removes up to n elements in insertion order.
func (r *ring[T]) pop(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	var zero T
	for i := range out {
		idx := (r.start + i) % len(r.items)
		out[i] = r.items[idx]
		r.items[idx] = zero
	}
	r.start = (r.start + n) % len(r.items)
	r.size -= n
	return out
}

func (r *ring[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *ring[T]) droppedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
