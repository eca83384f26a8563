// Package ringbuf provides a fixed-capacity ring that evicts its oldest
// element on overflow. Indicators use it for rolling windows and capped
// reading histories. A Ring is not safe for concurrent use; each indicator
// set is owned by a single worker.
package ringbuf

// Ring holds the most recent Cap() values pushed to it.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// New creates a ring holding at most capacity values. Capacities below one
// are clamped to one so degenerate indicator periods never panic.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest value is overwritten and
// returned with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	n := len(r.buf)
	if r.count < n {
		r.buf[(r.head+r.count)%n] = v
		r.count++
		return old, false
	}
	old = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % n
	return old, true
}

// At returns the i-th stored value, 0 being the oldest. It panics when i is
// out of range, like a slice index.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the most recent value.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Tail copies up to n of the most recent values, oldest first.
func (r *Ring[T]) Tail(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.count - n
	for i := range n {
		out[i] = r.At(start + i)
	}
	return out
}

// Do calls fn for every stored value, oldest first.
func (r *Ring[T]) Do(fn func(T)) {
	for i := range r.count {
		fn(r.At(i))
	}
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether Len() == Cap().
func (r *Ring[T]) Full() bool { return r.count == len(r.buf) }

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.head, r.count = 0, 0
}
