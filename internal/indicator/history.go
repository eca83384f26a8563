package indicator

import "mtf-screener/internal/ringbuf"

// history is the capped reading log owned by one indicator.
type history[R Reading] struct {
	ring *ringbuf.Ring[R]
}

func newHistory[R Reading]() history[R] {
	return history[R]{ring: ringbuf.New[R](HistoryCap)}
}

func (h history[R]) push(r R) { h.ring.Push(r) }

func (h history[R]) last() (R, bool) { return h.ring.Last() }

func (h history[R]) len() int { return h.ring.Len() }

// tail returns up to n typed readings, oldest first.
func (h history[R]) tail(n int) []R { return h.ring.Tail(n) }

// readings returns up to n readings boxed as the Reading interface.
func (h history[R]) readings(n int) []Reading {
	typed := h.ring.Tail(n)
	if len(typed) == 0 {
		return nil
	}
	out := make([]Reading, len(typed))
	for i, r := range typed {
		out[i] = r
	}
	return out
}

// lastTwo returns the previous and current readings.
func (h history[R]) lastTwo() (prev, cur R, ok bool) {
	n := h.len()
	if n < 2 {
		return prev, cur, false
	}
	return h.ring.At(n - 2), h.ring.At(n - 1), true
}

func (h history[R]) reset() { h.ring.Reset() }
