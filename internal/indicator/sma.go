package indicator

import "mtf-screener/internal/ringbuf"

// window is a rolling simple moving average over the last period values,
// kept as a ring plus a running sum.
type window struct {
	period int
	buf    *ringbuf.Ring[float64]
	sum    float64
}

func newWindow(period int) window {
	return window{period: period, buf: ringbuf.New[float64](period)}
}

func (w *window) push(v float64) {
	if old, evicted := w.buf.Push(v); evicted {
		w.sum -= old
	}
	w.sum += v
}

// full reports whether period values have been seen. Non-positive periods are
// never full.
func (w *window) full() bool {
	return w.period >= 1 && w.buf.Full()
}

func (w *window) mean() float64 {
	if w.buf.Len() == 0 {
		return 0
	}
	return w.sum / float64(w.buf.Len())
}

func (w *window) highest() float64 { return highest(w.buf) }
func (w *window) lowest() float64  { return lowest(w.buf) }

func (w *window) reset() {
	w.buf.Reset()
	w.sum = 0
}
