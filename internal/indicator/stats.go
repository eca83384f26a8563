package indicator

import (
	"math"

	"mtf-screener/internal/ringbuf"
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// highest returns the maximum value held in r (0 when empty).
func highest(r *ringbuf.Ring[float64]) float64 {
	hi, ok := r.Last()
	r.Do(func(v float64) { hi = max(hi, v) })
	if !ok {
		return 0
	}
	return hi
}

// lowest returns the minimum value held in r (0 when empty).
func lowest(r *ringbuf.Ring[float64]) float64 {
	lo, ok := r.Last()
	r.Do(func(v float64) { lo = min(lo, v) })
	if !ok {
		return 0
	}
	return lo
}

// withDefault substitutes def for an unset (zero) parameter. Negative values
// pass through and produce degenerate output.
func withDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func withDefaultF(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
