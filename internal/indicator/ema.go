package indicator

// ema is an exponential moving average seeded with the simple mean of its
// first period samples. O(1) per update, no window storage.
type ema struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

func newEMA(period int) ema {
	return ema{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// update feeds v and reports whether the average is defined. A period below
// one never seeds.
func (e *ema) update(v float64) (float64, bool) {
	if e.period < 1 {
		return 0, false
	}
	e.count++

	if e.count <= e.period {
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
			return e.current, true
		}
		return 0, false
	}

	e.current = emaStep(e.current, v, e.multiplier)
	return e.current, true
}

func (e *ema) ready() bool { return e.period >= 1 && e.count >= e.period }

func (e *ema) reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// emaStep is one EMA recurrence: (v - prev) * k + prev.
func emaStep(prev, v, k float64) float64 {
	return (v-prev)*k + prev
}
