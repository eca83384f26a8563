package indicator

import "mtf-screener/internal/model"

// AOReading is one Awesome Oscillator output.
type AOReading struct {
	AO        float64 `json:"ao"`
	FastSMA   float64 `json:"fastSMA"`
	SlowSMA   float64 `json:"slowSMA"`
	Timestamp int64   `json:"timestamp"`
}

func (AOReading) Kind() Kind      { return KindAO }
func (a AOReading) Time() int64 { return a.Timestamp }

// AwesomeOscillator is SMA(median, fast) - SMA(median, slow) with
// median = (high+low)/2. Both averages come from the last slow medians, so a
// fast period longer than the slow one never becomes ready.
type AwesomeOscillator struct {
	fastPeriod, slowPeriod int

	fast  window
	slow  window
	ready bool
	hist  history[AOReading]
}

// NewAwesomeOscillator creates an AO. Zero periods default to 5 and 34.
func NewAwesomeOscillator(fast, slow int) *AwesomeOscillator {
	fast = withDefault(fast, 5)
	slow = withDefault(slow, 34)
	return &AwesomeOscillator{
		fastPeriod: fast,
		slowPeriod: slow,
		fast:       newWindow(fast),
		slow:       newWindow(slow),
		hist:       newHistory[AOReading](),
	}
}

func (a *AwesomeOscillator) Kind() Kind        { return KindAO }
func (a *AwesomeOscillator) Ready() bool       { return a.ready }
func (a *AwesomeOscillator) WarmupPeriod() int { return a.slowPeriod }

func (a *AwesomeOscillator) Update(c model.Candle) Reading {
	median := (c.High + c.Low) / 2
	a.fast.push(median)
	a.slow.push(median)

	if a.fastPeriod > a.slowPeriod || !a.fast.full() || !a.slow.full() {
		return nil
	}
	a.ready = true

	f, s := a.fast.mean(), a.slow.mean()
	out := AOReading{AO: f - s, FastSMA: f, SlowSMA: s, Timestamp: c.TS}
	a.hist.push(out)
	return out
}

func (a *AwesomeOscillator) Value() Reading {
	if v, ok := a.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (a *AwesomeOscillator) Last() (AOReading, bool) {
	if !a.ready {
		return AOReading{}, false
	}
	return a.hist.last()
}

func (a *AwesomeOscillator) History(n int) []Reading { return a.hist.readings(n) }

// IsBullishCrossover reports AO crossing above zero.
func (a *AwesomeOscillator) IsBullishCrossover() bool {
	prev, cur, ok := a.hist.lastTwo()
	return ok && prev.AO < 0 && cur.AO > 0
}

// IsBearishCrossover reports AO crossing below zero.
func (a *AwesomeOscillator) IsBearishCrossover() bool {
	prev, cur, ok := a.hist.lastTwo()
	return ok && prev.AO > 0 && cur.AO < 0
}

// IsTwinPeaksBullish reports three negative bars where the middle one is the
// trough.
func (a *AwesomeOscillator) IsTwinPeaksBullish() bool {
	v := a.hist.tail(3)
	if len(v) < 3 {
		return false
	}
	return v[0].AO < 0 && v[1].AO < 0 && v[2].AO < 0 &&
		v[1].AO < v[0].AO && v[2].AO > v[1].AO
}

func (a *AwesomeOscillator) Reset() {
	a.fast.reset()
	a.slow.reset()
	a.ready = false
	a.hist.reset()
}
