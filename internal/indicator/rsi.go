package indicator

import "mtf-screener/internal/model"

// RSIReading is one RSI output.
type RSIReading struct {
	RSI       float64 `json:"rsi"`
	AvgGain   float64 `json:"avgGain"`
	AvgLoss   float64 `json:"avgLoss"`
	Timestamp int64   `json:"timestamp"`
}

func (RSIReading) Kind() Kind      { return KindRSI }
func (r RSIReading) Time() int64 { return r.Timestamp }

// RSI is the Relative Strength Index with Wilder smoothing.
//
// The first candle only records the previous close. Gains and losses are
// seeded with their simple mean once period changes have been seen, so the
// first reading is produced on candle period+1.
type RSI struct {
	period    int
	gain      smma
	loss      smma
	prevClose float64
	hasPrev   bool
	ready     bool
	hist      history[RSIReading]
}

// NewRSI creates an RSI. A zero period defaults to 14.
func NewRSI(period int) *RSI {
	period = withDefault(period, 14)
	return &RSI{
		period: period,
		gain:   newSMMA(period),
		loss:   newSMMA(period),
		hist:   newHistory[RSIReading](),
	}
}

func (r *RSI) Kind() Kind        { return KindRSI }
func (r *RSI) Ready() bool       { return r.ready }
func (r *RSI) WarmupPeriod() int { return r.period + 1 }

func (r *RSI) Update(c model.Candle) Reading {
	if !r.hasPrev {
		r.prevClose = c.Close
		r.hasPrev = true
		return nil
	}

	change := c.Close - r.prevClose
	r.prevClose = c.Close
	var g, l float64
	if change > 0 {
		g = change
	} else if change < 0 {
		l = -change
	}

	avgGain, okG := r.gain.update(g)
	avgLoss, okL := r.loss.update(l)
	if !okG || !okL {
		return nil
	}
	r.ready = true

	rsi := 100.0
	if avgLoss != 0 {
		rsi = 100 - 100/(1+avgGain/avgLoss)
	}
	out := RSIReading{RSI: rsi, AvgGain: avgGain, AvgLoss: avgLoss, Timestamp: c.TS}
	r.hist.push(out)
	return out
}

func (r *RSI) Value() Reading {
	if v, ok := r.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (r *RSI) Last() (RSIReading, bool) {
	if !r.ready {
		return RSIReading{}, false
	}
	return r.hist.last()
}

func (r *RSI) History(n int) []Reading { return r.hist.readings(n) }

// IsOversold reports RSI strictly below th.
func (r *RSI) IsOversold(th float64) bool {
	v, ok := r.Last()
	return ok && v.RSI < th
}

// IsOverbought reports RSI strictly above th.
func (r *RSI) IsOverbought(th float64) bool {
	v, ok := r.Last()
	return ok && v.RSI > th
}

// DetectDivergence compares the last three prices with the last three RSI
// values.
func (r *RSI) DetectDivergence(prices []float64) Divergence {
	tail := r.hist.tail(3)
	vals := make([]float64, len(tail))
	for i, v := range tail {
		vals[i] = v.RSI
	}
	return detectDivergence(prices, vals)
}

func (r *RSI) Reset() {
	r.gain.reset()
	r.loss.reset()
	r.prevClose = 0
	r.hasPrev = false
	r.ready = false
	r.hist.reset()
}
