package indicator

import "mtf-screener/internal/model"

// MACDReading is one MACD output.
type MACDReading struct {
	MACDLine   float64 `json:"macdLine"`
	SignalLine float64 `json:"signalLine"`
	Histogram  float64 `json:"histogram"`
	Timestamp  int64   `json:"timestamp"`
}

func (MACDReading) Kind() Kind      { return KindMACD }
func (m MACDReading) Time() int64 { return m.Timestamp }

// MACD tracks fast and slow EMAs of close and an EMA of their difference.
// Each EMA is seeded with the simple mean of its first period inputs. The
// first reading comes on candle max(fast, slow) + signal - 1.
type MACD struct {
	fastPeriod, slowPeriod, signalPeriod int

	fast   ema
	slow   ema
	signal ema
	ready  bool
	hist   history[MACDReading]
}

// NewMACD creates a MACD. Zero periods default to 12, 26 and 9.
func NewMACD(fast, slow, signal int) *MACD {
	fast = withDefault(fast, 12)
	slow = withDefault(slow, 26)
	signal = withDefault(signal, 9)
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		fast:         newEMA(fast),
		slow:         newEMA(slow),
		signal:       newEMA(signal),
		hist:         newHistory[MACDReading](),
	}
}

func (m *MACD) Kind() Kind  { return KindMACD }
func (m *MACD) Ready() bool { return m.ready }

func (m *MACD) WarmupPeriod() int {
	return max(m.fastPeriod, m.slowPeriod) + m.signalPeriod - 1
}

func (m *MACD) Update(c model.Candle) Reading {
	f, okF := m.fast.update(c.Close)
	s, okS := m.slow.update(c.Close)
	if !okF || !okS {
		return nil
	}

	line := f - s
	sig, ok := m.signal.update(line)
	if !ok {
		return nil
	}
	m.ready = true

	out := MACDReading{MACDLine: line, SignalLine: sig, Histogram: line - sig, Timestamp: c.TS}
	m.hist.push(out)
	return out
}

func (m *MACD) Value() Reading {
	if v, ok := m.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (m *MACD) Last() (MACDReading, bool) {
	if !m.ready {
		return MACDReading{}, false
	}
	return m.hist.last()
}

func (m *MACD) History(n int) []Reading { return m.hist.readings(n) }

// IsBullishCrossover reports the histogram turning from negative to positive.
func (m *MACD) IsBullishCrossover() bool {
	prev, cur, ok := m.hist.lastTwo()
	return ok && prev.Histogram < 0 && cur.Histogram > 0
}

// IsBearishCrossover reports the histogram turning from positive to negative.
func (m *MACD) IsBearishCrossover() bool {
	prev, cur, ok := m.hist.lastTwo()
	return ok && prev.Histogram > 0 && cur.Histogram < 0
}

// DetectDivergence compares the last three prices with the last three
// histogram values.
func (m *MACD) DetectDivergence(prices []float64) Divergence {
	tail := m.hist.tail(3)
	vals := make([]float64, len(tail))
	for i, v := range tail {
		vals[i] = v.Histogram
	}
	return detectDivergence(prices, vals)
}

func (m *MACD) Reset() {
	m.fast.reset()
	m.slow.reset()
	m.signal.reset()
	m.ready = false
	m.hist.reset()
}
