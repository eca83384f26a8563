package indicator

import "mtf-screener/internal/model"

// WilliamsRReading is one Williams %R output.
type WilliamsRReading struct {
	WilliamsR   float64 `json:"williamsR"`
	HighestHigh float64 `json:"highestHigh"`
	LowestLow   float64 `json:"lowestLow"`
	Timestamp   int64   `json:"timestamp"`
}

func (WilliamsRReading) Kind() Kind      { return KindWilliamsR }
func (w WilliamsRReading) Time() int64 { return w.Timestamp }

// flatRangeWilliamsR is reported when the lookback high equals the low.
const flatRangeWilliamsR = -50.0

// WilliamsR is Williams %R over a rolling high/low window:
// (highestHigh - close) / (highestHigh - lowestLow) * -100.
// A window with no range reports -50, the midpoint of [-100, 0].
type WilliamsR struct {
	period int
	highs  window
	lows   window
	ready  bool
	hist   history[WilliamsRReading]
}

// NewWilliamsR creates a Williams %R. A zero period defaults to 14.
func NewWilliamsR(period int) *WilliamsR {
	period = withDefault(period, 14)
	return &WilliamsR{
		period: period,
		highs:  newWindow(period),
		lows:   newWindow(period),
		hist:   newHistory[WilliamsRReading](),
	}
}

func (w *WilliamsR) Kind() Kind        { return KindWilliamsR }
func (w *WilliamsR) Ready() bool       { return w.ready }
func (w *WilliamsR) WarmupPeriod() int { return w.period }

func (w *WilliamsR) Update(c model.Candle) Reading {
	w.highs.push(c.High)
	w.lows.push(c.Low)
	if w.highs.buf.Len() < w.period {
		return nil
	}

	hh, ll := w.highs.highest(), w.lows.lowest()
	r := flatRangeWilliamsR
	if hh != ll {
		r = (hh - c.Close) / (hh - ll) * -100
	}
	w.ready = true

	out := WilliamsRReading{WilliamsR: r, HighestHigh: hh, LowestLow: ll, Timestamp: c.TS}
	w.hist.push(out)
	return out
}

func (w *WilliamsR) Value() Reading {
	if v, ok := w.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (w *WilliamsR) Last() (WilliamsRReading, bool) {
	if !w.ready {
		return WilliamsRReading{}, false
	}
	return w.hist.last()
}

func (w *WilliamsR) History(n int) []Reading { return w.hist.readings(n) }

// IsOversold reports %R at or below th (typically -80).
func (w *WilliamsR) IsOversold(th float64) bool {
	v, ok := w.Last()
	return ok && v.WilliamsR <= th
}

// IsOverbought reports %R at or above th (typically -20).
func (w *WilliamsR) IsOverbought(th float64) bool {
	v, ok := w.Last()
	return ok && v.WilliamsR >= th
}

func (w *WilliamsR) Reset() {
	w.highs.reset()
	w.lows.reset()
	w.ready = false
	w.hist.reset()
}
