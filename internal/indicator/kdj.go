package indicator

import "mtf-screener/internal/model"

// KDJReading is one KDJ output.
type KDJReading struct {
	K         float64 `json:"k"`
	D         float64 `json:"d"`
	J         float64 `json:"j"`
	Timestamp int64   `json:"timestamp"`
}

func (KDJReading) Kind() Kind      { return KindKDJ }
func (k KDJReading) Time() int64 { return k.Timestamp }

// flatRangeRSV is the RSV used when the lookback high equals the low.
const flatRangeRSV = 50.0

// KDJ is the stochastic K/D/J oscillator.
//
// RSV is the position of close within the kPeriod high/low range. K starts at
// the first RSV and is then smoothed as (prevK*(smooth-1) + RSV) / smooth. D
// is the simple mean of the last dPeriod K values the first time that many
// exist, and afterwards follows the same smoothing applied to K. J = 3K - 2D.
// The first reading comes on candle kPeriod + dPeriod - 1.
type KDJ struct {
	kPeriod, dPeriod int
	smooth           float64

	highs   window
	lows    window
	kValues window
	d       float64
	hasD    bool
	ready   bool
	hist    history[KDJReading]
}

// NewKDJ creates a KDJ. Zero parameters default to 9, 3 and 3.
func NewKDJ(kPeriod, dPeriod, smooth int) *KDJ {
	kPeriod = withDefault(kPeriod, 9)
	dPeriod = withDefault(dPeriod, 3)
	smooth = withDefault(smooth, 3)
	return &KDJ{
		kPeriod: kPeriod,
		dPeriod: dPeriod,
		smooth:  float64(smooth),
		highs:   newWindow(kPeriod),
		lows:    newWindow(kPeriod),
		kValues: newWindow(dPeriod),
		hist:    newHistory[KDJReading](),
	}
}

func (k *KDJ) Kind() Kind        { return KindKDJ }
func (k *KDJ) Ready() bool       { return k.ready }
func (k *KDJ) WarmupPeriod() int { return k.kPeriod + k.dPeriod - 1 }

func (k *KDJ) Update(c model.Candle) Reading {
	k.highs.push(c.High)
	k.lows.push(c.Low)
	if k.highs.buf.Len() < k.kPeriod {
		return nil
	}

	hh, ll := k.highs.highest(), k.lows.lowest()
	rsv := flatRangeRSV
	if hh != ll {
		rsv = (c.Close - ll) / (hh - ll) * 100
	}

	kv := rsv
	if prevK, ok := k.kValues.buf.Last(); ok {
		kv = (prevK*(k.smooth-1) + rsv) / k.smooth
	}
	k.kValues.push(kv)

	if k.kValues.buf.Len() < k.dPeriod {
		return nil
	}
	if !k.hasD {
		k.d = k.kValues.mean()
		k.hasD = true
	} else {
		k.d = (k.d*(k.smooth-1) + kv) / k.smooth
	}
	k.ready = true

	out := KDJReading{K: kv, D: k.d, J: 3*kv - 2*k.d, Timestamp: c.TS}
	k.hist.push(out)
	return out
}

func (k *KDJ) Value() Reading {
	if v, ok := k.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (k *KDJ) Last() (KDJReading, bool) {
	if !k.ready {
		return KDJReading{}, false
	}
	return k.hist.last()
}

func (k *KDJ) History(n int) []Reading { return k.hist.readings(n) }

// IsOversold reports J strictly below th.
func (k *KDJ) IsOversold(th float64) bool {
	v, ok := k.Last()
	return ok && v.J < th
}

// IsOverbought reports J strictly above th.
func (k *KDJ) IsOverbought(th float64) bool {
	v, ok := k.Last()
	return ok && v.J > th
}

// IsGoldenCross reports K crossing above D.
func (k *KDJ) IsGoldenCross() bool {
	prev, cur, ok := k.hist.lastTwo()
	return ok && prev.K < prev.D && cur.K > cur.D
}

// IsDeathCross reports K crossing below D.
func (k *KDJ) IsDeathCross() bool {
	prev, cur, ok := k.hist.lastTwo()
	return ok && prev.K > prev.D && cur.K < cur.D
}

func (k *KDJ) Reset() {
	k.highs.reset()
	k.lows.reset()
	k.kValues.reset()
	k.d = 0
	k.hasD = false
	k.ready = false
	k.hist.reset()
}
