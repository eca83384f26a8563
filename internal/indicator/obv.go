package indicator

import (
	"math"

	"mtf-screener/internal/model"
	"mtf-screener/internal/ringbuf"
)

// OBVReading is one On-Balance Volume output. OBVEMA is nil until the OBV
// average has seeded; Normalized is nil when normalization is disabled or no
// slope sample exists yet.
type OBVReading struct {
	OBVValue   float64  `json:"obvValue"`
	OBVSlope   float64  `json:"obvSlope"`
	OBVEMA     *float64 `json:"obvEma"`
	Normalized *float64 `json:"normalized"`
	Timestamp  int64    `json:"timestamp"`
}

func (OBVReading) Kind() Kind      { return KindOBV }
func (o OBVReading) Time() int64 { return o.Timestamp }

// OBV is cumulative On-Balance Volume with a slope over slopeWindow candles,
// an EMA of the OBV line and an optional z-score normalization of the slope.
//
// The last 2*slopeWindow OBV values are retained. Every retained pair that is
// slopeWindow apart contributes one slope sample; at most slopeWindow samples
// exist at once. The current slope is z-scored against those samples,
// clamped to ±zScoreCap and rescaled to ±100. Sample mean and variance come
// from running sums of deviations from a reference value; the sums and the
// reference are rebuilt from the sample ring once per slopeWindow updates.
type OBV struct {
	slopeWindow int
	smoothing   int
	zScoreCap   float64
	normalize   bool

	obv       float64
	prevClose float64
	hasPrev   bool
	values    *ringbuf.Ring[float64]
	avg       ema

	slopes      *ringbuf.Ring[float64]
	shift       float64 // sums are of (slope - shift)
	slopeSum    float64
	slopeSumSq  float64
	sinceRebase int

	ready bool
	hist  history[OBVReading]
}

// NewOBV creates an OBV. Zero numeric parameters default to a slope window
// of 14, an EMA of 5 and a z-score cap of 2.
func NewOBV(slopeWindow, smoothingEma int, zScoreCap float64, normalize bool) *OBV {
	slopeWindow = withDefault(slopeWindow, 14)
	smoothingEma = withDefault(smoothingEma, 5)
	zScoreCap = withDefaultF(zScoreCap, 2.0)
	return &OBV{
		slopeWindow: slopeWindow,
		smoothing:   smoothingEma,
		zScoreCap:   zScoreCap,
		normalize:   normalize,
		values:      ringbuf.New[float64](2 * slopeWindow),
		avg:         newEMA(smoothingEma),
		slopes:      ringbuf.New[float64](slopeWindow),
		hist:        newHistory[OBVReading](),
	}
}

func (o *OBV) Kind() Kind        { return KindOBV }
func (o *OBV) Ready() bool       { return o.ready }
func (o *OBV) WarmupPeriod() int { return o.slopeWindow }

func (o *OBV) Update(c model.Candle) Reading {
	if o.hasPrev {
		switch {
		case c.Close > o.prevClose:
			o.obv += c.Volume
		case c.Close < o.prevClose:
			o.obv -= c.Volume
		}
	}
	o.prevClose = c.Close
	o.hasPrev = true
	o.values.Push(o.obv)

	var emaVal *float64
	// The average seeds from the retained history, which never holds more
	// than 2*slopeWindow values.
	if o.smoothing <= o.values.Cap() {
		if v, ok := o.avg.update(o.obv); ok {
			emaVal = &v
		}
	}

	w := o.slopeWindow
	n := o.values.Len()
	if w < 1 || n < w {
		return nil
	}
	o.ready = true
	slope := (o.obv - o.values.At(n-w)) / float64(w) * 100

	if n > w {
		o.pushSlope((o.values.At(n-1) - o.values.At(n-1-w)) / float64(w) * 100)
	}

	out := OBVReading{OBVValue: o.obv, OBVSlope: slope, OBVEMA: emaVal, Timestamp: c.TS}
	if o.normalize && o.slopes.Len() > 0 {
		z := o.zScore(slope)
		out.Normalized = &z
	}
	o.hist.push(out)
	return out
}

func (o *OBV) pushSlope(s float64) {
	if o.slopes.Len() == 0 {
		o.shift = s
	}
	if old, evicted := o.slopes.Push(s); evicted {
		d := old - o.shift
		o.slopeSum -= d
		o.slopeSumSq -= d * d
	}
	d := s - o.shift
	o.slopeSum += d
	o.slopeSumSq += d * d

	o.sinceRebase++
	if o.sinceRebase >= o.slopes.Cap() {
		o.rebase()
	}
}

// rebase recenters the running sums on the current sample mean.
func (o *OBV) rebase() {
	o.sinceRebase = 0
	samples := o.slopes.Tail(o.slopes.Len())
	o.shift = Mean(samples)
	sd := StdDev(samples)
	o.slopeSum = 0
	o.slopeSumSq = sd * sd * float64(len(samples))
}

// flatSlopeTolerance is the relative variance below which the retained slopes
// count as constant.
const flatSlopeTolerance = 1e-12

// zScore returns the capped, rescaled z-score of slope against the retained
// slope samples. A flat sample set yields 0.
func (o *OBV) zScore(slope float64) float64 {
	n := float64(o.slopes.Len())
	dm := o.slopeSum / n
	meanSq := o.slopeSumSq / n
	mean := o.shift + dm
	// The subtraction below cancels to within a few ulps of meanSq.
	variance := meanSq - dm*dm
	if variance <= flatSlopeTolerance*meanSq {
		return 0
	}
	std := math.Sqrt(variance)
	z := (slope - mean) / std
	z = math.Max(-o.zScoreCap, math.Min(o.zScoreCap, z))
	return z / o.zScoreCap * 100
}

func (o *OBV) Value() Reading {
	if v, ok := o.Last(); ok {
		return v
	}
	return nil
}

// Last returns the latest typed reading.
func (o *OBV) Last() (OBVReading, bool) {
	if !o.ready {
		return OBVReading{}, false
	}
	return o.hist.last()
}

func (o *OBV) History(n int) []Reading { return o.hist.readings(n) }

// IsBullish reports a positive OBV slope.
func (o *OBV) IsBullish() bool {
	v, ok := o.Last()
	return ok && v.OBVSlope > 0
}

// IsBearish reports a negative OBV slope.
func (o *OBV) IsBearish() bool {
	v, ok := o.Last()
	return ok && v.OBVSlope < 0
}

// DetectDivergence compares the last three prices with the last three OBV
// values.
func (o *OBV) DetectDivergence(prices []float64) Divergence {
	tail := o.hist.tail(3)
	vals := make([]float64, len(tail))
	for i, v := range tail {
		vals[i] = v.OBVValue
	}
	return detectDivergence(prices, vals)
}

func (o *OBV) Reset() {
	o.obv = 0
	o.prevClose = 0
	o.hasPrev = false
	o.values.Reset()
	o.avg.reset()
	o.slopes.Reset()
	o.shift, o.slopeSum, o.slopeSumSq = 0, 0, 0
	o.sinceRebase = 0
	o.ready = false
	o.hist.reset()
}
