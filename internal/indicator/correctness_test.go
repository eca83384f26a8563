package indicator

import (
	"math"
	"math/rand"
	"testing"

	"mtf-screener/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	return model.Candle{Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 1}
}

func hlc(high, low, close float64) model.Candle {
	return model.Candle{Open: close, High: high, Low: low, Close: close, Volume: 1}
}

func cv(close, volume float64) model.Candle {
	return model.Candle{Open: close, High: close, Low: close, Close: close, Volume: volume}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// randomWalk returns n well-formed candles with a deterministic seed.
func randomWalk(n int, seed int64) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		price += rng.NormFloat64()
		if price < 1 {
			price = 1
		}
		spread := rng.Float64() * 2
		out[i] = model.Candle{
			TS:     int64(i+1) * 60_000,
			Open:   price,
			High:   price + spread,
			Low:    price - spread,
			Close:  price + (rng.Float64()-0.5)*spread,
			Volume: rng.Float64() * 1000,
		}
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Warmup boundary (all kinds, default params)
// ────────────────────────────────────────────────────────────

func TestWarmupBoundary_AllKinds(t *testing.T) {
	wantWarmup := map[Kind]int{
		KindRSI:       15,
		KindMACD:      34,
		KindWilliamsR: 14,
		KindAO:        34,
		KindKDJ:       11,
		KindOBV:       14,
	}
	candles := randomWalk(250, 7)

	for _, k := range AllKinds {
		ind, err := New(k, DefaultParams())
		if err != nil {
			t.Fatalf("New(%s): %v", k, err)
		}
		if ind.WarmupPeriod() != wantWarmup[k] {
			t.Errorf("%s: WarmupPeriod()=%d, want %d", k, ind.WarmupPeriod(), wantWarmup[k])
		}

		for i, c := range candles {
			n := i + 1
			got := ind.Update(c)
			if n < ind.WarmupPeriod() {
				if got != nil || ind.Value() != nil || ind.Ready() {
					t.Fatalf("%s candle %d: reading before warmup", k, n)
				}
				continue
			}
			if got == nil || ind.Value() == nil || !ind.Ready() {
				t.Fatalf("%s candle %d: no reading at/after warmup", k, n)
			}
			if got.Kind() != k || got.Time() != c.TS {
				t.Fatalf("%s candle %d: reading kind=%s ts=%d", k, n, got.Kind(), got.Time())
			}
		}

		if h := ind.History(500); len(h) != HistoryCap {
			t.Errorf("%s: History(500) len=%d, want %d", k, len(h), HistoryCap)
		} else if h[0].Time() != candles[len(candles)-HistoryCap].TS {
			t.Errorf("%s: oldest reading ts=%d, want %d", k, h[0].Time(), candles[len(candles)-HistoryCap].TS)
		}
		if h := ind.History(3); len(h) != 3 || h[2].Time() != candles[len(candles)-1].TS {
			t.Errorf("%s: History(3) not most-recent-last", k)
		}

		ind.Reset()
		if ind.Ready() || ind.Value() != nil || ind.History(10) != nil {
			t.Errorf("%s: state survived Reset", k)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 11, 12, 11, 13  → changes +1, +1, -1, +2
	// candle 4: avgGain = 2/3, avgLoss = 1/3, RS = 2   → RSI = 66.6667
	// candle 5: avgGain = (2/3*2+2)/3 = 10/9
	//           avgLoss = (1/3*2+0)/3 = 2/9, RS = 5 → RSI = 83.3333
	rsi := NewRSI(3)
	closes := []float64{10, 11, 12, 11, 13}
	ready := []bool{false, false, false, true, true}

	for i, p := range closes {
		rsi.Update(candle(p))
		if rsi.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i+1, rsi.Ready(), ready[i])
		}
	}

	v, ok := rsi.Last()
	if !ok {
		t.Fatal("RSI not ready after 5 candles")
	}
	assertClose(t, "avgGain", v.AvgGain, 10.0/9, 1e-9)
	assertClose(t, "avgLoss", v.AvgLoss, 2.0/9, 1e-9)
	assertClose(t, "RSI(3)", v.RSI, 100-100.0/6, 1e-9)

	h := rsi.History(10)
	if len(h) != 2 {
		t.Fatalf("History len=%d, want 2", len(h))
	}
	assertClose(t, "RSI(3) candle 4", h[0].(RSIReading).RSI, 100-100.0/3, 1e-9)
}

func TestRSI_AllGainsIs100(t *testing.T) {
	rsi := NewRSI(14)
	for i := 0; i < 30; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	v, _ := rsi.Last()
	if v.RSI != 100 || v.AvgLoss != 0 {
		t.Errorf("RSI=%v avgLoss=%v, want 100 and 0", v.RSI, v.AvgLoss)
	}
	if !rsi.IsOverbought(70) || rsi.IsOversold(30) {
		t.Error("threshold helpers disagree with RSI=100")
	}
}

func TestRSI_Bounded(t *testing.T) {
	rsi := NewRSI(14)
	for i, c := range randomWalk(1000, 3) {
		if r := rsi.Update(c); r != nil {
			v := r.(RSIReading).RSI
			if v < 0 || v > 100 || math.IsNaN(v) {
				t.Fatalf("candle %d: RSI=%v out of [0,100]", i+1, v)
			}
		}
	}
}

func TestRSI_Divergence(t *testing.T) {
	rsi := NewRSI(2)
	// Rising closes push RSI to 100, a later drop pulls it down.
	for _, p := range []float64{10, 11, 12, 13, 12} {
		rsi.Update(candle(p))
	}
	// Last three RSI readings: 100, 100, <100. Prices making a higher high
	// while RSI falls is bearish.
	if got := rsi.DetectDivergence([]float64{10, 11, 14}); got != BearishDivergence {
		t.Errorf("DetectDivergence=%v, want bearish", got)
	}
	if got := rsi.DetectDivergence([]float64{1, 2}); got != NoDivergence {
		t.Errorf("short price slice: got %v, want none", got)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Correctness_2_3_2(t *testing.T) {
	// Closes 1, 2, 4, 7, 11.
	// fast EMA(2): seed 3/2 at c2, then 19/6, 103/18, 499/54
	// slow EMA(3): seed 7/3 at c3, then 14/3, 47/6
	// MACD line:   5/6, 19/18, 76/54
	// signal(2):   seed 17/18 at c4, then 203/162
	m := NewMACD(2, 3, 2)
	closes := []float64{1, 2, 4, 7, 11}
	for i, p := range closes {
		got := m.Update(candle(p))
		if (got != nil) != (i+1 >= 4) {
			t.Fatalf("candle %d: reading=%v", i+1, got)
		}
	}
	if m.WarmupPeriod() != 4 {
		t.Errorf("WarmupPeriod()=%d, want 4", m.WarmupPeriod())
	}

	h := m.History(2)
	c4, c5 := h[0].(MACDReading), h[1].(MACDReading)
	assertClose(t, "c4 macd", c4.MACDLine, 19.0/18, 1e-9)
	assertClose(t, "c4 signal", c4.SignalLine, 17.0/18, 1e-9)
	assertClose(t, "c4 hist", c4.Histogram, 2.0/18, 1e-9)
	assertClose(t, "c5 macd", c5.MACDLine, 76.0/54, 1e-9)
	assertClose(t, "c5 signal", c5.SignalLine, 203.0/162, 1e-9)
	assertClose(t, "c5 hist", c5.Histogram, 25.0/162, 1e-9)
}

func TestMACD_CrossoverTracksHistogramSign(t *testing.T) {
	m := NewMACD(3, 6, 3)
	var prev *MACDReading
	crosses := 0
	for _, c := range randomWalk(400, 11) {
		r := m.Update(c)
		if r == nil {
			continue
		}
		cur := r.(MACDReading)
		wantBull := prev != nil && prev.Histogram < 0 && cur.Histogram > 0
		wantBear := prev != nil && prev.Histogram > 0 && cur.Histogram < 0
		if m.IsBullishCrossover() != wantBull || m.IsBearishCrossover() != wantBear {
			t.Fatalf("ts %d: crossover helpers disagree with histogram %v→%v", cur.Timestamp, prev, cur)
		}
		if wantBull || wantBear {
			crosses++
		}
		prev = &cur
	}
	if crosses == 0 {
		t.Error("random walk produced no crossovers; test is not exercising the helpers")
	}
}

// ────────────────────────────────────────────────────────────
// Williams %R
// ────────────────────────────────────────────────────────────

func TestWilliamsR_Correctness_Period3(t *testing.T) {
	// c3: HH=12, LL=8,  close=11 → (12-11)/4 * -100 = -25
	// c4: HH=12, LL=7,  close=8  → (12-8)/5 * -100  = -80
	w := NewWilliamsR(3)
	in := []model.Candle{hlc(10, 8, 9), hlc(11, 9, 10), hlc(12, 10, 11), hlc(11, 7, 8)}
	want := []float64{0, 0, -25, -80}
	for i, c := range in {
		r := w.Update(c)
		if i < 2 {
			if r != nil {
				t.Fatalf("candle %d: reading before warmup", i+1)
			}
			continue
		}
		got := r.(WilliamsRReading)
		assertClose(t, "%R", got.WilliamsR, want[i], 1e-9)
	}
	v, _ := w.Last()
	if v.HighestHigh != 12 || v.LowestLow != 7 {
		t.Errorf("HH=%v LL=%v, want 12 7", v.HighestHigh, v.LowestLow)
	}
	if !w.IsOversold(-80) || w.IsOverbought(-20) {
		t.Error("%R=-80 should be oversold at -80 (inclusive)")
	}
}

func TestWilliamsR_FlatRangeIsMidpoint(t *testing.T) {
	w := NewWilliamsR(5)
	for i := 0; i < 6; i++ {
		w.Update(hlc(50, 50, 50))
	}
	v, _ := w.Last()
	if v.WilliamsR != -50 {
		t.Errorf("flat window %%R=%v, want -50", v.WilliamsR)
	}
}

func TestWilliamsR_Bounded(t *testing.T) {
	w := NewWilliamsR(14)
	for i, c := range randomWalk(1000, 5) {
		if r := w.Update(c); r != nil {
			v := r.(WilliamsRReading).WilliamsR
			if v < -100 || v > 0 || math.IsNaN(v) {
				t.Fatalf("candle %d: %%R=%v out of [-100,0]", i+1, v)
			}
		}
	}
}

// ────────────────────────────────────────────────────────────
// Awesome Oscillator
// ────────────────────────────────────────────────────────────

func TestAO_Correctness_2_3(t *testing.T) {
	// Medians 1, 3, 5, 7.
	// c3: fast=(3+5)/2=4, slow=(1+3+5)/3=3 → AO=1
	// c4: fast=(5+7)/2=6, slow=(3+5+7)/3=5 → AO=1
	ao := NewAwesomeOscillator(2, 3)
	in := []model.Candle{hlc(2, 0, 1), hlc(4, 2, 3), hlc(6, 4, 5), hlc(8, 6, 7)}
	for i, c := range in {
		r := ao.Update(c)
		if (r != nil) != (i >= 2) {
			t.Fatalf("candle %d: reading=%v", i+1, r)
		}
	}
	v, _ := ao.Last()
	assertClose(t, "fastSMA", v.FastSMA, 6, 1e-9)
	assertClose(t, "slowSMA", v.SlowSMA, 5, 1e-9)
	assertClose(t, "AO", v.AO, 1, 1e-9)
}

func TestAO_FastLongerThanSlowNeverReady(t *testing.T) {
	ao := NewAwesomeOscillator(10, 4)
	for _, c := range randomWalk(50, 1) {
		if ao.Update(c) != nil {
			t.Fatal("AO(10,4) produced a reading")
		}
	}
}

func TestAO_CrossoverAndTwinPeaks(t *testing.T) {
	// With fast=1, slow=2 the AO is half the change in median.
	med := func(m float64) model.Candle { return hlc(m+1, m-1, m) }

	ao := NewAwesomeOscillator(1, 2)
	for _, m := range []float64{10, 8, 2, 0} { // AO: -1, -3, -1
		ao.Update(med(m))
	}
	if !ao.IsTwinPeaksBullish() {
		t.Error("expected twin peaks for AO -1, -3, -1")
	}

	ao.Update(med(4)) // AO: +2
	if !ao.IsBullishCrossover() || ao.IsBearishCrossover() {
		t.Error("expected bullish zero-line crossover")
	}
	ao.Update(med(2)) // AO: -1
	if !ao.IsBearishCrossover() {
		t.Error("expected bearish zero-line crossover")
	}
}

// ────────────────────────────────────────────────────────────
// KDJ
// ────────────────────────────────────────────────────────────

func TestKDJ_Correctness_3_2_3(t *testing.T) {
	// c3: HH=12 LL=8  close=11 → RSV=75, K=75 (first), one K value → none
	// c4: HH=13 LL=9  close=12 → RSV=75, K=75, D=SMA(75,75)=75, J=75
	// c5: HH=13 LL=10 close=11 → RSV=100/3, K=550/9, D=1900/27, J=1150/27
	kdj := NewKDJ(3, 2, 3)
	in := []model.Candle{
		hlc(10, 8, 9), hlc(11, 9, 10), hlc(12, 10, 11), hlc(13, 11, 12), hlc(13, 11, 11),
	}
	for i, c := range in {
		r := kdj.Update(c)
		if (r != nil) != (i+1 >= 4) {
			t.Fatalf("candle %d: reading=%v", i+1, r)
		}
	}
	if kdj.WarmupPeriod() != 4 {
		t.Errorf("WarmupPeriod()=%d, want 4", kdj.WarmupPeriod())
	}

	h := kdj.History(2)
	c4, c5 := h[0].(KDJReading), h[1].(KDJReading)
	assertClose(t, "c4 K", c4.K, 75, 1e-9)
	assertClose(t, "c4 D", c4.D, 75, 1e-9)
	assertClose(t, "c4 J", c4.J, 75, 1e-9)
	assertClose(t, "c5 K", c5.K, 550.0/9, 1e-9)
	assertClose(t, "c5 D", c5.D, 1900.0/27, 1e-9)
	assertClose(t, "c5 J", c5.J, 1150.0/27, 1e-9)

	// c4 has K == D, so the drop at c5 is not a strict crossing.
	if kdj.IsDeathCross() || kdj.IsGoldenCross() {
		t.Error("K moved from equal to below D; expected no crossover")
	}
}

func TestKDJ_FlatRangeRSVIs50(t *testing.T) {
	kdj := NewKDJ(9, 3, 3)
	for i := 0; i < 20; i++ {
		kdj.Update(hlc(42, 42, 42))
	}
	v, ok := kdj.Last()
	if !ok {
		t.Fatal("KDJ not ready")
	}
	if v.K != 50 || v.D != 50 || v.J != 50 {
		t.Errorf("flat range K/D/J = %v/%v/%v, want 50", v.K, v.D, v.J)
	}
}

func TestKDJ_ThresholdsUseJ(t *testing.T) {
	kdj := NewKDJ(3, 2, 3)
	for _, c := range []model.Candle{hlc(10, 8, 10), hlc(11, 9, 11), hlc(12, 10, 12), hlc(13, 11, 13)} {
		kdj.Update(c)
	}
	// Closing on the high every candle: RSV=100 throughout, J=100.
	if !kdj.IsOverbought(80) || kdj.IsOversold(20) {
		v, _ := kdj.Last()
		t.Errorf("J=%v: expected overbought", v.J)
	}
}

// ────────────────────────────────────────────────────────────
// OBV
// ────────────────────────────────────────────────────────────

func TestOBV_Correctness_Window2(t *testing.T) {
	// close/volume: (10,5) (11,3) (10,2) (12,4) (12,9)
	// OBV:           0     3      1      5      5
	// c2: slope=(3-0)/2*100=150, no slope samples → normalized nil
	// c3: slope=(1-3)/2*100=-100, samples [50]        → std 0 → 0
	// c4: slope=(5-1)/2*100=200,  samples [50,100]    → z=5  → cap → 100
	// c5: slope=(5-5)/2*100=0,    samples [100,200]   → z=-3 → cap → -100
	// EMA(2): 1.5, 7/6, 67/18, 247/54
	o := NewOBV(2, 2, 2, true)
	in := []model.Candle{cv(10, 5), cv(11, 3), cv(10, 2), cv(12, 4), cv(12, 9)}
	for _, c := range in {
		o.Update(c)
	}

	h := o.History(10)
	if len(h) != 4 {
		t.Fatalf("History len=%d, want 4", len(h))
	}
	wantOBV := []float64{3, 1, 5, 5}
	wantSlope := []float64{150, -100, 200, 0}
	wantEMA := []float64{1.5, 7.0 / 6, 67.0 / 18, 247.0 / 54}
	wantNorm := []float64{math.NaN(), 0, 100, -100}

	for i, r := range h {
		got := r.(OBVReading)
		assertClose(t, "obv", got.OBVValue, wantOBV[i], 1e-9)
		assertClose(t, "slope", got.OBVSlope, wantSlope[i], 1e-9)
		if got.OBVEMA == nil {
			t.Fatalf("reading %d: OBVEMA nil", i)
		}
		assertClose(t, "ema", *got.OBVEMA, wantEMA[i], 1e-9)
		if i == 0 {
			if got.Normalized != nil {
				t.Errorf("reading 0: normalized=%v, want nil", *got.Normalized)
			}
			continue
		}
		if got.Normalized == nil {
			t.Fatalf("reading %d: normalized nil", i)
		}
		assertClose(t, "normalized", *got.Normalized, wantNorm[i], 1e-9)
	}
}

// obvReference recomputes the normalized slope from the retained OBV history
// on every candle, the O(window) way.
func obvReference(hist []float64, w int, capZ float64) *float64 {
	if len(hist) < w {
		return nil
	}
	cur := (hist[len(hist)-1] - hist[len(hist)-w]) / float64(w) * 100
	var slopes []float64
	for i := w; i < len(hist); i++ {
		slopes = append(slopes, (hist[i]-hist[i-w])/float64(w)*100)
	}
	if len(slopes) == 0 {
		return nil
	}
	mean, std := Mean(slopes), StdDev(slopes)
	out := 0.0
	if std > 0 {
		z := math.Max(-capZ, math.Min(capZ, (cur-mean)/std))
		out = z / capZ * 100
	}
	return &out
}

func TestOBV_NormalizationMatchesFullRecompute(t *testing.T) {
	const w = 14
	o := NewOBV(w, 5, 2, true)

	// Track the retained OBV history alongside the indicator.
	buf := make([]float64, 0, 2*w)
	var obv, prev float64
	for i, c := range randomWalk(2000, 99) {
		if i > 0 {
			switch {
			case c.Close > prev:
				obv += c.Volume
			case c.Close < prev:
				obv -= c.Volume
			}
		}
		prev = c.Close
		buf = append(buf, obv)
		if len(buf) > 2*w {
			buf = buf[1:]
		}

		r := o.Update(c)
		want := obvReference(buf, w, 2)
		if r == nil {
			if len(buf) >= w {
				t.Fatalf("candle %d: missing reading", i+1)
			}
			continue
		}
		got := r.(OBVReading).Normalized
		if (got == nil) != (want == nil) {
			t.Fatalf("candle %d: normalized presence got=%v want=%v", i+1, got != nil, want != nil)
		}
		if got != nil {
			assertClose(t, "normalized", *got, *want, 1e-6)
		}
	}
}

func TestOBV_MonotonicWithRisingPrice(t *testing.T) {
	o := NewOBV(14, 5, 2, true)
	last := math.Inf(-1)
	for i := 0; i < 60; i++ {
		o.Update(cv(100+float64(i), 10+float64(i%3)))
		if v, ok := o.Last(); ok {
			if v.OBVValue < last {
				t.Fatalf("candle %d: OBV fell from %v to %v", i+1, last, v.OBVValue)
			}
			last = v.OBVValue
		}
	}
	if !o.IsBullish() || o.IsBearish() {
		t.Error("rising OBV should be bullish")
	}
}

func TestOBV_FlatSlopesNormalizeToZero(t *testing.T) {
	o := NewOBV(5, 3, 2, true)
	for i := 0; i < 40; i++ {
		o.Update(cv(100+float64(i), 7))
	}
	v, _ := o.Last()
	if v.Normalized == nil || *v.Normalized != 0 {
		t.Errorf("constant slope normalized=%v, want 0", v.Normalized)
	}
}

func TestOBV_SmallSpreadAroundLargeSlopeMean(t *testing.T) {
	o := NewOBV(4, 3, 2, true)
	samples := []float64{1e6, 1e6 + 1e-4, 1e6 - 1e-4, 1e6 + 2e-4}
	for _, s := range samples {
		o.pushSlope(s)
	}
	cur := 1e6 + 2e-4
	z := (cur - Mean(samples)) / StdDev(samples)
	want := math.Max(-2, math.Min(2, z)) / 2 * 100

	// (2 - 0.5) / sqrt(1.25) / 2 * 100
	got := o.zScore(cur)
	assertClose(t, "z-score", got, want, 1e-6)
	assertClose(t, "z-score", got, 67.082, 1e-2)
}

func TestOBV_NormalizeDisabled(t *testing.T) {
	o := NewOBV(3, 2, 2, false)
	for _, c := range randomWalk(30, 4) {
		if r := o.Update(c); r != nil && r.(OBVReading).Normalized != nil {
			t.Fatal("normalized set with normalize=false")
		}
	}
}

func TestOBV_HistoryBounded(t *testing.T) {
	o := NewOBV(4, 3, 2, true)
	for _, c := range randomWalk(100, 8) {
		o.Update(c)
	}
	if o.values.Len() != 8 || o.slopes.Len() != 4 {
		t.Errorf("buffers: values=%d slopes=%d, want 8 and 4", o.values.Len(), o.slopes.Len())
	}
}

// ────────────────────────────────────────────────────────────
// Degenerate parameters
// ────────────────────────────────────────────────────────────

func TestDegenerateParamsDoNotPanic(t *testing.T) {
	inds := []Indicator{
		NewRSI(-3),
		NewMACD(-1, -2, -3),
		NewWilliamsR(-5),
		NewAwesomeOscillator(-1, -1),
		NewKDJ(-2, -2, -2),
		NewOBV(-4, -1, -1, true),
	}
	for _, ind := range inds {
		for _, c := range randomWalk(50, 2) {
			ind.Update(c)
		}
		_ = ind.History(5)
	}
}
