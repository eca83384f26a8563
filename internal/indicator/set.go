package indicator

import (
	"fmt"

	"mtf-screener/internal/model"
)

// RSIParams configures an RSI.
type RSIParams struct {
	Period int `yaml:"period" json:"period" default:"14"`
}

// MACDParams configures a MACD.
type MACDParams struct {
	FastPeriod   int `yaml:"fast_period" json:"fastPeriod" default:"12"`
	SlowPeriod   int `yaml:"slow_period" json:"slowPeriod" default:"26"`
	SignalPeriod int `yaml:"signal_period" json:"signalPeriod" default:"9"`
}

// WilliamsRParams configures a Williams %R.
type WilliamsRParams struct {
	Period int `yaml:"period" json:"period" default:"14"`
}

// AOParams configures an Awesome Oscillator.
type AOParams struct {
	FastPeriod int `yaml:"fast_period" json:"fastPeriod" default:"5"`
	SlowPeriod int `yaml:"slow_period" json:"slowPeriod" default:"34"`
}

// KDJParams configures a KDJ.
type KDJParams struct {
	KPeriod int `yaml:"k_period" json:"kPeriod" default:"9"`
	DPeriod int `yaml:"d_period" json:"dPeriod" default:"3"`
	Smooth  int `yaml:"smooth" json:"smooth" default:"3"`
}

// OBVParams configures an OBV.
type OBVParams struct {
	SlopeWindow  int     `yaml:"slope_window" json:"slopeWindow" default:"14"`
	SmoothingEMA int     `yaml:"smoothing_ema" json:"smoothingEma" default:"5"`
	ZScoreCap    float64 `yaml:"z_score_cap" json:"zScoreCap" default:"2.0"`
	Normalize    bool    `yaml:"normalize" json:"normalize" default:"true"`
}

// Params holds the numeric parameters of every indicator kind. Only the
// entries for enabled kinds are used. Values are not range-checked.
type Params struct {
	RSI       RSIParams       `yaml:"rsi" json:"rsi"`
	MACD      MACDParams      `yaml:"macd" json:"macd"`
	WilliamsR WilliamsRParams `yaml:"williams_r" json:"williamsR"`
	AO        AOParams        `yaml:"ao" json:"ao"`
	KDJ       KDJParams       `yaml:"kdj" json:"kdj"`
	OBV       OBVParams       `yaml:"obv" json:"obv"`
}

// DefaultParams returns the standard parameters for every kind.
func DefaultParams() Params {
	return Params{
		RSI:       RSIParams{Period: 14},
		MACD:      MACDParams{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
		WilliamsR: WilliamsRParams{Period: 14},
		AO:        AOParams{FastPeriod: 5, SlowPeriod: 34},
		KDJ:       KDJParams{KPeriod: 9, DPeriod: 3, Smooth: 3},
		OBV:       OBVParams{SlopeWindow: 14, SmoothingEMA: 5, ZScoreCap: 2.0, Normalize: true},
	}
}

// New constructs a single indicator of the given kind.
func New(kind Kind, p Params) (Indicator, error) {
	switch kind {
	case KindRSI:
		return NewRSI(p.RSI.Period), nil
	case KindMACD:
		return NewMACD(p.MACD.FastPeriod, p.MACD.SlowPeriod, p.MACD.SignalPeriod), nil
	case KindWilliamsR:
		return NewWilliamsR(p.WilliamsR.Period), nil
	case KindAO:
		return NewAwesomeOscillator(p.AO.FastPeriod, p.AO.SlowPeriod), nil
	case KindKDJ:
		return NewKDJ(p.KDJ.KPeriod, p.KDJ.DPeriod, p.KDJ.Smooth), nil
	case KindOBV:
		return NewOBV(p.OBV.SlopeWindow, p.OBV.SmoothingEMA, p.OBV.ZScoreCap, p.OBV.Normalize), nil
	default:
		return nil, &ConfigError{Kind: kind, Reason: "unknown indicator"}
	}
}

// Bundle maps indicator kind to its current reading.
type Bundle map[Kind]Reading

// Set is the group of enabled indicators for one (pair, timeframe). It is
// owned by a single goroutine.
type Set struct {
	kinds      []Kind
	indicators []Indicator
}

// NewSet builds one indicator per enabled kind. Any unknown or repeated
// kind fails the whole set.
func NewSet(enabled []Kind, p Params) (*Set, error) {
	if len(enabled) == 0 {
		return nil, &ConfigError{Reason: "no indicators enabled"}
	}

	seen := make(map[Kind]bool, len(enabled))
	inds := make([]Indicator, 0, len(enabled))
	for _, k := range enabled {
		if seen[k] {
			return nil, &ConfigError{Kind: k, Reason: "enabled more than once"}
		}
		seen[k] = true

		ind, err := New(k, p)
		if err != nil {
			return nil, fmt.Errorf("build set: %w", err)
		}
		inds = append(inds, ind)
	}

	return &Set{
		kinds:      append([]Kind(nil), enabled...),
		indicators: inds,
	}, nil
}

// Update feeds c to every indicator and returns the current readings of
// those that are ready. allReady is true only when every member is ready.
func (s *Set) Update(c model.Candle) (b Bundle, allReady bool) {
	b = make(Bundle, len(s.indicators))
	allReady = true
	for _, ind := range s.indicators {
		ind.Update(c)
		if v := ind.Value(); v != nil {
			b[ind.Kind()] = v
		} else {
			allReady = false
		}
	}
	return b, allReady
}

// Get returns the member of the given kind.
func (s *Set) Get(k Kind) (Indicator, bool) {
	for _, ind := range s.indicators {
		if ind.Kind() == k {
			return ind, true
		}
	}
	return nil, false
}

// Kinds returns the enabled kinds in construction order.
func (s *Set) Kinds() []Kind { return append([]Kind(nil), s.kinds...) }

// Ready reports whether every member is ready.
func (s *Set) Ready() bool {
	for _, ind := range s.indicators {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

// WarmupPeriod is the candle index at which the whole set becomes ready.
func (s *Set) WarmupPeriod() int {
	w := 0
	for _, ind := range s.indicators {
		w = max(w, ind.WarmupPeriod())
	}
	return w
}

// Reset clears every member.
func (s *Set) Reset() {
	for _, ind := range s.indicators {
		ind.Reset()
	}
}
