// Package indicator provides incremental technical indicators over closed
// candles.
//
// Every indicator implements the Indicator interface: it consumes one candle
// at a time, keeps bounded internal state, and produces a Reading once it has
// seen enough data. Readings are a tagged variant; each kind has its own
// concrete struct (RSIReading, MACDReading, ...). Indicators are not safe for
// concurrent use.
package indicator

import (
	"fmt"

	"mtf-screener/internal/model"
)

// HistoryCap is the number of readings each indicator retains.
const HistoryCap = 100

// Kind names an indicator. It is also the key of the indicator's reading in
// a Bundle.
type Kind string

const (
	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindWilliamsR Kind = "williamsR"
	KindAO        Kind = "ao"
	KindKDJ       Kind = "kdj"
	KindOBV       Kind = "obv"
)

// AllKinds lists every supported indicator in bundle order.
var AllKinds = []Kind{KindRSI, KindMACD, KindWilliamsR, KindAO, KindKDJ, KindOBV}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &ConfigError{Kind: Kind(s), Reason: "unknown indicator"}
}

// Reading is one indicator output. Concrete types are RSIReading,
// MACDReading, WilliamsRReading, AOReading, KDJReading and OBVReading.
type Reading interface {
	Kind() Kind
	// Time is the timestamp (epoch ms) of the candle that produced it.
	Time() int64
}

// Indicator is the contract shared by all indicator state machines.
type Indicator interface {
	// Kind returns the indicator name used in bundles.
	Kind() Kind

	// Update feeds the next candle. It returns the new reading, or nil while
	// the indicator is still warming up.
	Update(c model.Candle) Reading

	// Value returns the most recent reading, or nil if not ready.
	Value() Reading

	// History returns up to n of the most recent readings, oldest first.
	History(n int) []Reading

	// Ready is false until the first reading is produced and stays true
	// until Reset.
	Ready() bool

	// Reset clears all state.
	Reset()

	// WarmupPeriod is the 1-based index of the first candle that yields a
	// reading.
	WarmupPeriod() int
}

// Divergence is the result of a 3-point price/indicator divergence check.
type Divergence int

const (
	NoDivergence Divergence = iota
	BullishDivergence
	BearishDivergence
)

func (d Divergence) String() string {
	switch d {
	case BullishDivergence:
		return "bullish"
	case BearishDivergence:
		return "bearish"
	default:
		return "none"
	}
}

// detectDivergence compares the last three prices against the last three
// indicator values. Price lower low with indicator higher low is bullish;
// price higher high with indicator lower high is bearish.
func detectDivergence(prices, values []float64) Divergence {
	if len(prices) < 3 || len(values) < 3 {
		return NoDivergence
	}
	p := prices[len(prices)-3:]
	v := values[len(values)-3:]
	switch {
	case p[2] < p[0] && v[2] > v[0]:
		return BullishDivergence
	case p[2] > p[0] && v[2] < v[0]:
		return BearishDivergence
	default:
		return NoDivergence
	}
}

// ConfigError reports a malformed indicator configuration.
type ConfigError struct {
	Kind   Kind
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Kind == "" {
		return "indicator config: " + e.Reason
	}
	return fmt.Sprintf("indicator config %q: %s", e.Kind, e.Reason)
}
