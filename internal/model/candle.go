package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedCandle is returned by Candle.Validate for non-finite prices or
// invalid volume.
var ErrMalformedCandle = errors.New("malformed candle")

// Candle is one closed OHLCV bar. TS is the bar time in epoch milliseconds.
type Candle struct {
	TS     int64   `json:"timestamp"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the candle time as a time.Time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// Validate rejects candles that would poison indicator state: NaN or infinite
// prices, and NaN, infinite or negative volume.
func (c Candle) Validate() error {
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrMalformedCandle, f.name, f.v)
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return fmt.Errorf("%w: volume=%v", ErrMalformedCandle, c.Volume)
	}
	return nil
}

// CandleEvent is a closed candle tagged with its instrument and timeframe.
type CandleEvent struct {
	Pair      string `json:"pair"`
	Timeframe string `json:"timeframe"`
	Candle
}

// Key returns "pair:timeframe", the identity of an indicator set.
func (e CandleEvent) Key() string {
	return Key(e.Pair, e.Timeframe)
}

// Key joins pair and timeframe into an indicator-set key.
func Key(pair, timeframe string) string {
	return pair + ":" + timeframe
}
