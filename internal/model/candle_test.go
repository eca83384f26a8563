package model

import (
	"errors"
	"math"
	"testing"
)

func TestCandleValidate(t *testing.T) {
	ok := Candle{TS: 1, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid candle rejected: %v", err)
	}

	bad := []Candle{
		{Open: math.NaN(), High: 1, Low: 1, Close: 1},
		{Open: 1, High: math.Inf(1), Low: 1, Close: 1},
		{Open: 1, High: 1, Low: 1, Close: math.NaN()},
		{Open: 1, High: 1, Low: 1, Close: 1, Volume: -1},
		{Open: 1, High: 1, Low: 1, Close: 1, Volume: math.NaN()},
	}
	for i, c := range bad {
		err := c.Validate()
		if !errors.Is(err, ErrMalformedCandle) {
			t.Errorf("case %d: err=%v, want ErrMalformedCandle", i, err)
		}
	}
}

func TestDirectionOf(t *testing.T) {
	cases := map[SignalType]Direction{
		StrongBuy:  DirBuy,
		Buy:        DirBuy,
		BuyWeak:    DirBuy,
		Neutral:    DirNeutral,
		SellWeak:   DirSell,
		Sell:       DirSell,
		StrongSell: DirSell,
		"":         DirNeutral,
	}
	for in, want := range cases {
		if got := DirectionOf(in); got != want {
			t.Errorf("DirectionOf(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestKey(t *testing.T) {
	e := CandleEvent{Pair: "XBTUSDTM", Timeframe: "5m"}
	if e.Key() != "XBTUSDTM:5m" {
		t.Errorf("Key()=%q", e.Key())
	}
}
