// Package strategy scores indicator bundles into trading signals.
//
// A WeightedScorer adds up a signed contribution per indicator, each bounded
// by the profile's weight for that indicator, and maps the total onto a
// SignalType with the profile's thresholds. Profiles are fixed at
// construction.
package strategy

import (
	"fmt"
	"sort"
)

// RSIWeight bounds the RSI contribution. Below Oversold adds the full
// weight, below OversoldMild half of it; the overbought side mirrors that.
type RSIWeight struct {
	Max            float64 `json:"max"`
	Oversold       float64 `json:"oversold"`
	OversoldMild   float64 `json:"oversoldMild"`
	Overbought     float64 `json:"overbought"`
	OverboughtMild float64 `json:"overboughtMild"`
}

// BandWeight is a weight with an oversold/overbought band, used for
// Williams %R and the KDJ J line.
type BandWeight struct {
	Max        float64 `json:"max"`
	Oversold   float64 `json:"oversold"`
	Overbought float64 `json:"overbought"`
}

// Weights holds the maximum contribution of every indicator.
type Weights struct {
	RSI       RSIWeight  `json:"rsi"`
	WilliamsR BandWeight `json:"williamsR"`
	MACD      float64    `json:"macd"`
	AO        float64    `json:"ao"`
	KDJ       BandWeight `json:"kdj"`
	OBV       float64    `json:"obv"`
}

// Thresholds map a score onto a SignalType. Buy thresholds are positive and
// descending, sell thresholds negative and ascending.
type Thresholds struct {
	StrongBuy  float64 `json:"strongBuy"`
	Buy        float64 `json:"buy"`
	BuyWeak    float64 `json:"buyWeak"`
	StrongSell float64 `json:"strongSell"`
	Sell       float64 `json:"sell"`
	SellWeak   float64 `json:"sellWeak"`
}

// Profile is a named weight and threshold set.
type Profile struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Weights     Weights    `json:"weights"`
	Thresholds  Thresholds `json:"thresholds"`
}

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

func symmetric(strong, mid, weak float64) Thresholds {
	return Thresholds{
		StrongBuy: strong, Buy: mid, BuyWeak: weak,
		StrongSell: -strong, Sell: -mid, SellWeak: -weak,
	}
}

var (
	standardRSI = RSIWeight{Oversold: 30, OversoldMild: 40, Overbought: 70, OverboughtMild: 60}
	standardWR  = BandWeight{Oversold: -80, Overbought: -20}
	standardJ   = BandWeight{Oversold: 20, Overbought: 80}
)

func stdRSI(m float64) RSIWeight { w := standardRSI; w.Max = m; return w }
func stdWR(m float64) BandWeight { w := standardWR; w.Max = m; return w }
func stdJ(m float64) BandWeight { w := standardJ; w.Max = m; return w }

var profiles = map[string]Profile{
	"default": {
		Name:        "default",
		Description: "Standard weights",
		Weights: Weights{
			RSI:       stdRSI(25),
			WilliamsR: stdWR(20),
			MACD:      20,
			AO:        15,
			KDJ:       stdJ(15),
			OBV:       10,
		},
		Thresholds: symmetric(70, 50, 30),
	},
	"conservative": {
		Name:        "conservative",
		Description: "Favors trend confirmation",
		Weights: Weights{
			RSI:       stdRSI(15),
			WilliamsR: stdWR(10),
			MACD:      25,
			AO:        10,
			KDJ:       stdJ(10),
			OBV:       8,
		},
		Thresholds: symmetric(75, 55, 35),
	},
	"aggressive": {
		Name:        "aggressive",
		Description: "Favors momentum signals",
		Weights: Weights{
			RSI:       stdRSI(30),
			WilliamsR: stdWR(25),
			MACD:      15,
			AO:        20,
			KDJ:       BandWeight{Max: 20, Oversold: 25, Overbought: 75},
			OBV:       12,
		},
		Thresholds: symmetric(65, 45, 25),
	},
	"balanced": {
		Name:        "balanced",
		Description: "Near-equal indicator weights",
		Weights: Weights{
			RSI:       stdRSI(20),
			WilliamsR: stdWR(15),
			MACD:      15,
			AO:        15,
			KDJ:       stdJ(15),
			OBV:       10,
		},
		Thresholds: symmetric(70, 50, 30),
	},
	"scalping": {
		Name:        "scalping",
		Description: "Tight levels for quick trades",
		Weights: Weights{
			RSI:       RSIWeight{Max: 20, Oversold: 35, OversoldMild: 45, Overbought: 65, OverboughtMild: 55},
			WilliamsR: BandWeight{Max: 25, Oversold: -75, Overbought: -25},
			MACD:      10,
			AO:        20,
			KDJ:       BandWeight{Max: 18, Oversold: 30, Overbought: 70},
			OBV:       8,
		},
		Thresholds: symmetric(60, 40, 20),
	},
	"swingTrading": {
		Name:        "swingTrading",
		Description: "Wide levels for longer timeframes, trend heavy",
		Weights: Weights{
			RSI:       RSIWeight{Max: 20, Oversold: 25, OversoldMild: 35, Overbought: 75, OverboughtMild: 65},
			WilliamsR: BandWeight{Max: 15, Oversold: -85, Overbought: -15},
			MACD:      30,
			AO:        15,
			KDJ:       BandWeight{Max: 12, Oversold: 15, Overbought: 85},
			OBV:       12,
		},
		Thresholds: symmetric(70, 50, 30),
	},
}

// Lookup returns a copy of the named profile. An empty name selects the
// default profile.
func Lookup(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown signal profile %q (have %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the built-in profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
