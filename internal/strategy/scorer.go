package strategy

import (
	"math"

	"mtf-screener/internal/indicator"
	"mtf-screener/internal/model"
	"mtf-screener/internal/screener"
)

// Strength labels attached to verdicts.
const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
	StrengthNone     = "none"
)

// WeightedScorer implements screener.Scorer over a fixed profile.
type WeightedScorer struct {
	profile Profile
}

var _ screener.Scorer = (*WeightedScorer)(nil)

// NewWeightedScorer creates a scorer for the named profile.
func NewWeightedScorer(profileName string) (*WeightedScorer, error) {
	p, err := Lookup(profileName)
	if err != nil {
		return nil, err
	}
	return &WeightedScorer{profile: p}, nil
}

// Profile returns the scorer's profile.
func (w *WeightedScorer) Profile() Profile { return w.profile }

// Score sums the per-indicator contributions of b. Kinds missing from the
// bundle contribute nothing.
func (w *WeightedScorer) Score(b indicator.Bundle) screener.Verdict {
	wt := w.profile.Weights
	var total float64

	if r, ok := b[indicator.KindRSI].(indicator.RSIReading); ok {
		total += rsiContribution(r.RSI, wt.RSI)
	}
	if r, ok := b[indicator.KindWilliamsR].(indicator.WilliamsRReading); ok {
		switch {
		case r.WilliamsR <= wt.WilliamsR.Oversold:
			total += wt.WilliamsR.Max
		case r.WilliamsR >= wt.WilliamsR.Overbought:
			total -= wt.WilliamsR.Max
		}
	}
	if r, ok := b[indicator.KindMACD].(indicator.MACDReading); ok {
		total += sign(r.Histogram) * wt.MACD / 2
		total += sign(r.MACDLine) * wt.MACD / 2
	}
	if r, ok := b[indicator.KindAO].(indicator.AOReading); ok {
		total += sign(r.AO) * wt.AO
	}
	if r, ok := b[indicator.KindKDJ].(indicator.KDJReading); ok {
		switch {
		case r.J < wt.KDJ.Oversold:
			total += wt.KDJ.Max
		case r.J > wt.KDJ.Overbought:
			total -= wt.KDJ.Max
		case r.K > r.D:
			total += wt.KDJ.Max / 2
		case r.K < r.D:
			total -= wt.KDJ.Max / 2
		}
	}
	if r, ok := b[indicator.KindOBV].(indicator.OBVReading); ok {
		if r.Normalized != nil {
			total += wt.OBV * *r.Normalized / 100
		} else {
			total += sign(r.OBVSlope) * wt.OBV / 2
		}
	}

	total = math.Max(-100, math.Min(100, total))
	st := w.Classify(total)
	return screener.Verdict{Signal: st, Score: total, Strength: strength(st)}
}

// Classify maps a score onto a SignalType using the profile thresholds.
func (w *WeightedScorer) Classify(score float64) model.SignalType {
	th := w.profile.Thresholds
	switch {
	case score >= th.StrongBuy:
		return model.StrongBuy
	case score >= th.Buy:
		return model.Buy
	case score >= th.BuyWeak:
		return model.BuyWeak
	case score <= th.StrongSell:
		return model.StrongSell
	case score <= th.Sell:
		return model.Sell
	case score <= th.SellWeak:
		return model.SellWeak
	default:
		return model.Neutral
	}
}

func rsiContribution(rsi float64, w RSIWeight) float64 {
	switch {
	case rsi < w.Oversold:
		return w.Max
	case rsi < w.OversoldMild:
		return w.Max / 2
	case rsi > w.Overbought:
		return -w.Max
	case rsi > w.OverboughtMild:
		return -w.Max / 2
	default:
		return 0
	}
}

func strength(st model.SignalType) string {
	switch st {
	case model.StrongBuy, model.StrongSell:
		return StrengthStrong
	case model.Buy, model.Sell:
		return StrengthModerate
	case model.BuyWeak, model.SellWeak:
		return StrengthWeak
	default:
		return StrengthNone
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
