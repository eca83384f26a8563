package model

import "strings"

// SignalType is the seven-level verdict produced by a scorer.
type SignalType string

const (
	StrongBuy  SignalType = "STRONG_BUY"
	Buy        SignalType = "BUY"
	BuyWeak    SignalType = "BUY_WEAK"
	Neutral    SignalType = "NEUTRAL"
	SellWeak   SignalType = "SELL_WEAK"
	Sell       SignalType = "SELL"
	StrongSell SignalType = "STRONG_SELL"
)

// Direction collapses a SignalType to BUY, SELL or NEUTRAL.
type Direction string

const (
	DirBuy     Direction = "BUY"
	DirSell    Direction = "SELL"
	DirNeutral Direction = "NEUTRAL"
)

// DirectionOf maps a signal type to its direction. "BUY" is checked before
// "SELL", so any type containing both substrings is a buy.
func DirectionOf(s SignalType) Direction {
	switch {
	case strings.Contains(string(s), "BUY"):
		return DirBuy
	case strings.Contains(string(s), "SELL"):
		return DirSell
	default:
		return DirNeutral
	}
}

// Role says whether a timeframe feeds the primary or secondary side of the
// aligner.
type Role int

const (
	RoleNone Role = iota
	RolePrimary
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "none"
	}
}

// Signal is a scored, non-neutral verdict for one (pair, timeframe) candle.
type Signal struct {
	Pair      string     `json:"pair"`
	Timeframe string     `json:"timeframe"`
	Signal    SignalType `json:"signal"`
	Score     float64    `json:"score"`
	Strength  string     `json:"strength,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// Direction returns the signal's direction.
func (s Signal) Direction() Direction {
	return DirectionOf(s.Signal)
}

// AlignedSignal is emitted when the primary and secondary timeframes of a pair
// agree on direction within the alignment window.
type AlignedSignal struct {
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Primary    Signal    `json:"primary"`
	Secondary  Signal    `json:"secondary"`
	AlignedAt  int64     `json:"alignedAt"`
}
