// Package screener drives one indicator set per (pair, timeframe), scores
// fully-ready bundles and joins the resulting signals across the primary and
// secondary timeframes.
package screener

import (
	"context"

	"mtf-screener/internal/indicator"
	"mtf-screener/internal/model"
)

// Verdict is what a Scorer makes of one readings bundle.
type Verdict struct {
	Signal   model.SignalType
	Score    float64
	Strength string
}

// Scorer turns a fully-ready readings bundle into a verdict. It is called
// only from the worker that owns the bundle's key.
type Scorer interface {
	Score(b indicator.Bundle) Verdict
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(b indicator.Bundle) Verdict

func (f ScorerFunc) Score(b indicator.Bundle) Verdict { return f(b) }

// Sink receives every non-neutral signal and every aligned signal that
// passes the confidence gate. Calls are serialized by the engine. Errors are
// logged and counted; they never affect screening.
type Sink interface {
	EmitSignal(ctx context.Context, s model.Signal) error
	EmitAligned(ctx context.Context, a model.AlignedSignal) error
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) EmitSignal(context.Context, model.Signal) error         { return nil }
func (Discard) EmitAligned(context.Context, model.AlignedSignal) error { return nil }
