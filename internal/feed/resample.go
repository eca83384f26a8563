package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mtf-screener/internal/model"
)

// ParseTimeframe converts a timeframe label such as "5m", "15m" or "4h" to
// milliseconds.
func ParseTimeframe(tf string) (int64, error) {
	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	return d.Milliseconds(), nil
}

// CloseTime returns the end of the candle's interval in milliseconds. An
// unparseable timeframe is treated as zero length.
func CloseTime(ev model.CandleEvent) int64 {
	ms, err := ParseTimeframe(ev.Timeframe)
	if err != nil {
		return ev.Candle.TS
	}
	return ev.Candle.TS + ms
}

// bucketState is the forming candle of one (pair, derived timeframe).
type bucketState struct {
	bucket  int64
	candle  model.Candle
	emitted bool
}

type derived struct {
	name    string
	ms      int64
	buckets map[string]*bucketState // pair → forming candle
}

// Resampler forwards every event of an inner feed and additionally builds
// closed candles of higher timeframes from the base timeframe. A derived
// candle is emitted as soon as the base candle that ends its bucket
// arrives, or when the next bucket starts after a gap. Base candles older
// than the forming bucket are ignored for resampling.
type Resampler struct {
	inner   Feed
	base    string
	baseMs  int64
	targets []*derived

	// OnDerived is called for every emitted derived candle.
	OnDerived func(model.CandleEvent)

	log *slog.Logger
}

// NewResampler derives each of timeframes from base. Every derived
// timeframe must be a whole multiple of base.
func NewResampler(inner Feed, base string, timeframes []string) (*Resampler, error) {
	baseMs, err := ParseTimeframe(base)
	if err != nil {
		return nil, err
	}
	r := &Resampler{
		inner:  inner,
		base:   base,
		baseMs: baseMs,
		log:    slog.Default().With("component", "feed", "feed", "resample"),
	}
	for _, tf := range timeframes {
		ms, err := ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		if ms <= baseMs || ms%baseMs != 0 {
			return nil, fmt.Errorf("timeframe %s is not a multiple of %s", tf, base)
		}
		r.targets = append(r.targets, &derived{name: tf, ms: ms, buckets: make(map[string]*bucketState)})
	}
	return r, nil
}

func (r *Resampler) Run(ctx context.Context, out chan<- model.CandleEvent) error {
	mid := make(chan model.CandleEvent, cap(out))
	errCh := make(chan error, 1)
	go func() {
		defer close(mid)
		errCh <- r.inner.Run(ctx, mid)
	}()

loop:
	for ev := range mid {
		if !send(ctx, out, ev) {
			break
		}
		if ev.Timeframe != r.base {
			continue
		}
		for _, t := range r.targets {
			for _, d := range r.update(t, ev) {
				if !send(ctx, out, d) {
					break loop
				}
			}
		}
	}
	// Unblock the inner feed if we stopped early.
	for range mid {
	}
	return <-errCh
}

// update merges a base candle into t and returns the derived candles it
// closes, oldest first.
func (r *Resampler) update(t *derived, ev model.CandleEvent) []model.CandleEvent {
	c := ev.Candle
	bucket := c.TS - c.TS%t.ms
	st, exists := t.buckets[ev.Pair]

	var closed []model.CandleEvent
	if exists {
		switch {
		case bucket < st.bucket:
			return nil
		case bucket > st.bucket:
			// The previous bucket never saw its last base candle.
			if !st.emitted {
				r.log.Debug("derived bucket closed by gap", "pair", ev.Pair, "timeframe", t.name, "bucket", st.bucket)
				closed = append(closed, r.finalize(t, ev.Pair, st))
			}
			exists = false
		}
	}

	if !exists {
		first := c
		first.TS = bucket
		st = &bucketState{bucket: bucket, candle: first}
		t.buckets[ev.Pair] = st
	} else if !st.emitted {
		fc := &st.candle
		fc.High = max(fc.High, c.High)
		fc.Low = min(fc.Low, c.Low)
		fc.Close = c.Close
		fc.Volume += c.Volume
	}

	if !st.emitted && c.TS+r.baseMs >= bucket+t.ms {
		closed = append(closed, r.finalize(t, ev.Pair, st))
	}
	return closed
}

func (r *Resampler) finalize(t *derived, pair string, st *bucketState) model.CandleEvent {
	st.emitted = true
	d := model.CandleEvent{Pair: pair, Timeframe: t.name, Candle: st.candle}
	if r.OnDerived != nil {
		r.OnDerived(d)
	}
	return d
}

func send(ctx context.Context, out chan<- model.CandleEvent, ev model.CandleEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
