// Package feed delivers closed candles to the screener.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mtf-screener/internal/model"
)

// ErrRetriesExhausted is returned by Run when the reconnect budget is spent.
var ErrRetriesExhausted = errors.New("feed: reconnect attempts exhausted")

// Feed pushes candle events into out until ctx is cancelled or the source
// is exhausted. Run returns nil on cancellation.
type Feed interface {
	Run(ctx context.Context, out chan<- model.CandleEvent) error
}

// Subscription names one (pair, timeframe) stream.
type Subscription struct {
	Pair      string
	Timeframe string
}

// Subscriptions expands pairs × timeframes.
func Subscriptions(pairs []string, timeframes ...string) []Subscription {
	out := make([]Subscription, 0, len(pairs)*len(timeframes))
	for _, p := range pairs {
		for _, tf := range timeframes {
			out = append(out, Subscription{Pair: p, Timeframe: tf})
		}
	}
	return out
}

// StreamName returns the Redis stream key for a subscription:
// "candle:{timeframe}:{pair}".
func StreamName(s Subscription) string {
	return "candle:" + s.Timeframe + ":" + s.Pair
}

// ParseStreamName is the inverse of StreamName.
func ParseStreamName(stream string) (Subscription, bool) {
	parts := strings.SplitN(stream, ":", 3)
	if len(parts) != 3 || parts[0] != "candle" || parts[1] == "" || parts[2] == "" {
		return Subscription{}, false
	}
	return Subscription{Pair: parts[2], Timeframe: parts[1]}, true
}

// wireCandle accepts prices as JSON numbers or decimal strings.
type wireCandle struct {
	TS     int64           `json:"timestamp"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

func (w wireCandle) candle() model.Candle {
	return model.Candle{
		TS:     w.TS,
		Open:   w.Open.InexactFloat64(),
		High:   w.High.InexactFloat64(),
		Low:    w.Low.InexactFloat64(),
		Close:  w.Close.InexactFloat64(),
		Volume: w.Volume.InexactFloat64(),
	}
}

// DecodeCandle parses one JSON candle and validates it.
func DecodeCandle(data []byte) (model.Candle, error) {
	var w wireCandle
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Candle{}, fmt.Errorf("decode candle: %w", err)
	}
	c := w.candle()
	if err := c.Validate(); err != nil {
		return model.Candle{}, err
	}
	return c, nil
}

// Hooks observe feed health. Nil fields are skipped.
type Hooks struct {
	OnConnect     func(connected bool)
	OnReconnect   func(attempt int, err error)
	OnDecodeError func(err error)
}

func (h Hooks) connect(v bool) {
	if h.OnConnect != nil {
		h.OnConnect(v)
	}
}

func (h Hooks) reconnect(attempt int, err error) {
	if h.OnReconnect != nil {
		h.OnReconnect(attempt, err)
	}
}

func (h Hooks) decodeError(err error) {
	if h.OnDecodeError != nil {
		h.OnDecodeError(err)
	}
}

// Backoff is a bounded exponential reconnect policy. MaxAttempts ≤ 0 means
// retry forever.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff starts at 5s, caps at 60s and gives up after 10 attempts.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 5 * time.Second, Max: time.Minute, MaxAttempts: 10}
}

type retrier struct {
	b       Backoff
	attempt int
}

func (b Backoff) retrier() *retrier {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff().Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return &retrier{b: b}
}

// next returns the delay before the next attempt, or false when the budget
// is spent.
func (r *retrier) next() (time.Duration, bool) {
	if r.b.MaxAttempts > 0 && r.attempt >= r.b.MaxAttempts {
		return 0, false
	}
	d := r.b.Max
	if r.attempt < 30 {
		if s := r.b.Initial << r.attempt; s > 0 && s < d {
			d = s
		}
	}
	r.attempt++
	return d, true
}

func (r *retrier) reset() { r.attempt = 0 }

// runWithRetry calls once until ctx is cancelled, sleeping per the backoff
// between failed sessions. once resets the retrier after it has made
// progress.
func runWithRetry(ctx context.Context, name string, log *slog.Logger, b Backoff, hooks Hooks,
	once func(ctx context.Context, r *retrier) error) error {
	r := b.retrier()
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := once(ctx, r)
		hooks.connect(false)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		delay, ok := r.next()
		if !ok {
			return fmt.Errorf("%s: %w after %d attempts: %v", name, ErrRetriesExhausted, r.attempt, err)
		}
		log.Warn("feed disconnected, reconnecting", "feed", name, "error", err,
			"attempt", r.attempt, "delay", delay.String())
		hooks.reconnect(r.attempt, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// SliceFeed replays a fixed list of events.
type SliceFeed []model.CandleEvent

func (s SliceFeed) Run(ctx context.Context, out chan<- model.CandleEvent) error {
	for _, ev := range s {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
