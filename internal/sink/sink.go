// Package sink delivers screener output to consumers: console, files,
// Redis, SQLite, websocket clients, webhooks, Telegram and Kafka.
//
// Every type here implements screener.Sink. Multi fans out to several
// sinks; Async moves slow network sinks off the engine's goroutine.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mtf-screener/internal/metrics"
	"mtf-screener/internal/model"
	"mtf-screener/internal/screener"
)

// Envelope kinds.
const (
	TypeSignal  = "signal"
	TypeAligned = "aligned"
)

// Envelope wraps one output event for line- and frame-oriented sinks.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Named labels a sink for logs and metrics.
type Named struct {
	Name string
	Sink screener.Sink
}

// Multi fans out to every member in order. A failing member does not stop
// delivery to the rest.
type Multi struct {
	sinks   []Named
	metrics *metrics.Metrics
	log     *slog.Logger
}

var _ screener.Sink = (*Multi)(nil)

// NewMulti creates a fan-out sink. m may be nil.
func NewMulti(m *metrics.Metrics, sinks ...Named) *Multi {
	return &Multi{
		sinks:   sinks,
		metrics: m,
		log:     slog.Default().With("component", "sink"),
	}
}

// Names lists the member sinks.
func (m *Multi) Names() []string {
	out := make([]string, len(m.sinks))
	for i, n := range m.sinks {
		out[i] = n.Name
	}
	return out
}

func (m *Multi) EmitSignal(ctx context.Context, s model.Signal) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.Sink.EmitSignal(ctx, s); err != nil {
			errs = append(errs, m.fail(n.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.Sink.EmitAligned(ctx, a); err != nil {
			errs = append(errs, m.fail(n.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) fail(name string, err error) error {
	if m.metrics != nil {
		m.metrics.SinkErrors.WithLabelValues(name).Inc()
	}
	m.log.Warn("sink delivery failed", "sink", name, "error", err)
	return fmt.Errorf("%s: %w", name, err)
}

// Close closes every member that is an io.Closer, last added first.
func (m *Multi) Close() error {
	var errs []error
	for i := len(m.sinks) - 1; i >= 0; i-- {
		if c, ok := m.sinks[i].Sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", m.sinks[i].Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ────────────────────────────────────────────────────────────
// Console
// ────────────────────────────────────────────────────────────

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
)

// Console prints one human-readable line per event.
type Console struct {
	w     io.Writer
	color bool
}

// NewConsole writes to w, with ANSI colors when color is set.
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

func (c *Console) EmitSignal(_ context.Context, s model.Signal) error {
	line := fmt.Sprintf("[%s] %s (%s) - %s (%s) | Score: %.2f",
		formatMs(s.Timestamp), s.Pair, s.Timeframe, s.Signal, s.Strength, s.Score)
	return c.print(s.Direction(), line)
}

func (c *Console) EmitAligned(_ context.Context, a model.AlignedSignal) error {
	line := fmt.Sprintf("[%s] %s ALIGNED %s | Confidence: %.2f (%s %s / %s %s)",
		formatMs(a.AlignedAt), a.Pair, a.Direction, a.Confidence,
		a.Primary.Timeframe, a.Primary.Signal, a.Secondary.Timeframe, a.Secondary.Signal)
	return c.print(a.Direction, line)
}

func (c *Console) print(dir model.Direction, line string) error {
	if c.color {
		switch dir {
		case model.DirBuy:
			line = ansiGreen + line + ansiReset
		case model.DirSell:
			line = ansiRed + line + ansiReset
		}
	}
	_, err := io.WriteString(c.w, line+"\n")
	return err
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// Log writes events as structured log records.
type Log struct {
	log *slog.Logger
}

// NewLog creates a Log sink on l, or the default logger when l is nil.
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{log: l.With("component", "signals")}
}

func (l *Log) EmitSignal(ctx context.Context, s model.Signal) error {
	l.log.InfoContext(ctx, "signal",
		"pair", s.Pair, "timeframe", s.Timeframe, "signal", s.Signal,
		"score", s.Score, "strength", s.Strength, "ts", s.Timestamp)
	return nil
}

func (l *Log) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	l.log.InfoContext(ctx, "aligned",
		"pair", a.Pair, "direction", a.Direction, "confidence", a.Confidence,
		"primary", string(a.Primary.Signal), "secondary", string(a.Secondary.Signal))
	return nil
}

// ParseKinds splits a comma-separated sink list, trimming blanks.
func ParseKinds(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
