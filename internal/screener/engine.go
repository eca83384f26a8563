package screener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"mtf-screener/internal/aligner"
	"mtf-screener/internal/indicator"
	"mtf-screener/internal/logger"
	"mtf-screener/internal/metrics"
	"mtf-screener/internal/model"
)

var (
	// ErrUnknownTimeframe is returned when registering a timeframe that is
	// neither the primary nor the secondary one.
	ErrUnknownTimeframe = errors.New("timeframe is neither primary nor secondary")
	// ErrDuplicateSet is returned when a (pair, timeframe) is registered twice.
	ErrDuplicateSet = errors.New("indicator set already registered")
)

// Config controls the engine. Zero durations and counts fall back to the
// defaults of DefaultConfig.
type Config struct {
	Primary   string
	Secondary string

	RequireAlignment bool
	MinConfidence    float64

	AlignWindow     time.Duration
	StaleAfter      time.Duration
	CleanupInterval time.Duration

	Workers   int
	QueueSize int
}

// DefaultConfig returns the standard 5m/15m configuration.
func DefaultConfig() Config {
	return Config{
		Primary:          "5m",
		Secondary:        "15m",
		RequireAlignment: true,
		MinConfidence:    60,
		AlignWindow:      aligner.DefaultAlignWindow,
		StaleAfter:       aligner.DefaultStaleAfter,
		CleanupInterval:  time.Minute,
		Workers:          4,
		QueueSize:        256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AlignWindow <= 0 {
		c.AlignWindow = d.AlignWindow
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Stats are the engine-level counters.
type Stats struct {
	CandlesProcessed uint64
	CandlesRejected  uint64
	SignalsGenerated uint64
	AlignedSignals   uint64
	SinkErrors       uint64
	StartedAt        time.Time
}

// keyState is the per-(pair, timeframe) state. It is only touched by the
// worker that owns the key.
type keyState struct {
	pair      string
	timeframe string
	role      model.Role
	span      int64 // timeframe length in ms, 0 when unparseable
	set       *indicator.Set
	lastTS    int64
	seen      bool
}

// Engine is the stream orchestrator.
type Engine struct {
	cfg     Config
	scorer  Scorer
	sink    Sink
	aligner *aligner.Aligner
	metrics *metrics.Metrics
	log     *slog.Logger

	mu   sync.RWMutex
	sets map[string]*keyState

	// emitMu serializes sink calls across workers.
	emitMu sync.Mutex

	// candleClock drives the aligner from candle close times.
	candleClock bool
	clockMs     atomic.Int64

	processed atomic.Uint64
	rejected  atomic.Uint64
	signals   atomic.Uint64
	aligned   atomic.Uint64
	sinkErrs  atomic.Uint64
	startedAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithAligner supplies the aligner, e.g. one with a test clock.
func WithAligner(a *aligner.Aligner) Option { return func(e *Engine) { e.aligner = a } }

// WithCandleClock makes the aligner measure signal ages in candle time: the
// clock is the latest close time processed. Replays use it so the alignment
// and staleness windows hold regardless of playback speed. An aligner given
// through WithAligner keeps its own clock.
func WithCandleClock() Option { return func(e *Engine) { e.candleClock = true } }

// New creates an engine. A nil sink discards output.
func New(cfg Config, scorer Scorer, sink Sink, opts ...Option) (*Engine, error) {
	if scorer == nil {
		return nil, errors.New("screener: nil scorer")
	}
	if cfg.Primary == "" || cfg.Secondary == "" {
		return nil, errors.New("screener: primary and secondary timeframes are required")
	}
	if cfg.Primary == cfg.Secondary {
		return nil, fmt.Errorf("screener: primary and secondary timeframes must differ (both %q)", cfg.Primary)
	}
	if sink == nil {
		sink = Discard{}
	}

	e := &Engine{
		cfg:       cfg.withDefaults(),
		scorer:    scorer,
		sink:      sink,
		log:       slog.Default(),
		sets:      make(map[string]*keyState),
		startedAt: time.Now(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.aligner == nil {
		if e.candleClock {
			e.aligner = aligner.New(aligner.WithClock(e.candleNow))
		} else {
			e.aligner = aligner.New()
		}
	}
	e.log = e.log.With("component", "screener")
	return e, nil
}

// Aligner exposes the engine's aligner for read-only queries.
func (e *Engine) Aligner() *aligner.Aligner { return e.aligner }

// Role reports the aligner side a timeframe feeds.
func (e *Engine) Role(timeframe string) model.Role {
	switch timeframe {
	case e.cfg.Primary:
		return model.RolePrimary
	case e.cfg.Secondary:
		return model.RoleSecondary
	default:
		return model.RoleNone
	}
}

// RegisterIndicatorSet builds the indicator set for (pair, timeframe). A
// malformed indicator configuration fails with an *indicator.ConfigError and
// registers nothing.
func (e *Engine) RegisterIndicatorSet(pair, timeframe string, enabled []indicator.Kind, p indicator.Params) error {
	key := model.Key(pair, timeframe)
	role := e.Role(timeframe)
	if role == model.RoleNone {
		return fmt.Errorf("register %s: %w", key, ErrUnknownTimeframe)
	}

	set, err := indicator.NewSet(enabled, p)
	if err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sets[key]; exists {
		return fmt.Errorf("register %s: %w", key, ErrDuplicateSet)
	}
	var span int64
	if d, err := time.ParseDuration(timeframe); err == nil && d > 0 {
		span = d.Milliseconds()
	}
	e.sets[key] = &keyState{pair: pair, timeframe: timeframe, role: role, span: span, set: set}

	e.log.Info("indicator set registered",
		"pair", pair, "timeframe", timeframe, "role", role.String(),
		"indicators", enabled, "warmup", set.WarmupPeriod())
	return nil
}

// OnCandle processes one closed candle. It returns the generated signal, if
// any. Calls for the same (pair, timeframe) must not run concurrently.
func (e *Engine) OnCandle(ctx context.Context, pair, timeframe string, c model.Candle) (model.Signal, bool) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(pair, timeframe, c.TS))

	if err := c.Validate(); err != nil {
		e.reject(ctx, "malformed", pair, timeframe, err)
		return model.Signal{}, false
	}

	e.mu.RLock()
	ks := e.sets[model.Key(pair, timeframe)]
	e.mu.RUnlock()
	if ks == nil {
		e.reject(ctx, "unregistered", pair, timeframe, nil)
		return model.Signal{}, false
	}
	if ks.seen && c.TS < ks.lastTS {
		e.reject(ctx, "out_of_order", pair, timeframe,
			fmt.Errorf("candle ts %d before last %d", c.TS, ks.lastTS))
		return model.Signal{}, false
	}
	ks.lastTS, ks.seen = c.TS, true
	if e.candleClock {
		e.advanceClock(c.TS + ks.span)
	}

	start := time.Now()
	bundle, allReady := ks.set.Update(c)
	e.processed.Add(1)
	if e.metrics != nil {
		e.metrics.CandlesTotal.WithLabelValues(timeframe).Inc()
	}
	if !allReady {
		e.observe(start)
		return model.Signal{}, false
	}

	v := e.scorer.Score(bundle)
	e.observe(start)
	if v.Signal == model.Neutral || v.Signal == "" {
		return model.Signal{}, false
	}

	sig := model.Signal{
		Pair:      pair,
		Timeframe: timeframe,
		Signal:    v.Signal,
		Score:     v.Score,
		Strength:  v.Strength,
		Timestamp: c.TS,
	}
	e.aligner.Add(ks.role, pair, sig)
	e.signals.Add(1)
	if e.metrics != nil {
		e.metrics.SignalsTotal.WithLabelValues(timeframe, string(sig.Signal)).Inc()
	}
	e.log.Debug("signal", append(logger.LogWithTrace(ctx),
		"pair", pair, "timeframe", timeframe, "signal", sig.Signal, "score", sig.Score)...)

	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if err := e.sink.EmitSignal(ctx, sig); err != nil {
		e.sinkError(ctx, "signal", err)
	}

	if e.cfg.RequireAlignment {
		if as, ok := e.aligner.CheckAlignment(pair, e.cfg.AlignWindow); ok {
			e.emitAligned(ctx, as)
		}
	}
	return sig, true
}

func (e *Engine) candleNow() time.Time { return time.UnixMilli(e.clockMs.Load()) }

// advanceClock moves the candle clock forward to ms; it never goes back.
func (e *Engine) advanceClock(ms int64) {
	for {
		cur := e.clockMs.Load()
		if ms <= cur || e.clockMs.CompareAndSwap(cur, ms) {
			return
		}
	}
}

// emitAligned applies the confidence gate. Caller holds emitMu.
func (e *Engine) emitAligned(ctx context.Context, as model.AlignedSignal) {
	if as.Confidence < e.cfg.MinConfidence {
		if e.metrics != nil {
			e.metrics.AlignedBelowMin.Inc()
		}
		return
	}
	e.aligned.Add(1)
	if e.metrics != nil {
		e.metrics.AlignedSignalsTotal.WithLabelValues(string(as.Direction)).Inc()
	}
	e.log.Info("aligned signal", append(logger.LogWithTrace(ctx),
		"pair", as.Pair, "direction", as.Direction, "confidence", as.Confidence)...)
	if err := e.sink.EmitAligned(ctx, as); err != nil {
		e.sinkError(ctx, "aligned", err)
	}
}

// Run consumes events until ctx is cancelled or events is closed. Events are
// sharded by key so each indicator set is owned by exactly one worker. The
// aligner cleanup timer runs for the lifetime of Run. On return no worker or
// timer goroutine is left running.
func (e *Engine) Run(ctx context.Context, events <-chan model.CandleEvent) error {
	n := e.cfg.Workers
	shards := make([]chan model.CandleEvent, n)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan model.CandleEvent, e.cfg.QueueSize)
		wg.Add(1)
		go func(in <-chan model.CandleEvent) {
			defer wg.Done()
			for ev := range in {
				e.OnCandle(ctx, ev.Pair, ev.Timeframe, ev.Candle)
			}
		}(shards[i])
	}

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		e.cleanupLoop(cleanupCtx)
	}()

	e.log.Info("engine started", "workers", n, "primary", e.cfg.Primary, "secondary", e.cfg.Secondary)

	defer func() {
		for _, s := range shards {
			close(s)
		}
		wg.Wait()
		stopCleanup()
		<-cleanupDone

		st := e.Stats()
		e.log.Info("engine stopped",
			"runtime", time.Since(st.StartedAt).Round(time.Second).String(),
			"candles", st.CandlesProcessed,
			"signals", st.SignalsGenerated,
			"aligned", st.AlignedSignals)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			target := shards[shardFor(ev.Key(), n)]
			select {
			case target <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Cleanup()
		}
	}
}

// Cleanup evicts stale aligner entries. Run calls it periodically.
func (e *Engine) Cleanup() int {
	removed := e.aligner.Cleanup(e.cfg.StaleAfter)
	p, s := e.aligner.Len()
	if e.metrics != nil {
		e.metrics.AlignerEvictions.Add(float64(removed))
		e.metrics.AlignerEntries.WithLabelValues("primary").Set(float64(p))
		e.metrics.AlignerEntries.WithLabelValues("secondary").Set(float64(s))
	}
	if removed > 0 {
		e.log.Debug("aligner cleanup", "removed", removed, "primary", p, "secondary", s)
	}
	return removed
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		CandlesProcessed: e.processed.Load(),
		CandlesRejected:  e.rejected.Load(),
		SignalsGenerated: e.signals.Load(),
		AlignedSignals:   e.aligned.Load(),
		SinkErrors:       e.sinkErrs.Load(),
		StartedAt:        e.startedAt,
	}
}

func (e *Engine) reject(ctx context.Context, reason, pair, timeframe string, err error) {
	e.rejected.Add(1)
	if e.metrics != nil {
		e.metrics.CandlesRejected.WithLabelValues(reason).Inc()
	}
	attrs := append(logger.LogWithTrace(ctx), "reason", reason, "pair", pair, "timeframe", timeframe)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if reason == "unregistered" {
		e.log.Debug("candle ignored", attrs...)
		return
	}
	e.log.Warn("candle rejected", attrs...)
}

func (e *Engine) sinkError(ctx context.Context, kind string, err error) {
	e.sinkErrs.Add(1)
	e.log.Error("sink emit failed", append(logger.LogWithTrace(ctx), "kind", kind, "error", err)...)
}

func (e *Engine) observe(start time.Time) {
	if e.metrics != nil {
		e.metrics.ComputeDur.Observe(time.Since(start).Seconds())
	}
}

func shardFor(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}
