package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the screener.
type Metrics struct {
	CandlesTotal    *prometheus.CounterVec // labels: timeframe
	CandlesRejected *prometheus.CounterVec // labels: reason
	ComputeDur      prometheus.Histogram

	SignalsTotal        *prometheus.CounterVec // labels: timeframe, signal
	AlignedSignalsTotal *prometheus.CounterVec // labels: direction
	AlignedBelowMin     prometheus.Counter
	AlignerEntries      *prometheus.GaugeVec // labels: role
	AlignerEvictions    prometheus.Counter

	SinkErrors *prometheus.CounterVec // labels: sink

	FeedReconnects prometheus.Counter
	FeedDecodeErrs prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec   // labels: sink; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: sink
}

// New creates the screener metrics and registers them on reg. Tests pass a
// fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_candles_total",
			Help: "Closed candles processed",
		}, []string{"timeframe"}),
		CandlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_candles_rejected_total",
			Help: "Candles dropped at ingestion (malformed, out_of_order, unregistered)",
		}, []string{"reason"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_candle_compute_seconds",
			Help:    "Indicator update plus scoring time per candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_signals_total",
			Help: "Non-neutral signals generated",
		}, []string{"timeframe", "signal"}),
		AlignedSignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_aligned_signals_total",
			Help: "Aligned signals emitted",
		}, []string{"direction"}),
		AlignedBelowMin: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_aligned_below_min_confidence_total",
			Help: "Alignments suppressed by the minimum confidence gate",
		}),
		AlignerEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screener_aligner_entries",
			Help: "Live aligner entries",
		}, []string{"role"}),
		AlignerEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_aligner_evictions_total",
			Help: "Aligner entries removed by cleanup",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_sink_errors_total",
			Help: "Failed signal deliveries",
		}, []string{"sink"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_feed_reconnects_total",
			Help: "Candle feed reconnection attempts",
		}),
		FeedDecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_feed_decode_errors_total",
			Help: "Feed messages that could not be decoded",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screener_sink_circuit_breaker_state",
			Help: "Network sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"sink"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_sink_circuit_breaker_trips_total",
			Help: "Times a network sink circuit breaker tripped open",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.CandlesRejected,
		m.ComputeDur,
		m.SignalsTotal,
		m.AlignedSignalsTotal,
		m.AlignedBelowMin,
		m.AlignerEntries,
		m.AlignerEvictions,
		m.SinkErrors,
		m.FeedReconnects,
		m.FeedDecodeErrs,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Pairs          []string  `json:"pairs"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Dependencies that are not configured do not degrade health.
	requireRedis  bool
	requireSQLite bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(requireRedis, requireSQLite bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		requireRedis:  requireRedis,
		requireSQLite: requireSQLite,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetPairs(pairs []string) {
	h.mu.Lock()
	h.Pairs = append([]string(nil), pairs...)
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// RunLivenessChecker probes dependencies every interval until ctx is done.
// Nil clients are skipped.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if rdb != nil {
				h.CheckRedis(probeCtx, rdb)
			}
			if sqlDB != nil {
				h.CheckSQLite(probeCtx, sqlDB)
			}
			cancel()
		}
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.requireRedis && !h.RedisConnected
	sqliteDown := h.requireSQLite && !h.SQLiteOK
	if !h.FeedConnected || redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && (redisDown || sqliteDown) {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Pairs           []string `json:"pairs"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Pairs:           h.Pairs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
