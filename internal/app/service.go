// Package app wires configuration, feed, engine, sinks and the HTTP surface
// into one runnable service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mtf-screener/config"
	"mtf-screener/internal/feed"
	"mtf-screener/internal/logger"
	"mtf-screener/internal/metrics"
	"mtf-screener/internal/model"
	"mtf-screener/internal/screener"
	"mtf-screener/internal/sink"
	"mtf-screener/internal/strategy"
)

// Service is the top-level orchestrator for the screener.
type Service struct {
	cfg config.Config
	log *slog.Logger

	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	engine  *screener.Engine
	feed    feed.Feed
	sinks   *sink.Multi
	hub     *sink.Hub
	journal *sink.Journal
	rdb     *goredis.Client

	http *http.Server
}

// Option customizes a Service.
type Option func(*Service)

// WithFeed replaces the configured candle feed.
func WithFeed(f feed.Feed) Option { return func(s *Service) { s.feed = f } }

// WithLogger replaces the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// New builds the service from cfg. Nothing runs until Run.
func New(cfg config.Config, opts ...Option) (svc *Service, err error) {
	svc = &Service{cfg: cfg, reg: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.log == nil {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		svc.log = logger.Init(cfg.Service, level)
	}

	svc.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.prom = metrics.New(svc.reg)

	scorer, err := strategy.NewWeightedScorer(cfg.Profile)
	if err != nil {
		return nil, err
	}

	needRedis := cfg.Sinks.Has(config.SinkRedis) || (svc.feed == nil && cfg.Feed.Type == "redis")
	if needRedis {
		svc.rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	defer func() {
		if err != nil {
			svc.Close()
			svc = nil
		}
	}()

	named, err := svc.buildSinks()
	if err != nil {
		return svc, err
	}
	svc.sinks = sink.NewMulti(svc.prom, named...)

	engineOpts := []screener.Option{screener.WithMetrics(svc.prom), screener.WithLogger(svc.log.With("component", "screener"))}
	if cfg.Feed.Type == "replay" {
		// Replayed candles arrive far faster than they closed.
		engineOpts = append(engineOpts, screener.WithCandleClock())
	}
	svc.engine, err = screener.New(screener.Config{
		Primary:          cfg.Screener.Primary,
		Secondary:        cfg.Screener.Secondary,
		RequireAlignment: cfg.Screener.RequireAlignment,
		MinConfidence:    cfg.Screener.MinConfidence,
		AlignWindow:      cfg.Screener.AlignWindow,
		StaleAfter:       cfg.Screener.StaleAfter,
		CleanupInterval:  cfg.Screener.CleanupInterval,
		Workers:          cfg.Screener.Workers,
		QueueSize:        cfg.Screener.QueueSize,
	}, scorer, svc.sinks, engineOpts...)
	if err != nil {
		return svc, err
	}
	for _, pair := range cfg.Pairs {
		for _, tf := range []string{cfg.Screener.Primary, cfg.Screener.Secondary} {
			if err := svc.engine.RegisterIndicatorSet(pair, tf, cfg.Indicators.Kinds(), cfg.Indicators.Params); err != nil {
				return svc, err
			}
		}
	}

	svc.health = metrics.NewHealthStatus(svc.rdb != nil, svc.journal != nil)
	svc.health.SetPairs(cfg.Pairs)

	if svc.feed == nil {
		if svc.feed, err = svc.buildFeed(); err != nil {
			return svc, err
		}
	}

	svc.http = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc, nil
}

func (svc *Service) buildFeed() (feed.Feed, error) {
	cfg := svc.cfg
	var sourced []string
	for _, tf := range []string{cfg.Screener.Primary, cfg.Screener.Secondary} {
		if !slices.Contains(cfg.Feed.Derive, tf) {
			sourced = append(sourced, tf)
		}
	}
	subs := feed.Subscriptions(cfg.Pairs, sourced...)
	backoff := feed.Backoff{
		Initial:     cfg.Feed.Backoff.Initial,
		Max:         cfg.Feed.Backoff.Max,
		MaxAttempts: cfg.Feed.Backoff.MaxAttempts,
	}
	hooks := feed.Hooks{
		OnConnect: svc.health.SetFeedConnected,
		OnReconnect: func(attempt int, err error) {
			svc.prom.FeedReconnects.Inc()
			svc.log.Warn("feed reconnecting", "attempt", attempt, "error", err)
		},
		OnDecodeError: func(error) { svc.prom.FeedDecodeErrs.Inc() },
	}

	src, err := svc.sourceFeed(subs, backoff, hooks)
	if err != nil || len(cfg.Feed.Derive) == 0 {
		return src, err
	}
	return feed.NewResampler(src, cfg.Screener.Primary, cfg.Feed.Derive)
}

func (svc *Service) sourceFeed(subs []feed.Subscription, backoff feed.Backoff, hooks feed.Hooks) (feed.Feed, error) {
	cfg := svc.cfg
	switch cfg.Feed.Type {
	case "redis":
		return feed.NewRedisStreamFeed(svc.rdb, subs, feed.RedisConfig{
			Group:    cfg.Feed.Group,
			Consumer: cfg.Feed.Consumer,
			Count:    cfg.Feed.Count,
			Block:    cfg.Feed.Block,
			Backoff:  backoff,
		}, hooks), nil
	case "websocket":
		return feed.NewWSFeed(feed.WSConfig{URL: cfg.Feed.WSURL, Backoff: backoff}, subs, hooks)
	case "replay":
		return feed.NewReplayFeed(cfg.Feed.ReplayPath, cfg.Feed.Speed, hooks), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Feed.Type)
	}
}

// Run starts the feed, engine and HTTP server and blocks until ctx is
// cancelled, the feed fails, or a finite feed is exhausted and drained.
// Shutdown order: feed, engine drain, HTTP, sinks.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		svc.Close()
		return fmt.Errorf("http listen: %w", err)
	}

	svc.log.Info("screener starting",
		"pairs", cfg.Pairs,
		"primary", cfg.Screener.Primary,
		"secondary", cfg.Screener.Secondary,
		"indicators", cfg.Indicators.Enabled,
		"profile", cfg.Profile,
		"feed", cfg.Feed.Type,
		"sinks", svc.sinks.Names(),
		"http", ln.Addr().String(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	raw := make(chan model.CandleEvent, cfg.Screener.QueueSize)
	events := make(chan model.CandleEvent, cfg.Screener.QueueSize)
	engineDone := make(chan struct{})

	g.Go(func() error {
		defer close(raw)
		err := svc.feed.Run(gctx, raw)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer close(events)
		for ev := range raw {
			svc.health.SetLastCandleTime(time.Now())
			events <- ev
		}
		return nil
	})

	// The engine drains every accepted event, so it only stops once the
	// feed has closed raw.
	g.Go(func() error {
		defer close(engineDone)
		defer cancel()
		return svc.engine.Run(context.WithoutCancel(gctx), events)
	})

	g.Go(func() error {
		svc.health.RunLivenessChecker(gctx, svc.rdb, svc.journalDB(), cfg.HTTP.HealthInterval)
		return nil
	})

	g.Go(func() error {
		if err := svc.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-engineDone
		shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutCancel()
		return svc.http.Shutdown(shutCtx)
	})

	err = g.Wait()
	svc.Close()
	svc.log.Info("screener stopped")
	return err
}

// Close releases sinks and connections. Run calls it on exit.
func (svc *Service) Close() {
	if svc.sinks != nil {
		if err := svc.sinks.Close(); err != nil {
			svc.log.Warn("closing sinks", "error", err)
		}
		svc.sinks = nil
	}
	if svc.rdb != nil {
		svc.rdb.Close()
		svc.rdb = nil
	}
}

// Engine exposes the screener engine.
func (svc *Service) Engine() *screener.Engine { return svc.engine }

// Health exposes the health status.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

func (svc *Service) journalDB() *sql.DB {
	if svc.journal == nil {
		return nil
	}
	return svc.journal.DB()
}
