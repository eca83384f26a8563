package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mtf-screener/config"
	"mtf-screener/internal/screener"
	"mtf-screener/internal/sink"
)

// buildSinks constructs every enabled sink in configuration order. Network
// sinks sit behind a circuit breaker and an async queue so a slow endpoint
// never stalls the engine.
func (svc *Service) buildSinks() (named []sink.Named, err error) {
	sc := svc.cfg.Sinks
	defer func() {
		if err != nil {
			closeAll(named)
			named = nil
		}
	}()

	for _, kind := range sc.Enabled {
		var s sink.Named
		switch kind {
		case config.SinkConsole:
			s = sink.Named{Name: kind, Sink: sink.NewConsole(os.Stdout, sc.Console.Color)}
		case config.SinkLog:
			s = sink.Named{Name: kind, Sink: sink.NewLog(svc.log)}
		case config.SinkFile:
			f, err := sink.NewFile(sc.File.Path)
			if err != nil {
				return named, err
			}
			s = sink.Named{Name: kind, Sink: f}
		case config.SinkJournal:
			if err := os.MkdirAll(filepath.Dir(sc.Journal.Path), 0o755); err != nil {
				return named, fmt.Errorf("journal dir: %w", err)
			}
			j, err := sink.NewJournal(sc.Journal.Path)
			if err != nil {
				return named, err
			}
			svc.journal = j
			s = sink.Named{Name: kind, Sink: j}
		case config.SinkWebSocket:
			svc.hub = sink.NewHub()
			s = sink.Named{Name: kind, Sink: svc.hub}
		case config.SinkRedis:
			s = svc.network(kind, sink.NewRedis(svc.rdb, sink.RedisConfig{
				StreamMaxLen: svc.cfg.Redis.StreamMaxLen,
				LatestTTL:    svc.cfg.Redis.LatestTTL,
			}))
		case config.SinkWebhook:
			s = svc.network(kind, sink.NewWebhook(sc.Webhook.URL, sc.Webhook.AllSignals))
		case config.SinkTelegram:
			bot, err := sink.NewTelegramBot(sc.Telegram.Token)
			if err != nil {
				return named, err
			}
			s = svc.network(kind, sink.NewTelegram(bot, sc.Telegram.ChatID, sc.Telegram.AllSignals))
		case config.SinkKafka:
			w, err := sink.NewKafkaWriter(sink.KafkaConfig{
				Brokers:      sc.Kafka.Brokers,
				RequiredAcks: sc.Kafka.RequiredAcks,
				BatchTimeout: sc.Kafka.BatchTimeout,
			})
			if err != nil {
				return named, err
			}
			s = svc.network(kind, sink.NewKafka(w, sc.Kafka.SignalTopic, sc.Kafka.AlignedTopic))
		default:
			return named, fmt.Errorf("unknown sink %q", kind)
		}
		named = append(named, s)
	}
	return named, nil
}

// network wraps a remote sink with a breaker and an async queue.
func (svc *Service) network(name string, inner screener.Sink) sink.Named {
	sc := svc.cfg.Sinks
	cb := sink.NewCircuitBreaker(sc.Breaker.MaxFailures, sc.Breaker.ResetTimeout)
	state := svc.prom.CircuitBreakerState.WithLabelValues(name)
	trips := svc.prom.CircuitBreakerTrips.WithLabelValues(name)
	cb.OnStateChange = func(from, to sink.State) {
		state.Set(float64(to))
		if to == sink.StateOpen {
			trips.Inc()
		}
		svc.log.Warn("sink circuit breaker", "sink", name, "from", from.String(), "to", to.String())
	}

	failures := svc.prom.SinkErrors.WithLabelValues(name)
	onError := func(err error) {
		if !errors.Is(err, sink.ErrCircuitOpen) {
			failures.Inc()
		}
	}
	return sink.Named{Name: name, Sink: sink.NewAsync(name, sink.NewBreaker(inner, cb), sc.QueueSize, onError)}
}

func closeAll(named []sink.Named) {
	for i := len(named) - 1; i >= 0; i-- {
		if c, ok := named[i].Sink.(io.Closer); ok {
			c.Close()
		}
	}
}
