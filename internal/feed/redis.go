package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"mtf-screener/internal/model"
)

// StreamClient is the subset of *goredis.Client the stream feed uses.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *goredis.StatusCmd
	XReadGroup(ctx context.Context, a *goredis.XReadGroupArgs) *goredis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *goredis.IntCmd
}

// RedisConfig configures the stream consumer.
type RedisConfig struct {
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
	Backoff  Backoff
}

func (c *RedisConfig) defaults() {
	if c.Group == "" {
		c.Group = "screener"
	}
	if c.Consumer == "" {
		c.Consumer = "screener-1"
	}
	if c.Count <= 0 {
		c.Count = 100
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
}

// RedisStreamFeed reads closed candles from one Redis stream per
// subscription through a consumer group. Each message carries the candle
// JSON in its "data" field and is acknowledged once handed to the engine.
type RedisStreamFeed struct {
	client   StreamClient
	cfg      RedisConfig
	streams  []string
	byStream map[string]Subscription
	hooks    Hooks
	log      *slog.Logger
}

// NewRedisStreamFeed creates a feed over subs.
func NewRedisStreamFeed(client StreamClient, subs []Subscription, cfg RedisConfig, hooks Hooks) *RedisStreamFeed {
	cfg.defaults()
	f := &RedisStreamFeed{
		client:   client,
		cfg:      cfg,
		byStream: make(map[string]Subscription, len(subs)),
		hooks:    hooks,
		log:      slog.Default().With("component", "feed", "feed", "redis"),
	}
	for _, s := range subs {
		name := StreamName(s)
		if _, dup := f.byStream[name]; dup {
			continue
		}
		f.streams = append(f.streams, name)
		f.byStream[name] = s
	}
	return f
}

// Streams returns the stream keys consumed.
func (f *RedisStreamFeed) Streams() []string { return append([]string(nil), f.streams...) }

// Run consumes until ctx is cancelled or reconnects are exhausted.
func (f *RedisStreamFeed) Run(ctx context.Context, out chan<- model.CandleEvent) error {
	return runWithRetry(ctx, "redis", f.log, f.cfg.Backoff, f.hooks, func(ctx context.Context, r *retrier) error {
		return f.consume(ctx, out, r)
	})
}

func (f *RedisStreamFeed) ensureGroups(ctx context.Context) error {
	for _, stream := range f.streams {
		err := f.client.XGroupCreateMkStream(ctx, stream, f.cfg.Group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

func (f *RedisStreamFeed) consume(ctx context.Context, out chan<- model.CandleEvent, r *retrier) error {
	if err := f.ensureGroups(ctx); err != nil {
		return err
	}
	f.hooks.connect(true)
	f.log.Info("consuming streams", "group", f.cfg.Group, "consumer", f.cfg.Consumer, "streams", len(f.streams))

	// [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(f.streams)*2)
	for i, s := range f.streams {
		args[i] = s
		args[len(f.streams)+i] = ">"
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		results, err := f.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    f.cfg.Group,
			Consumer: f.cfg.Consumer,
			Streams:  args,
			Count:    f.cfg.Count,
			Block:    f.cfg.Block,
		}).Result()
		if err != nil {
			if err == goredis.Nil {
				r.reset()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}
		r.reset()

		for _, stream := range results {
			for _, msg := range stream.Messages {
				if err := f.deliver(ctx, stream.Stream, msg, out); err != nil {
					return nil
				}
			}
		}
	}
}

// deliver forwards one message. Undecodable messages are acknowledged so a
// poison message is not redelivered. It fails only on cancellation.
func (f *RedisStreamFeed) deliver(ctx context.Context, stream string, msg goredis.XMessage, out chan<- model.CandleEvent) error {
	sub, ok := f.byStream[stream]
	if !ok {
		sub, ok = ParseStreamName(stream)
	}
	data, isStr := msg.Values["data"].(string)
	if !ok || !isStr {
		f.badMessage(ctx, stream, msg.ID, fmt.Errorf("message %s has no data field", msg.ID))
		return nil
	}
	c, err := DecodeCandle([]byte(data))
	if err != nil {
		f.badMessage(ctx, stream, msg.ID, err)
		return nil
	}

	select {
	case out <- model.CandleEvent{Pair: sub.Pair, Timeframe: sub.Timeframe, Candle: c}:
	case <-ctx.Done():
		return ctx.Err()
	}
	f.client.XAck(ctx, stream, f.cfg.Group, msg.ID)
	return nil
}

func (f *RedisStreamFeed) badMessage(ctx context.Context, stream, id string, err error) {
	f.log.Warn("dropping undecodable message", "stream", stream, "id", id, "error", err)
	f.hooks.decodeError(err)
	f.client.XAck(ctx, stream, f.cfg.Group, id)
}
