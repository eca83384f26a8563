package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"mtf-screener/internal/model"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
)

// RedisClient is the subset of *goredis.Client the sink uses.
type RedisClient interface {
	Pipeline() goredis.Pipeliner
}

// cmdQueue is the part of goredis.Pipeliner that queueSignal and
// queueAligned write to.
type cmdQueue interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// RedisConfig configures key retention.
type RedisConfig struct {
	StreamMaxLen int64
	LatestTTL    time.Duration
}

// Redis writes each event with one pipeline: XADD to a capped stream, SET
// of the latest value, and PUBLISH for live subscribers.
//
// Keys:
//
//	signal:{tf}:{pair}         stream     pub:signal:{tf}:{pair}
//	signal:{tf}:latest:{pair}  latest
//	aligned:{pair}             stream     pub:aligned:{pair}
//	aligned:latest:{pair}      latest
type Redis struct {
	client RedisClient
	cfg    RedisConfig
}

// NewRedis creates the sink.
func NewRedis(client RedisClient, cfg RedisConfig) *Redis {
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	return &Redis{client: client, cfg: cfg}
}

func (r *Redis) EmitSignal(ctx context.Context, s model.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis sink: marshal signal: %w", err)
	}
	pipe := r.client.Pipeline()
	r.queueSignal(ctx, pipe, s, string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sink: signal pipeline: %w", err)
	}
	return nil
}

func (r *Redis) EmitAligned(ctx context.Context, a model.AlignedSignal) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redis sink: marshal aligned: %w", err)
	}
	pipe := r.client.Pipeline()
	r.queueAligned(ctx, pipe, a, string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sink: aligned pipeline: %w", err)
	}
	return nil
}

func (r *Redis) queueSignal(ctx context.Context, q cmdQueue, s model.Signal, data string) {
	q.XAdd(ctx, &goredis.XAddArgs{
		Stream: "signal:" + s.Timeframe + ":" + s.Pair,
		MaxLen: r.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	q.Set(ctx, "signal:"+s.Timeframe+":latest:"+s.Pair, data, r.cfg.LatestTTL)
	q.Publish(ctx, "pub:signal:"+s.Timeframe+":"+s.Pair, data)
}

func (r *Redis) queueAligned(ctx context.Context, q cmdQueue, a model.AlignedSignal, data string) {
	q.XAdd(ctx, &goredis.XAddArgs{
		Stream: "aligned:" + a.Pair,
		MaxLen: r.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	q.Set(ctx, "aligned:latest:"+a.Pair, data, r.cfg.LatestTTL)
	q.Publish(ctx, "pub:aligned:"+a.Pair, data)
}
