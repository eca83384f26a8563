// Package config loads the screener configuration from a YAML file with
// environment overrides. Missing values come from struct `default` tags;
// the result is checked with `validate` tags plus a few cross-field rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"mtf-screener/internal/indicator"
)

// Config holds all service configuration.
type Config struct {
	Service  string   `yaml:"service" default:"screener"`
	LogLevel string   `yaml:"log_level" default:"info" validate:"oneof=debug info warn warning error"`
	Pairs    []string `yaml:"pairs" default:"[\"XBTUSDTM\",\"ETHUSDTM\",\"SOLUSDTM\"]" validate:"required,min=1,dive,required"`
	Profile  string   `yaml:"profile" default:"default"`

	Screener   ScreenerConfig   `yaml:"screener"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	Feed       FeedConfig       `yaml:"feed"`
	Redis      RedisConfig      `yaml:"redis"`
	Sinks      SinksConfig      `yaml:"sinks"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// ScreenerConfig configures the engine and aligner.
type ScreenerConfig struct {
	Primary          string        `yaml:"primary" default:"5m" validate:"required"`
	Secondary        string        `yaml:"secondary" default:"15m" validate:"required,nefield=Primary"`
	RequireAlignment bool          `yaml:"require_alignment" default:"true"`
	MinConfidence    float64       `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	AlignWindow      time.Duration `yaml:"align_window" default:"60s" validate:"gt=0"`
	StaleAfter       time.Duration `yaml:"stale_after" default:"5m" validate:"gt=0"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" default:"1m" validate:"gt=0"`
	Workers          int           `yaml:"workers" default:"4" validate:"gte=1"`
	QueueSize        int           `yaml:"queue_size" default:"256" validate:"gte=1"`
}

// IndicatorsConfig selects the indicators computed for every pair and
// timeframe. Params are not range-checked.
type IndicatorsConfig struct {
	Enabled []string         `yaml:"enabled" default:"[\"rsi\",\"macd\",\"williamsR\",\"ao\",\"kdj\",\"obv\"]" validate:"required,min=1,dive,oneof=rsi macd williamsR ao kdj obv"`
	Params  indicator.Params `yaml:"params"`
}

// Kinds converts Enabled to indicator kinds.
func (c IndicatorsConfig) Kinds() []indicator.Kind {
	out := make([]indicator.Kind, len(c.Enabled))
	for i, s := range c.Enabled {
		out[i] = indicator.Kind(s)
	}
	return out
}

// FeedConfig selects the candle source.
type FeedConfig struct {
	Type     string        `yaml:"type" default:"redis" validate:"oneof=redis websocket replay"`
	Group    string        `yaml:"group" default:"screener"`
	Consumer string        `yaml:"consumer" default:"screener-1"`
	Count    int64         `yaml:"count" default:"100" validate:"gte=1"`
	Block    time.Duration `yaml:"block" default:"2s" validate:"gt=0"`
	WSURL    string        `yaml:"ws_url" validate:"required_if=Type websocket"`
	Backoff  BackoffConfig `yaml:"backoff"`

	// Derive lists timeframes built from the primary timeframe's candles
	// instead of being read from the source.
	Derive []string `yaml:"derive" validate:"dive,required"`

	// Replay reads JSONL candle events; Speed 0 replays as fast as possible.
	ReplayPath string  `yaml:"replay_path" validate:"required_if=Type replay"`
	Speed      float64 `yaml:"speed" validate:"gte=0"`
}

// BackoffConfig is the reconnect policy. MaxAttempts 0 retries forever.
type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial" default:"5s" validate:"gt=0"`
	Max         time.Duration `yaml:"max" default:"60s" validate:"gtefield=Initial"`
	MaxAttempts int           `yaml:"max_attempts" default:"10" validate:"gte=0"`
}

// RedisConfig is shared by the Redis feed and the Redis sink.
type RedisConfig struct {
	Addr         string        `yaml:"addr" default:"localhost:6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	StreamMaxLen int64         `yaml:"stream_max_len" default:"10000" validate:"gte=1"`
	LatestTTL    time.Duration `yaml:"latest_ttl" default:"30m" validate:"gt=0"`
}

// Sink kinds.
const (
	SinkConsole   = "console"
	SinkLog       = "log"
	SinkFile      = "file"
	SinkJournal   = "journal"
	SinkRedis     = "redis"
	SinkWebSocket = "websocket"
	SinkWebhook   = "webhook"
	SinkTelegram  = "telegram"
	SinkKafka     = "kafka"
)

// SinksConfig selects and configures signal outputs.
type SinksConfig struct {
	Enabled   []string `yaml:"enabled" default:"[\"console\",\"file\",\"websocket\"]" validate:"dive,oneof=console log file journal redis websocket webhook telegram kafka"`
	QueueSize int      `yaml:"queue_size" default:"1024" validate:"gte=1"`

	Console struct {
		Color bool `yaml:"color" default:"true"`
	} `yaml:"console"`
	File struct {
		Path string `yaml:"path" default:"./logs/screener-signals.jsonl"`
	} `yaml:"file"`
	Journal struct {
		Path string `yaml:"path" default:"data/signals.db"`
	} `yaml:"journal"`
	Webhook struct {
		URL        string `yaml:"url" validate:"omitempty,url"`
		AllSignals bool   `yaml:"all_signals"`
	} `yaml:"webhook"`
	Telegram struct {
		Token      string `yaml:"token"`
		ChatID     int64  `yaml:"chat_id"`
		AllSignals bool   `yaml:"all_signals"`
	} `yaml:"telegram"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		SignalTopic  string        `yaml:"signal_topic" default:"screener.signals"`
		AlignedTopic string        `yaml:"aligned_topic" default:"screener.aligned"`
		RequiredAcks int           `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms" validate:"gt=0"`
	} `yaml:"kafka"`
	Breaker struct {
		MaxFailures  int           `yaml:"max_failures" default:"5" validate:"gte=1"`
		ResetTimeout time.Duration `yaml:"reset_timeout" default:"30s" validate:"gt=0"`
	} `yaml:"breaker"`
}

// Has reports whether kind is enabled.
func (c SinksConfig) Has(kind string) bool {
	return slices.Contains(c.Enabled, kind)
}

// HTTPConfig configures the health, metrics and websocket listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":3002"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
	HealthInterval  time.Duration `yaml:"health_interval" default:"15s" validate:"gt=0"`
}

var validate = validator.New()

// Default returns the configuration with every default applied.
func Default() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Profile = getEnv("SCREENER_PROFILE", c.Profile)
	c.Screener.Primary = getEnv("PRIMARY_TIMEFRAME", c.Screener.Primary)
	c.Screener.Secondary = getEnv("SECONDARY_TIMEFRAME", c.Screener.Secondary)
	c.Feed.Type = getEnv("FEED_TYPE", c.Feed.Type)
	c.Feed.WSURL = getEnv("FEED_WS_URL", c.Feed.WSURL)
	c.Feed.ReplayPath = getEnv("FEED_REPLAY_PATH", c.Feed.ReplayPath)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Sinks.File.Path = getEnv("SIGNAL_FILE", c.Sinks.File.Path)
	c.Sinks.Journal.Path = getEnv("SQLITE_PATH", c.Sinks.Journal.Path)
	c.Sinks.Webhook.URL = getEnv("WEBHOOK_URL", c.Sinks.Webhook.URL)
	c.Sinks.Telegram.Token = getEnv("TELEGRAM_TOKEN", c.Sinks.Telegram.Token)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	if v := os.Getenv("SCREENER_PAIRS"); v != "" {
		c.Pairs = splitList(v)
	}
	if v := os.Getenv("SINKS"); v != "" {
		c.Sinks.Enabled = splitList(v)
	}
	if v := os.Getenv("FEED_DERIVE"); v != "" {
		c.Feed.Derive = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Sinks.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Sinks.Telegram.ChatID = id
	}
	return nil
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errs := make([]error, 0, len(verrs))
		for _, e := range verrs {
			errs = append(errs, fieldError(e))
		}
		return errors.Join(errs...)
	}

	var errs []error
	if c.Sinks.Has(SinkWebhook) && c.Sinks.Webhook.URL == "" {
		errs = append(errs, errors.New("sinks.webhook.url is required when the webhook sink is enabled"))
	}
	if c.Sinks.Has(SinkTelegram) && (c.Sinks.Telegram.Token == "" || c.Sinks.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("sinks.telegram.token and chat_id are required when the telegram sink is enabled"))
	}
	if c.Sinks.Has(SinkKafka) && len(c.Sinks.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("sinks.kafka.brokers is required when the kafka sink is enabled"))
	}
	if slices.Contains(c.Feed.Derive, c.Screener.Primary) {
		errs = append(errs, fmt.Errorf("feed.derive: primary timeframe %q cannot be derived", c.Screener.Primary))
	}
	if dup := firstDuplicate(c.Pairs); dup != "" {
		errs = append(errs, fmt.Errorf("pairs: %q listed twice", dup))
	}
	if dup := firstDuplicate(c.Indicators.Enabled); dup != "" {
		errs = append(errs, fmt.Errorf("indicators.enabled: %q listed twice", dup))
	}
	return errors.Join(errs...)
}

func fieldError(e validator.FieldError) error {
	// Namespace is "Config.Screener.Secondary"; drop the root.
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	if e.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (value %v)", field, e.Tag(), e.Param(), e.Value())
	}
	return fmt.Errorf("%s: failed %s", field, e.Tag())
}

func firstDuplicate(xs []string) string {
	seen := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			return x
		}
		seen[x] = struct{}{}
	}
	return ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
