package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"mtf-screener/internal/model"
)

// wsMessage is the frame format in both directions. Clients send
// {"type":"subscribe","pair":..,"timeframe":..}; the server pushes
// {"type":"candle","pair":..,"timeframe":..,"candle":{..}}.
type wsMessage struct {
	Type      string          `json:"type"`
	Pair      string          `json:"pair"`
	Timeframe string          `json:"timeframe"`
	Candle    json.RawMessage `json:"candle,omitempty"`
}

// WSConfig configures the websocket feed.
type WSConfig struct {
	URL     string
	Backoff Backoff
}

// WSFeed subscribes to closed candles over a websocket and reconnects with
// backoff on disconnect.
type WSFeed struct {
	cfg    WSConfig
	subs   []Subscription
	wanted map[string]bool
	hooks  Hooks
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewWSFeed validates the URL and creates the feed.
func NewWSFeed(cfg WSConfig, subs []Subscription, hooks Hooks) (*WSFeed, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket feed url %q: scheme must be ws or wss", cfg.URL)
	}
	f := &WSFeed{
		cfg:    cfg,
		subs:   subs,
		wanted: make(map[string]bool, len(subs)),
		hooks:  hooks,
		dialer: websocket.DefaultDialer,
		log:    slog.Default().With("component", "feed", "feed", "websocket"),
	}
	for _, s := range subs {
		f.wanted[model.Key(s.Pair, s.Timeframe)] = true
	}
	return f, nil
}

// Run streams candles until ctx is cancelled or reconnects are exhausted.
func (f *WSFeed) Run(ctx context.Context, out chan<- model.CandleEvent) error {
	return runWithRetry(ctx, "websocket", f.log, f.cfg.Backoff, f.hooks, func(ctx context.Context, r *retrier) error {
		return f.runOnce(ctx, out, r)
	})
}

// runOnce makes a single connection and reads until disconnect or cancel.
func (f *WSFeed) runOnce(ctx context.Context, out chan<- model.CandleEvent, r *retrier) error {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, s := range f.subs {
		sub := wsMessage{Type: "subscribe", Pair: s.Pair, Timeframe: s.Timeframe}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", model.Key(s.Pair, s.Timeframe), err)
		}
	}
	r.reset()
	f.hooks.connect(true)
	f.log.Info("connected", "url", f.cfg.URL, "subscriptions", len(f.subs))

	// Closes the connection when ctx is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.hooks.decodeError(err)
			f.log.Warn("parse error", "error", err)
			continue
		}
		if msg.Type != "candle" || !f.wanted[model.Key(msg.Pair, msg.Timeframe)] {
			continue
		}
		c, err := DecodeCandle(msg.Candle)
		if err != nil {
			f.hooks.decodeError(err)
			f.log.Warn("bad candle", "pair", msg.Pair, "timeframe", msg.Timeframe, "error", err)
			continue
		}

		select {
		case out <- model.CandleEvent{Pair: msg.Pair, Timeframe: msg.Timeframe, Candle: c}:
		case <-ctx.Done():
			return nil
		}
	}
}
