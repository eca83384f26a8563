package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mtf-screener/internal/model"
)

// candleServer accepts subscriptions and replays frames. The first
// connection is dropped after its frames, the second stays open.
type candleServer struct {
	mu    sync.Mutex
	conns int
	subs  []string
}

func (s *candleServer) handler(t *testing.T) http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		s.mu.Lock()
		s.conns++
		n := s.conns
		s.mu.Unlock()

		for range 2 {
			var m wsMessage
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			s.mu.Lock()
			s.subs = append(s.subs, m.Type+":"+m.Pair+":"+m.Timeframe)
			s.mu.Unlock()
		}

		frames := []string{
			`{"type":"candle","pair":"XBTUSDTM","timeframe":"5m","candle":` + goodCandle + `}`,
			`{"type":"candle","pair":"DOGEUSDTM","timeframe":"5m","candle":` + goodCandle + `}`,
			`{"type":"candle","pair":"XBTUSDTM","timeframe":"15m","candle":{"timestamp":1,"open":"bad"}}`,
			`not json`,
			`{"type":"heartbeat"}`,
		}
		if n > 1 {
			frames = []string{`{"type":"candle","pair":"XBTUSDTM","timeframe":"15m","candle":` + goodCandle + `}`}
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSFeed_SubscribesAndReconnects(t *testing.T) {
	cs := &candleServer{}
	srv := httptest.NewServer(cs.handler(t))
	defer srv.Close()

	var mu sync.Mutex
	decodeErrs := 0
	hooks := Hooks{OnDecodeError: func(error) { mu.Lock(); decodeErrs++; mu.Unlock() }}
	f, err := NewWSFeed(WSConfig{
		URL:     wsURL(srv),
		Backoff: Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 5},
	}, Subscriptions([]string{"XBTUSDTM"}, "5m", "15m"), hooks)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.CandleEvent, 4)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, out) }()

	var got []model.CandleEvent
	for len(got) < 2 {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d events, want 2", len(got))
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got[0].Timeframe != "5m" || got[1].Timeframe != "15m" || got[0].Pair != "XBTUSDTM" {
		t.Errorf("events=%+v", got)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conns != 2 {
		t.Errorf("connections=%d, want 2", cs.conns)
	}
	if len(cs.subs) != 4 || cs.subs[0] != "subscribe:XBTUSDTM:5m" {
		t.Errorf("subscriptions=%v", cs.subs)
	}
	mu.Lock()
	defer mu.Unlock()
	if decodeErrs != 2 {
		t.Errorf("decodeErrs=%d, want 2", decodeErrs)
	}
}

func TestWSFeed_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	f, err := NewWSFeed(WSConfig{URL: url, Backoff: Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 2}},
		Subscriptions([]string{"XBTUSDTM"}, "5m"), Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background(), make(chan model.CandleEvent)); !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("err=%v, want ErrRetriesExhausted", err)
	}
}

func TestNewWSFeed_RejectsBadURL(t *testing.T) {
	if _, err := NewWSFeed(WSConfig{URL: "http://example.com/ws"}, nil, Hooks{}); err == nil {
		t.Error("http scheme accepted")
	}
}
