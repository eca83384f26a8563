package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"mtf-screener/internal/model"
)

func TestStreamName(t *testing.T) {
	s := Subscription{Pair: "XBTUSDTM", Timeframe: "5m"}
	name := StreamName(s)
	if name != "candle:5m:XBTUSDTM" {
		t.Fatalf("StreamName=%q", name)
	}
	got, ok := ParseStreamName(name)
	if !ok || got != s {
		t.Errorf("ParseStreamName(%q)=%+v,%v", name, got, ok)
	}
	for _, bad := range []string{"candle:5m", "tick:5m:XBT", "candle::XBT", ""} {
		if _, ok := ParseStreamName(bad); ok {
			t.Errorf("ParseStreamName(%q) accepted", bad)
		}
	}
}

func TestSubscriptions(t *testing.T) {
	subs := Subscriptions([]string{"A", "B"}, "5m", "15m")
	if len(subs) != 4 || subs[0] != (Subscription{"A", "5m"}) || subs[3] != (Subscription{"B", "15m"}) {
		t.Errorf("Subscriptions=%v", subs)
	}
}

func TestDecodeCandle(t *testing.T) {
	c, err := DecodeCandle([]byte(`{"timestamp":1700000000000,"open":"42000.5","high":"42100","low":41900.25,"close":"42050.125","volume":"12.5"}`))
	if err != nil {
		t.Fatalf("DecodeCandle: %v", err)
	}
	want := model.Candle{TS: 1700000000000, Open: 42000.5, High: 42100, Low: 41900.25, Close: 42050.125, Volume: 12.5}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}

	if _, err := DecodeCandle([]byte(`{"open":`)); err == nil {
		t.Error("truncated JSON accepted")
	}
	if _, err := DecodeCandle([]byte(`{"timestamp":1,"open":"x"}`)); err == nil {
		t.Error("non-numeric price accepted")
	}
	_, err = DecodeCandle([]byte(`{"timestamp":1,"open":1,"high":1,"low":1,"close":1,"volume":-3}`))
	if !errors.Is(err, model.ErrMalformedCandle) {
		t.Errorf("negative volume: err=%v, want ErrMalformedCandle", err)
	}
}

func TestBackoff(t *testing.T) {
	r := Backoff{Initial: time.Second, Max: 4 * time.Second, MaxAttempts: 5}.retrier()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		d, ok := r.next()
		if !ok || d != w {
			t.Fatalf("attempt %d: got %v,%v want %v", i+1, d, ok, w)
		}
	}
	if _, ok := r.next(); ok {
		t.Error("retry allowed past MaxAttempts")
	}
	r.reset()
	if d, ok := r.next(); !ok || d != time.Second {
		t.Errorf("after reset: %v,%v", d, ok)
	}
}

func TestBackoff_Unbounded(t *testing.T) {
	r := Backoff{Initial: time.Millisecond, Max: time.Second}.retrier()
	var d time.Duration
	for range 100 {
		var ok bool
		if d, ok = r.next(); !ok {
			t.Fatal("unbounded backoff gave up")
		}
	}
	if d != time.Second {
		t.Errorf("delay=%v, want capped at 1s", d)
	}
}

func TestSliceFeed(t *testing.T) {
	evs := SliceFeed{
		{Pair: "A", Timeframe: "5m", Candle: model.Candle{TS: 1}},
		{Pair: "A", Timeframe: "5m", Candle: model.Candle{TS: 2}},
	}
	out := make(chan model.CandleEvent, 2)
	if err := evs.Run(context.Background(), out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || (<-out).TS != 1 {
		t.Error("events not replayed in order")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := evs.Run(ctx, make(chan model.CandleEvent)); err != nil {
		t.Errorf("cancelled Run: %v", err)
	}
}
