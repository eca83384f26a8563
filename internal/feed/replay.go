package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"mtf-screener/internal/model"
)

// maxReplayGap caps a single simulated gap between candles.
const maxReplayGap = 5 * time.Second

// replayLine is one JSONL record: {"pair":..,"timeframe":..,"candle":{..}}.
type replayLine struct {
	Pair      string          `json:"pair"`
	Timeframe string          `json:"timeframe"`
	Candle    json.RawMessage `json:"candle"`
}

// ReplayFeed emits historical candles read from a JSONL file in timestamp
// order, optionally pacing them. Speed 1 is real time, 100 is 100x, 0 is
// as fast as possible.
type ReplayFeed struct {
	path  string
	speed float64
	hooks Hooks
	log   *slog.Logger
}

// NewReplayFeed creates a feed over the file at path.
func NewReplayFeed(path string, speed float64, hooks Hooks) *ReplayFeed {
	return &ReplayFeed{
		path:  path,
		speed: speed,
		hooks: hooks,
		log:   slog.Default().With("component", "feed", "feed", "replay"),
	}
}

func (f *ReplayFeed) Run(ctx context.Context, out chan<- model.CandleEvent) error {
	fh, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer fh.Close()

	events, err := ReadEvents(fh, f.hooks.decodeError)
	if err != nil {
		return err
	}
	f.log.Info("replay loaded", "candles", len(events), "speed", f.speed)
	f.hooks.connect(true)
	defer f.hooks.connect(false)

	var prevClose int64
	for i, ev := range events {
		closeMs := CloseTime(ev)
		if f.speed > 0 && i > 0 {
			if gap := closeMs - prevClose; gap > 0 {
				wait := min(time.Duration(float64(gap)*float64(time.Millisecond)/f.speed), maxReplayGap)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
		prevClose = closeMs

		select {
		case out <- ev:
		case <-ctx.Done():
			f.log.Info("replay cancelled", "emitted", i)
			return nil
		}
	}
	f.log.Info("replay completed", "emitted", len(events))
	return nil
}

// ReadEvents parses JSONL candle events and sorts them by close time, the
// moment a live feed would deliver them, keeping file order for ties. Malformed lines are skipped and
// reported to onBad when it is set.
func ReadEvents(r io.Reader, onBad func(error)) ([]model.CandleEvent, error) {
	var events []model.CandleEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var line replayLine
		err := json.Unmarshal(sc.Bytes(), &line)
		if err == nil && (line.Pair == "" || line.Timeframe == "") {
			err = fmt.Errorf("missing pair or timeframe")
		}
		var c model.Candle
		if err == nil {
			c, err = DecodeCandle(line.Candle)
		}
		if err != nil {
			if onBad != nil {
				onBad(fmt.Errorf("line %d: %w", n, err))
			}
			continue
		}
		events = append(events, model.CandleEvent{Pair: line.Pair, Timeframe: line.Timeframe, Candle: c})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay read: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return CloseTime(events[i]) < CloseTime(events[j]) })
	return events, nil
}
