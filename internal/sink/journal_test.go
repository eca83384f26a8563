package sink

import (
	"context"
	"path/filepath"
	"testing"

	"mtf-screener/internal/model"
)

func TestJournal_RecentNewestFirst(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()

	empty, err := j.Recent(ctx, 10)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty journal: %v, %v", empty, err)
	}

	s := testSignal()
	for i := range 5 {
		s.Timestamp = int64(1000 * (i + 1))
		s.Score = float64(60 + i)
		if err := j.EmitSignal(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	if got[0].Timestamp != 5000 || got[2].Timestamp != 3000 {
		t.Errorf("order: %d..%d, want 5000..3000", got[0].Timestamp, got[2].Timestamp)
	}
	if got[0].Signal != model.StrongBuy || got[0].Strength != "strong" || got[0].Score != 64 {
		t.Errorf("row=%+v", got[0])
	}
}

func TestJournal_AlignedRoundTrip(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()

	a := testAligned()
	if err := j.EmitAligned(ctx, a); err != nil {
		t.Fatal(err)
	}
	a.Pair = "ETHUSDTM"
	a.Direction = model.DirSell
	_ = j.EmitAligned(ctx, a)

	got, err := j.RecentAligned(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Pair != "ETHUSDTM" || got[1].Pair != "XBTUSDTM" {
		t.Fatalf("rows=%+v", got)
	}
	if got[1] != testAligned() {
		t.Errorf("round trip:\n got %+v\nwant %+v", got[1], testAligned())
	}
	if err := j.DB().PingContext(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}
