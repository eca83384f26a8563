package ringbuf

import "testing"

func TestRing_BasicPush(t *testing.T) {
	r := New[int](4)

	for i := 1; i <= 3; i++ {
		if _, ev := r.Push(i); ev {
			t.Fatalf("push %d should not evict", i)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	if r.Full() {
		t.Fatal("ring should not be full")
	}
	if got := r.At(0); got != 1 {
		t.Fatalf("At(0)=%d, want 1", got)
	}
	if got, ok := r.Last(); !ok || got != 3 {
		t.Fatalf("Last()=%d,%v want 3,true", got, ok)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	old, ev := r.Push(4)
	if !ev || old != 1 {
		t.Fatalf("Push(4) evicted=%v old=%d, want true 1", ev, old)
	}
	if !r.Full() {
		t.Fatal("ring should stay full after eviction")
	}

	want := []int{2, 3, 4}
	for i, w := range want {
		if got := r.At(i); got != w {
			t.Errorf("At(%d)=%d, want %d", i, got, w)
		}
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Push many rounds; the ring must always hold the last four values in order.
	for i := 0; i < 50; i++ {
		r.Push(i)
		if i < 3 {
			continue
		}
		for j := 0; j < 4; j++ {
			if got := r.At(j); got != i-3+j {
				t.Fatalf("after push %d: At(%d)=%d, want %d", i, j, got, i-3+j)
			}
		}
	}
}

func TestRing_Tail(t *testing.T) {
	r := New[int](5)
	if r.Tail(3) != nil {
		t.Fatal("Tail on empty ring should be nil")
	}
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}

	got := r.Tail(2)
	if len(got) != 2 || got[0] != 6 || got[1] != 7 {
		t.Fatalf("Tail(2)=%v, want [6 7]", got)
	}
	if got := r.Tail(100); len(got) != 5 || got[0] != 3 {
		t.Fatalf("Tail(100)=%v, want [3 4 5 6 7]", got)
	}
	if r.Tail(0) != nil || r.Tail(-1) != nil {
		t.Fatal("Tail(<=0) should be nil")
	}
}

func TestRing_ClampsCapacity(t *testing.T) {
	for _, c := range []int{0, -5} {
		r := New[float64](c)
		if r.Cap() != 1 {
			t.Fatalf("New(%d).Cap()=%d, want 1", c, r.Cap())
		}
		r.Push(1)
		r.Push(2)
		if v, _ := r.Last(); v != 2 || r.Len() != 1 {
			t.Fatalf("New(%d): last=%v len=%d", c, v, r.Len())
		}
	}
}

func TestRing_Reset(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Reset()

	if r.Len() != 0 || r.Full() {
		t.Fatalf("after Reset len=%d full=%v", r.Len(), r.Full())
	}
	if _, ok := r.Last(); ok {
		t.Fatal("Last on reset ring should be false")
	}

	sum := 0
	r.Push(10)
	r.Do(func(v int) { sum += v })
	if sum != 10 {
		t.Fatalf("Do sum=%d, want 10", sum)
	}
}
