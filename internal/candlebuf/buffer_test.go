package candlebuf

import (
	"testing"

	"ethtrend/internal/model"
)

func mkCandle(i int64) model.Candle {
	return model.Candle{
		OpenTime: i * 60_000,
		Open:     100,
		High:     110,
		Low:      90,
		Close:    105,
		Volume:   1,
		Closed:   true,
	}
}

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := New(10)

	for i := int64(1); i <= 4; i++ {
		b.Append(mkCandle(i))
	}

	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}

	snap := b.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Snapshot len = %d, want 4", len(snap))
	}
	for i, c := range snap {
		want := int64(i+1) * 60_000
		if c.OpenTime != want {
			t.Errorf("snap[%d].OpenTime = %d, want %d", i, c.OpenTime, want)
		}
	}
}

func TestBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := New(5)

	// N+k appends: buffer must hold exactly the last N in arrival order.
	for i := int64(1); i <= 8; i++ {
		b.Append(mkCandle(i))
	}

	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}

	snap := b.Snapshot()
	if snap[0].OpenTime != 4*60_000 {
		t.Errorf("oldest OpenTime = %d, want %d", snap[0].OpenTime, 4*60_000)
	}
	if snap[4].OpenTime != 8*60_000 {
		t.Errorf("newest OpenTime = %d, want %d", snap[4].OpenTime, 8*60_000)
	}
}

func TestBuffer_SnapshotDoesNotAliasBuffer(t *testing.T) {
	b := New(3)
	b.Append(mkCandle(1))

	snap := b.Snapshot()

	// Keep appending past capacity; the earlier snapshot must be unchanged.
	for i := int64(2); i <= 6; i++ {
		b.Append(mkCandle(i))
	}

	if len(snap) != 1 || snap[0].OpenTime != 60_000 {
		t.Fatalf("snapshot mutated by later appends: %+v", snap)
	}
}

func TestBuffer_Last(t *testing.T) {
	b := New(3)

	if _, ok := b.Last(); ok {
		t.Fatal("Last() on empty buffer should report false")
	}

	b.Append(mkCandle(1))
	b.Append(mkCandle(2))

	last, ok := b.Last()
	if !ok || last.OpenTime != 2*60_000 {
		t.Fatalf("Last() = %+v ok=%v, want OpenTime=%d", last, ok, 2*60_000)
	}
}
