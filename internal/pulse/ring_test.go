package pulse

import (
	"testing"

	"github.com/lingx107/digdar/internal/adc"
)

func publish(t *testing.T, r *Ring, trig uint64) {
	t.Helper()
	slot := r.Reserve()
	if slot == nil {
		t.Fatalf("Reserve returned nil with %d unread of %d", r.Unread(), r.Cap())
	}
	slot.Meta = Metadata{TrigCount: trig}
	r.Publish()
}

func TestRingCapacityRounding(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 10: 16, 1000: 1024, 1024: 1024}
	for req, want := range cases {
		if got := NewRing(req).Cap(); got != want {
			t.Errorf("NewRing(%d).Cap() = %d, want %d", req, got, want)
		}
	}
}

// Test records come out in publish order.
func TestRingOrdering(t *testing.T) {
	r := NewRing(8)
	for i := uint64(1); i <= 3; i++ {
		publish(t, r, i)
	}
	if r.Unread() != 3 {
		t.Fatalf("Unread = %d, want 3", r.Unread())
	}

	view := r.Peek(10)
	if len(view) != 3 {
		t.Fatalf("Peek returned %d records, want 3", len(view))
	}
	for i, rec := range view {
		if rec.Meta.TrigCount != uint64(i+1) {
			t.Fatalf("record %d TrigCount = %d, want %d", i, rec.Meta.TrigCount, i+1)
		}
	}
}

// Test the producer is refused a slot while the ring is full and gets
// one back per release.
func TestRingFullReserve(t *testing.T) {
	r := NewRing(2)
	publish(t, r, 1)
	publish(t, r, 2)

	if slot := r.Reserve(); slot != nil {
		t.Fatal("Reserve succeeded on a full ring")
	}
	r.Release(1)
	if slot := r.Reserve(); slot == nil {
		t.Fatal("Reserve failed after a release")
	}
}

// Test Peek stays contiguous: a view never crosses the wrap boundary,
// the remainder arrives after the next release.
func TestRingPeekWrapTruncation(t *testing.T) {
	r := NewRing(4)
	for i := uint64(1); i <= 3; i++ {
		publish(t, r, i)
	}
	r.Release(3)
	for i := uint64(4); i <= 7; i++ {
		publish(t, r, i)
	}

	// Read index sits at slot 3; only one slot remains before the wrap.
	view := r.Peek(4)
	if len(view) != 1 {
		t.Fatalf("Peek = %d records, want 1 (wrap truncation)", len(view))
	}
	if view[0].Meta.TrigCount != 4 {
		t.Fatalf("TrigCount = %d, want 4", view[0].Meta.TrigCount)
	}
	r.Release(1)

	view = r.Peek(4)
	if len(view) != 3 {
		t.Fatalf("Peek after wrap = %d records, want 3", len(view))
	}
	for i, rec := range view {
		if rec.Meta.TrigCount != uint64(5+i) {
			t.Fatalf("record %d TrigCount = %d, want %d", i, rec.Meta.TrigCount, 5+i)
		}
	}
}

func TestRingPeekEmpty(t *testing.T) {
	r := NewRing(4)
	if view := r.Peek(4); view != nil {
		t.Fatalf("Peek on empty ring = %v, want nil", view)
	}
	publish(t, r, 1)
	if view := r.Peek(0); view != nil {
		t.Fatalf("Peek(0) = %v, want nil", view)
	}
}

// Test released slots keep their sample storage so steady-state
// operation stops allocating.
func TestRingSlotStorageReuse(t *testing.T) {
	r := NewRing(1)
	slot := r.Reserve()
	slot.Samples = make([]adc.Sample, 16)
	r.Publish()
	r.Release(1)

	again := r.Reserve()
	if again != slot {
		t.Fatal("Reserve returned a different slot after wrap")
	}
	if cap(again.Samples) != 16 {
		t.Fatalf("slot sample capacity = %d, want 16 preserved", cap(again.Samples))
	}
}

func TestRingReleaseIgnoresNonPositive(t *testing.T) {
	r := NewRing(2)
	publish(t, r, 1)
	r.Release(0)
	r.Release(-3)
	if r.Unread() != 1 {
		t.Fatalf("Unread = %d, want 1", r.Unread())
	}
}
