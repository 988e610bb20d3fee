package pulse

import "sync/atomic"

// Ring is the single-producer/single-consumer pulse queue between the
// acquisition loop and the consumer. The write index is owned by the
// producer and the read index by the consumer; no lock guards the
// boundary. A slot's payload is completely written before the write index
// is published, so the consumer never observes a partial record, and the
// producer never reuses a slot the consumer has not released.
type Ring struct {
	mask  uint64
	slots []Record

	wr atomic.Uint64 // producer-owned, published after the slot payload
	rd atomic.Uint64 // consumer-owned, advanced on release
}

// NewRing creates a ring of at least capacity slots, rounded up to the
// next power of two so index arithmetic reduces to masking.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring{
		mask:  uint64(n - 1),
		slots: make([]Record, n),
	}
}

// Cap reports the slot count.
func (r *Ring) Cap() int { return len(r.slots) }

// Unread reports how many published records await the consumer.
func (r *Ring) Unread() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Reserve returns the next free slot for the producer to fill, or nil
// when the consumer has not released enough slots. The slot stays
// invisible to the consumer until Publish.
func (r *Ring) Reserve() *Record {
	wr := r.wr.Load()
	if wr-r.rd.Load() >= uint64(len(r.slots)) {
		return nil
	}
	return &r.slots[wr&r.mask]
}

// Publish makes the slot returned by the last Reserve visible to the
// consumer. Producer-side only.
func (r *Ring) Publish() {
	r.wr.Add(1)
}

// Peek returns a view of up to max published records starting at the read
// index, truncated at the ring's wrap boundary so the view is always
// contiguous. The view stays valid until Release. Consumer-side only.
func (r *Ring) Peek(max int) []Record {
	avail := int(r.wr.Load() - r.rd.Load())
	if avail == 0 || max <= 0 {
		return nil
	}
	if avail < max {
		max = avail
	}
	at := int(r.rd.Load() & r.mask)
	if run := len(r.slots) - at; run < max {
		max = run
	}
	return r.slots[at : at+max]
}

// Release returns n consumed slots to the producer. Consumer-side only.
func (r *Ring) Release(n int) {
	if n > 0 {
		r.rd.Add(uint64(n))
	}
}
