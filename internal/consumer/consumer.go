// Package consumer drains captured pulses from the ring in fixed-size
// chunks and hands them to a sink.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/lingx107/digdar/internal/pulse"
	"github.com/lingx107/digdar/internal/sector"
	"github.com/lingx107/digdar/internal/sink"
)

// DefaultBackoff is the wait between polls when no full chunk is ready.
const DefaultBackoff = 20 * time.Microsecond

// StatsSink receives consumer counters.
type StatsSink interface {
	AddChunk()
	AddSectorDrop()
}

type noopStats struct{}

func (noopStats) AddChunk()      {}
func (noopStats) AddSectorDrop() {}

// Config controls chunking and blanking.
type Config struct {
	ChunkSize int            // pulses per sink delivery
	Backoff   time.Duration  // wait between empty polls
	Filter    *sector.Filter // azimuth blanking, may be nil
	Stats     StatsSink
}

// Consumer owns the read side of the pulse ring.
type Consumer struct {
	ring  *pulse.Ring
	sink  sink.Sink
	cfg   Config
	stats StatsSink
	keep  []pulse.Record
}

func New(ring *pulse.Ring, s sink.Sink, cfg Config) *Consumer {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	return &Consumer{ring: ring, sink: s, cfg: cfg, stats: cfg.Stats}
}

// claim returns the next chunk, or nil when fewer than ChunkSize pulses
// are unread. The returned slice may be shorter than ChunkSize when the
// ring wraps; the remainder is picked up on the next claim.
func (c *Consumer) claim() []pulse.Record {
	if c.ring.Unread() < c.cfg.ChunkSize {
		return nil
	}
	return c.ring.Peek(c.cfg.ChunkSize)
}

// deliver filters blanked sectors out of the chunk and writes the rest
// to the sink. The chunk's records reference ring slots, so this must
// complete before the slots are released.
func (c *Consumer) deliver(chunk []pulse.Record) error {
	out := chunk
	if c.cfg.Filter != nil && c.cfg.Filter.Len() > 0 {
		c.keep = c.keep[:0]
		for i := range chunk {
			if c.cfg.Filter.Drop(chunk[i].Meta.Azimuth()) {
				c.stats.AddSectorDrop()
				continue
			}
			c.keep = append(c.keep, chunk[i])
		}
		out = c.keep
	}

	if len(out) > 0 {
		if err := c.sink.WriteChunk(out); err != nil {
			return fmt.Errorf("failed to deliver chunk: %w", err)
		}
	}
	c.stats.AddChunk()
	return nil
}

// Run claims chunks until ctx is cancelled, then drains whatever is
// left unread. Sink errors are fatal and abort the loop.
func (c *Consumer) Run(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.Backoff)
	defer timer.Stop()

	for {
		chunk := c.claim()
		if chunk == nil {
			timer.Reset(c.cfg.Backoff)
			select {
			case <-ctx.Done():
				return c.drain()
			case <-timer.C:
			}
			continue
		}

		if err := c.deliver(chunk); err != nil {
			return err
		}
		c.ring.Release(len(chunk))

		select {
		case <-ctx.Done():
			return c.drain()
		default:
		}
	}
}

// drain delivers the pulses that were unread at shutdown, ignoring the
// chunk threshold.
func (c *Consumer) drain() error {
	remaining := c.ring.Unread()
	for remaining > 0 {
		chunk := c.ring.Peek(remaining)
		if len(chunk) == 0 {
			return nil
		}
		if err := c.deliver(chunk); err != nil {
			return err
		}
		c.ring.Release(len(chunk))
		remaining -= len(chunk)
	}
	return nil
}
