// Package reader drains completed captures out of the digitizer and
// publishes them to the pulse ring. It is the producer side of the
// pipeline's single-producer/single-consumer boundary.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/capture"
	"github.com/lingx107/digdar/internal/pulse"
)

// ErrTimeout is returned by GetPulse when no capture fires within the
// requested window. Recoverable: the caller retries or gives up.
var ErrTimeout = errors.New("timed out waiting for pulse")

// DefaultPollInterval bounds how long a pulse wait sleeps between status
// rechecks when no fire notification arrives.
const DefaultPollInterval = time.Millisecond

// Digitizer is the register-page surface the reader drives.
type Digitizer interface {
	Status() capture.Status
	Arm()
	TakePulse(dst []adc.Sample) (pulse.Metadata, bool)
	FiredSignal() <-chan struct{}
}

// StatsSink receives the reader's condition counts.
type StatsSink interface {
	AddPulse(md *pulse.Metadata, samples int)
	AddTimeout()
	AddRingDrop()
}

type noopStats struct{}

func (noopStats) AddPulse(*pulse.Metadata, int) {}
func (noopStats) AddTimeout()                   {}
func (noopStats) AddRingDrop()                  {}

// Config sets the reader's window size and wait behavior.
type Config struct {
	NS           int           // samples copied per pulse
	Timeout      time.Duration // per-pulse wait in Run; 0 waits forever
	PollInterval time.Duration // bounded wake-up period, default 1ms
	Stats        StatsSink
}

// Reader copies pulses out of the digitizer. Not safe for concurrent use:
// one reader goroutine owns the capture handshake.
type Reader struct {
	dig     Digitizer
	ring    *pulse.Ring
	cfg     Config
	stats   StatsSink
	scratch []adc.Sample
}

// New returns a reader publishing into ring.
func New(dig Digitizer, ring *pulse.Ring, cfg Config) *Reader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	return &Reader{dig: dig, ring: ring, cfg: cfg, stats: stats}
}

// GetPulse waits for the next completed capture and copies it out: the
// metadata snapshot into md, then len(dst) window samples into dst. The
// capture re-arms between the two copies, so dead time between pulses is
// the sample copy alone; callers reading windows near the full ring size
// must still drain each pulse within one pulse period. An idle capture
// engine is armed on entry. timeout == 0 waits until a pulse or ctx
// cancellation; otherwise ErrTimeout is returned once timeout elapses,
// within one poll interval.
func (r *Reader) GetPulse(ctx context.Context, md *pulse.Metadata, dst []adc.Sample, timeout time.Duration) error {
	if r.dig.Status() == capture.Idle {
		r.dig.Arm()
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	for {
		if m, ok := r.dig.TakePulse(dst); ok {
			*md = m
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		case <-r.dig.FiredSignal():
		case <-poll.C:
		}
	}
}

// Run pulls pulses until ctx is cancelled, publishing each into the ring.
// When the consumer has fallen a full ring behind, the pulse is read and
// dropped (counted) rather than overwriting an unreleased slot or
// stalling the capture handshake. Timeouts are counted and the loop
// continues.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		slot := r.ring.Reserve()
		dst := r.window(slot)

		var md pulse.Metadata
		err := r.GetPulse(ctx, &md, dst, r.cfg.Timeout)
		switch {
		case err == nil:
			if slot == nil {
				r.stats.AddRingDrop()
				continue
			}
			slot.Meta = md
			r.ring.Publish()
			r.stats.AddPulse(&md, len(dst))
		case errors.Is(err, ErrTimeout):
			r.stats.AddTimeout()
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("pulse read: %w", err)
		}
	}
}

// window sizes the copy destination: the reserved slot's storage, or the
// drop scratch buffer when the ring is full.
func (r *Reader) window(slot *pulse.Record) []adc.Sample {
	ns := r.cfg.NS
	if slot != nil {
		if cap(slot.Samples) < ns {
			slot.Samples = make([]adc.Sample, ns)
		} else {
			slot.Samples = slot.Samples[:ns]
		}
		return slot.Samples
	}
	if cap(r.scratch) < ns {
		r.scratch = make([]adc.Sample, ns)
	}
	return r.scratch[:ns]
}
