// This file provides synthetic tick generation for dev mode and tests.

package adc

import (
	"context"
	"io"
	"math/rand"
	"time"
)

// Synthetic generates a radar-like tick stream: a trigger pulse train, an
// angular tick train, a once-per-revolution index pulse, and a video
// channel carrying a decaying echo after each trigger over baseline noise.
// Periods are expressed in ticks so tests can use small geometries.
type Synthetic struct {
	// Configuration
	TrigPeriodTicks int           // ticks between trigger pulses
	ACPPeriodTicks  int           // ticks between angular ticks
	TicksPerRev     int           // ticks per revolution (ARP period)
	PulseWidthTicks int           // width of trigger/ACP/ARP pulses
	HighLevel       Sample        // pulse amplitude on the reference lines
	LowLevel        Sample        // resting level on the reference lines
	EchoLevel       Sample        // initial video echo amplitude after a trigger
	NoiseLevel      Sample        // peak video baseline noise
	Throttle        time.Duration // optional sleep per generated batch; 0 runs unpaced
	Limit           int64         // stop after this many ticks; 0 runs forever

	// Internal state
	rng  *rand.Rand
	tick int64
	echo int32
}

// NewSynthetic creates a generator with a small default geometry: eight
// angular ticks per revolution and four triggers per angular tick.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		TrigPeriodTicks: 2048,
		ACPPeriodTicks:  8192,
		TicksPerRev:     65536,
		PulseWidthTicks: 16,
		HighLevel:       6000,
		LowLevel:        -2000,
		EchoLevel:       7000,
		NoiseLevel:      64,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Reseed makes the generator deterministic for tests.
func (g *Synthetic) Reseed(seed int64) {
	g.rng = rand.New(rand.NewSource(seed))
}

// ReadTicks implements Source.
func (g *Synthetic) ReadTicks(ctx context.Context, buf []Tick) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := len(buf)
	if g.Limit > 0 {
		if remaining := g.Limit - g.tick; remaining <= 0 {
			return 0, io.EOF
		} else if int64(n) > remaining {
			n = int(remaining)
		}
	}
	for i := 0; i < n; i++ {
		buf[i] = g.next()
	}
	if g.Throttle > 0 {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-time.After(g.Throttle):
		}
	}
	return n, nil
}

func (g *Synthetic) next() Tick {
	t := g.tick
	g.tick++

	line := func(period int) Sample {
		if period > 0 && int(t%int64(period)) < g.PulseWidthTicks {
			return g.HighLevel
		}
		return g.LowLevel
	}

	// Restart the echo at each trigger onset, then decay it geometrically.
	if g.TrigPeriodTicks > 0 && t%int64(g.TrigPeriodTicks) == 0 {
		g.echo = int32(g.EchoLevel)
	} else if g.echo != 0 {
		g.echo -= g.echo >> 4
	}

	noise := Sample(0)
	if g.NoiseLevel > 0 {
		noise = Sample(g.rng.Intn(2*int(g.NoiseLevel)+1) - int(g.NoiseLevel))
	}
	video := clampSample(g.echo + int32(noise))

	return Tick{
		Video: video,
		Trig:  line(g.TrigPeriodTicks),
		ACP:   line(g.ACPPeriodTicks),
		ARP:   line(g.TicksPerRev),
	}
}

func clampSample(v int32) Sample {
	if v > SampleMax {
		return SampleMax
	}
	if v < SampleMin {
		return SampleMin
	}
	return Sample(v)
}
