// Package adc defines the sample and tick types shared by the acquisition
// pipeline, plus the Source boundary that stands in for the instrument's
// register transport.
package adc

import (
	"context"
	"time"
)

// Instrument clock constants. The converter runs at 125 MHz and packs
// 14-bit two's-complement codes into 16-bit words.
const (
	TickHz     = 125_000_000
	TickPeriod = 8 * time.Nanosecond

	SampleBits = 14
	SampleMax  = 1<<(SampleBits-1) - 1  // 8191
	SampleMin  = -1 << (SampleBits - 1) // -8192
)

// Sample is one sign-extended converter reading.
type Sample int16

// SignExtend14 widens a raw 14-bit code to a Sample. Codes arrive in the
// low 14 bits of a 16-bit word with undefined upper bits.
func SignExtend14(code uint16) Sample {
	return Sample(int16(code<<2) >> 2)
}

// Tick carries one instrument clock tick's worth of synchronized readings
// across the four input streams.
type Tick struct {
	Video Sample // fast channel captured into pulse windows
	Trig  Sample // radar trigger line
	ACP   Sample // azimuth count pulse (angular tick)
	ARP   Sample // azimuth return pulse (once per revolution)
}

// Source delivers consecutive ticks from the instrument.
type Source interface {
	// ReadTicks fills buf and returns the number of ticks read. It blocks
	// until at least one tick is available, the source is exhausted
	// (io.EOF), or ctx is cancelled.
	ReadTicks(ctx context.Context, buf []Tick) (int, error)
}
