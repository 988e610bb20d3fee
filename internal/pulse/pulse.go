// Package pulse defines the completed-capture types exchanged between the
// acquisition loop and the consumer: the cross-stream metadata snapshot,
// the pulse record, the single-producer/single-consumer ring they travel
// through, and the stream wire format.
package pulse

import (
	"math"
	"time"

	"github.com/lingx107/digdar/internal/adc"
)

// Metadata is the cross-stream snapshot latched on the tick a trigger is
// accepted while no capture is running. It is immutable once produced; a
// trigger arriving mid-capture never overwrites a pending snapshot.
type Metadata struct {
	TrigClock uint64 // tick clock at the accepted trigger
	TrigCount uint64 // cumulative trigger events
	ACPCount  uint64 // cumulative azimuth ticks
	ACPClock  uint64 // tick clock at the last azimuth tick
	ARPCount  uint64 // cumulative revolutions
	ARPClock  uint64 // tick clock at the last revolution index

	ACPPerARP          uint32 // azimuth ticks in the last full revolution
	ACPAtARP           uint64 // ACP count latched at the last revolution index
	TrigAtARP          uint64 // trigger count latched at the last revolution index
	TicksSinceACPAtARP uint32 // azimuth-tick age latched at the last revolution index

	ARPWall time.Time // wall clock latched at the last revolution index
}

// Azimuth returns the pulse's fractional position within its revolution,
// in [0,1). Before the first full revolution has been measured the
// position is unknown and reported as 0.
func (m *Metadata) Azimuth() float64 {
	if m.ACPPerARP == 0 {
		return 0
	}
	frac := float64(m.ACPCount-m.ACPAtARP) / float64(m.ACPPerARP)
	return frac - math.Floor(frac)
}

// Timestamp derives the pulse time from the revolution's wall-clock epoch
// plus the trigger's tick offset into the revolution. Zero before the
// first revolution index.
func (m *Metadata) Timestamp() time.Time {
	if m.ARPWall.IsZero() {
		return time.Time{}
	}
	return m.ARPWall.Add(time.Duration(m.TrigClock-m.ARPClock) * adc.TickPeriod)
}

// Record is one delivered pulse: the metadata snapshot plus the captured
// window. A record occupies one ring slot; the producer must not touch a
// slot again until the consumer releases it.
type Record struct {
	Meta    Metadata
	Samples []adc.Sample
}
