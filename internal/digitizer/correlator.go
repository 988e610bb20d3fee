package digitizer

import (
	"time"

	"github.com/lingx107/digdar/internal/pulse"
)

// clockPair keeps the last two event ticks of one stream.
type clockPair struct {
	last, prev uint64
}

func (p *clockPair) record(now uint64) {
	p.prev, p.last = p.last, now
}

// Correlator tracks per-stream clocks and counters against a free-running
// tick clock, and latches the cross-stream metadata snapshot on the tick
// a trigger is accepted while no capture is running. That latch is the
// only point a snapshot is produced; triggers arriving mid-capture leave
// the pending snapshot untouched.
type Correlator struct {
	now uint64 // free-running tick clock

	trig clockPair
	acp  clockPair
	arp  clockPair

	trigCount uint64
	acpCount  uint64
	arpCount  uint64

	acpPerARP          uint32
	acpAtARP           uint64
	trigAtARP          uint64
	acpCountAtPrevARP  uint64
	ticksSinceACPAtARP uint32
	arpWall            time.Time

	snapshot pulse.Metadata

	wallClock func() time.Time
}

// NewCorrelator returns a correlator with all clocks at zero.
func NewCorrelator() *Correlator {
	return &Correlator{wallClock: time.Now}
}

// Reset zeroes every clock, counter, and marker.
func (c *Correlator) Reset() {
	wall := c.wallClock
	*c = Correlator{wallClock: wall}
}

// Tick advances the clock one tick and folds in this tick's detector
// events. Streams are processed ACP, then ARP, then TRIG, so a
// revolution-index event sees an azimuth tick landing on the same tick.
// acpAge is the azimuth detector's age this tick; capturing is the
// controller status before any capture this trigger might start.
// accepted reports that a trigger event produced a metadata snapshot.
func (c *Correlator) Tick(trigEvt, acpEvt, arpEvt bool, acpAge int, capturing bool) (accepted bool) {
	c.now++

	if acpEvt {
		c.acpCount++
		c.acp.record(c.now)
	}
	if arpEvt {
		c.arpCount++
		c.arp.record(c.now)
		c.acpPerARP = uint32(c.acpCount - c.acpCountAtPrevARP)
		c.acpCountAtPrevARP = c.acpCount
		c.acpAtARP = c.acpCount
		c.trigAtARP = c.trigCount
		c.ticksSinceACPAtARP = uint32(acpAge)
		c.arpWall = c.wallClock()
	}
	if trigEvt {
		c.trigCount++
		c.trig.record(c.now)
		if !capturing {
			c.snapshot = pulse.Metadata{
				TrigClock:          c.trig.last,
				TrigCount:          c.trigCount,
				ACPCount:           c.acpCount,
				ACPClock:           c.acp.last,
				ARPCount:           c.arpCount,
				ARPClock:           c.arp.last,
				ACPPerARP:          c.acpPerARP,
				ACPAtARP:           c.acpAtARP,
				TrigAtARP:          c.trigAtARP,
				TicksSinceACPAtARP: c.ticksSinceACPAtARP,
				ARPWall:            c.arpWall,
			}
			accepted = true
		}
	}
	return accepted
}

// Snapshot returns the metadata latched at the last accepted trigger.
func (c *Correlator) Snapshot() pulse.Metadata { return c.snapshot }

// Clock reports the free-running tick count.
func (c *Correlator) Clock() uint64 { return c.now }

// TrigCount reports cumulative trigger events observed.
func (c *Correlator) TrigCount() uint64 { return c.trigCount }

// ACPCount reports cumulative azimuth-tick events observed.
func (c *Correlator) ACPCount() uint64 { return c.acpCount }

// ARPCount reports cumulative revolution-index events observed.
func (c *Correlator) ARPCount() uint64 { return c.arpCount }
