// Package capture implements the triggered window capture engine: arming,
// decimation of the video stream, and the circular sample store the
// completed window is read back from.
package capture

import (
	"errors"
	"fmt"

	"github.com/lingx107/digdar/internal/adc"
)

const (
	// WindowSlots is the sample ring capacity, matching the instrument's
	// block RAM. Also the upper bound on a capture's sample count.
	WindowSlots = 16384

	// SumMaxRate is the largest decimation rate whose running sum still
	// fits the output sample width.
	SumMaxRate = 4
)

// Rates enumerates the decimation rates the instrument supports.
var Rates = []int{1, 2, 3, 4, 8, 64, 1024, 8192, 65536}

// rateShift maps power-of-two rates to their averaging shift. Rate 3 has
// no entry: averaging falls through to the bypass output.
var rateShift = map[int]uint{1: 0, 2: 1, 4: 2, 8: 3, 64: 6, 1024: 10, 8192: 13, 65536: 16}

// ErrConfig marks capture configuration rejected at validation. It is
// fatal at startup: the process reports it and exits nonzero.
var ErrConfig = errors.New("invalid capture config")

// TriggerSource selects which event starts an armed capture.
type TriggerSource uint8

const (
	SourceNone TriggerSource = iota // arming holds until reconfigured
	SourceImmediate                 // capture starts on the next tick
	SourceTrig                      // radar trigger detector event
	SourceACP                       // azimuth-tick detector event
	SourceARP                       // revolution-index detector event
)

func (s TriggerSource) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceImmediate:
		return "immediate"
	case SourceTrig:
		return "trig"
	case SourceACP:
		return "acp"
	case SourceARP:
		return "arp"
	}
	return "unknown"
}

// Status is the capture state machine's position. It has a single owner:
// the acquisition loop mutates it, readers observe it.
type Status uint8

const (
	Idle Status = iota
	Armed
	Capturing
	Fired
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Fired:
		return "fired"
	}
	return "unknown"
}

// Config is the capture engine's register set.
type Config struct {
	NS      int           // decimated samples per capture, 0..16384
	Rate    int           // decimation rate, one of Rates
	Average bool          // emit sum >> log2(rate) per interval
	Sum     bool          // emit the running sum per interval, rate <= 4 only
	Source  TriggerSource // event that starts an armed capture
}

// Validate rejects configurations the instrument cannot express.
func (c Config) Validate() error {
	if c.NS < 0 || c.NS > WindowSlots {
		return fmt.Errorf("%w: ns %d outside [0,%d]", ErrConfig, c.NS, WindowSlots)
	}
	if _, ok := rateShift[c.Rate]; !ok && c.Rate != 3 {
		return fmt.Errorf("%w: decimation rate %d not in %v", ErrConfig, c.Rate, Rates)
	}
	if c.Sum && c.Rate > SumMaxRate {
		return fmt.Errorf("%w: sum mode needs rate <= %d, got %d", ErrConfig, SumMaxRate, c.Rate)
	}
	return nil
}

// Controller owns the capture state machine and the sample ring. All
// methods must be called from one goroutine at a time; the digitizer's
// register page serializes access.
type Controller struct {
	cfg    Config
	status Status

	buf    [WindowSlots]adc.Sample
	wr     int // next ring slot to write
	fireWr int // write index latched when the last capture fired

	remaining int   // decimated samples left in the running capture
	acc       int32 // interval accumulator
	nacc      int   // raw samples accumulated this interval
	last      adc.Sample
}

// NewController validates cfg and returns an idle controller.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg}, nil
}

// Configure replaces the register set. The controller drops to Idle; a
// capture in progress is abandoned.
func (c *Controller) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.Reset()
	return nil
}

// Reset returns the controller to Idle and clears interval state. The
// sample ring keeps its contents; only indices matter.
func (c *Controller) Reset() {
	c.status = Idle
	c.remaining = 0
	c.acc = 0
	c.nacc = 0
}

// Arm readies the next capture. Arming is a no-op while Capturing; a
// Fired window survives arming and remains readable until the next
// capture overwrites it.
func (c *Controller) Arm() {
	if c.status == Capturing {
		return
	}
	c.status = Armed
	c.remaining = c.cfg.NS
	c.acc = 0
	c.nacc = 0
}

// Step advances the engine one tick. event is the selected trigger
// source's detector output for this tick (ignored for None/Immediate).
// fired reports the Capturing -> Fired transition; dropped reports a
// start event discarded because a capture was already running.
func (c *Controller) Step(video adc.Sample, event bool) (fired, dropped bool) {
	switch c.status {
	case Armed:
		start := false
		switch c.cfg.Source {
		case SourceImmediate:
			start = true
		case SourceNone:
			// Stays armed until reconfigured.
		default:
			start = event
		}
		if !start {
			return false, false
		}
		if c.remaining == 0 {
			// Zero-length capture fires with an empty window.
			c.status = Fired
			c.fireWr = c.wr
			return true, false
		}
		c.status = Capturing
		// The trigger tick's sample is the first of the window.
		return c.accumulate(video), false
	case Capturing:
		dropped = event
		return c.accumulate(video), dropped
	}
	return false, false
}

func (c *Controller) accumulate(video adc.Sample) (fired bool) {
	c.acc += int32(video)
	c.last = video
	c.nacc++
	if c.nacc < c.cfg.Rate {
		return false
	}

	var out adc.Sample
	switch {
	case c.cfg.Sum:
		// Rate <= 4 keeps four 14-bit terms inside the 16-bit output.
		out = adc.Sample(c.acc)
	default:
		if shift, ok := rateShift[c.cfg.Rate]; ok && c.cfg.Average {
			out = adc.Sample(c.acc >> shift)
		} else {
			out = c.last
		}
	}

	c.buf[c.wr] = out
	c.wr = (c.wr + 1) & (WindowSlots - 1)
	c.acc = 0
	c.nacc = 0
	c.remaining--
	if c.remaining == 0 {
		c.status = Fired
		c.fireWr = c.wr
		return true
	}
	return false
}

// Window copies the len(dst) most recent decimated samples of the last
// fired capture, oldest first, wrapping at the ring boundary. It stays
// valid after re-arming until the next capture writes over the region.
func (c *Controller) Window(dst []adc.Sample) {
	n := len(dst)
	if n == 0 {
		return
	}
	if n > WindowSlots {
		n = WindowSlots
		dst = dst[:n]
	}
	start := (c.fireWr - n) & (WindowSlots - 1)
	first := copy(dst, c.buf[start:])
	if first < n {
		copy(dst[first:], c.buf[:n-first])
	}
}

// Status reports the state machine's position.
func (c *Controller) Status() Status { return c.status }

// Config returns the active register set.
func (c *Controller) Config() Config { return c.cfg }

// FiredIndex reports the ring write index latched at the last fire.
func (c *Controller) FiredIndex() int { return c.fireWr }
