package trigger

import "github.com/lingx107/digdar/internal/adc"

// Mode selects the comparison directions of a detector. It is derived
// from the threshold ordering once, when the detector is reset; changing
// thresholds afterwards moves the comparison points but never the mode.
type Mode uint8

const (
	// ModeNormal fires on an upward excite crossing after relaxing low.
	ModeNormal Mode = iota
	// ModeInverted fires on a downward excite crossing after relaxing high.
	ModeInverted
	// ModeSingleThreshold fires on strict upward crossings of one level.
	ModeSingleThreshold
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeInverted:
		return "inverted"
	case ModeSingleThreshold:
		return "single-threshold"
	}
	return "unknown"
}

// Phase is a detector's position in the relax/excite cycle.
type Phase uint8

const (
	PhaseWaitingRelax Phase = iota
	PhaseWaitingExcite
	PhaseDelaying
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingRelax:
		return "waiting-relax"
	case PhaseWaitingExcite:
		return "waiting-excite"
	case PhaseDelaying:
		return "delaying"
	}
	return "unknown"
}

// Config sets one detector instance's thresholds and timing. Thresholds
// may take any signed values; their ordering at reset time selects the
// mode and never faults.
type Config struct {
	Excite  adc.Sample // firing threshold
	Relax   adc.Sample // re-arming threshold
	Latency int        // ticks after a firing during which new firings are suppressed
	Delay   int        // ticks between an accepted firing and the emitted event
	Bypass  bool       // skip smoothing, compare raw samples directly
	Enabled bool       // a disabled detector holds reset and never fires
}

// Detector is the hysteresis threshold-crossing state machine watching one
// sample stream. Step must be called exactly once per instrument tick in
// temporal order; the event output is exactly one tick wide.
type Detector struct {
	cfg      Config
	mode     Mode
	phase    Phase
	smoother Smoother
	smoothed adc.Sample

	age     int    // ticks since the last accepted firing
	latency int    // remaining suppression ticks
	delay   int    // remaining ticks before the pending event fires
	count   uint64 // cumulative accepted firings
}

// NewDetector returns a detector reset with cfg and a zero seed sample.
func NewDetector(cfg Config) *Detector {
	d := &Detector{}
	d.cfg = cfg
	d.Reset(0)
	return d
}

// Reset re-derives the mode from the current threshold ordering, clears
// the phase, age, latency, delay, and event counters, and reseeds the
// smoothing filter from raw. Reset is idempotent: the resulting state
// depends only on the configuration and the seed sample.
func (d *Detector) Reset(raw adc.Sample) {
	switch {
	case d.cfg.Relax < d.cfg.Excite:
		d.mode = ModeNormal
	case d.cfg.Relax > d.cfg.Excite:
		d.mode = ModeInverted
	default:
		d.mode = ModeSingleThreshold
	}
	d.phase = PhaseWaitingRelax
	d.age = 0
	d.latency = 0
	d.delay = 0
	d.count = 0
	d.smoother.Reset(raw)
	d.smoother.SetBypass(d.cfg.Bypass)
	d.smoothed = raw
}

// SetThresholds moves the comparison points immediately. The mode keeps
// its reset-time value until the next Reset, matching the instrument's
// register behavior.
func (d *Detector) SetThresholds(excite, relax adc.Sample) {
	d.cfg.Excite = excite
	d.cfg.Relax = relax
}

// Configure replaces the full configuration and resets the detector,
// seeding the filter from raw.
func (d *Detector) Configure(cfg Config, raw adc.Sample) {
	d.cfg = cfg
	d.Reset(raw)
}

// Step advances the detector one tick and reports whether the event
// output is high on this tick.
func (d *Detector) Step(raw adc.Sample) bool {
	if !d.cfg.Enabled {
		// A disabled detector holds reset so re-enabling starts clean
		// and seeded from the live signal.
		d.smoother.Reset(raw)
		d.smoothed = raw
		return false
	}

	d.smoothed = d.smoother.Step(raw)
	d.age++

	// Suppression is judged against the counter value at the start of the
	// tick; the countdown itself runs every tick regardless of phase.
	suppressed := d.latency > 0
	if d.latency > 0 {
		d.latency--
	}

	event := false
	switch d.phase {
	case PhaseWaitingRelax:
		if d.relaxed() {
			d.phase = PhaseWaitingExcite
		}
	case PhaseWaitingExcite:
		if !suppressed && d.excited() {
			d.count++
			d.age = 0
			if d.cfg.Latency > 0 {
				d.latency = d.cfg.Latency
			}
			if d.cfg.Delay > 0 {
				d.delay = d.cfg.Delay
				d.phase = PhaseDelaying
			} else {
				event = true
				d.phase = PhaseWaitingRelax
			}
		}
	case PhaseDelaying:
		d.delay--
		if d.delay == 0 {
			event = true
			d.phase = PhaseWaitingRelax
		}
	}
	return event
}

func (d *Detector) relaxed() bool {
	switch d.mode {
	case ModeInverted:
		return d.smoothed >= d.cfg.Relax
	case ModeSingleThreshold:
		return d.smoothed < d.cfg.Relax
	default:
		return d.smoothed <= d.cfg.Relax
	}
}

func (d *Detector) excited() bool {
	switch d.mode {
	case ModeInverted:
		return d.smoothed <= d.cfg.Excite
	case ModeSingleThreshold:
		return d.smoothed > d.cfg.Excite
	default:
		return d.smoothed >= d.cfg.Excite
	}
}

// Mode reports the comparison mode fixed at the last reset.
func (d *Detector) Mode() Mode { return d.mode }

// Phase reports the current position in the relax/excite cycle.
func (d *Detector) Phase() Phase { return d.phase }

// Age reports ticks elapsed since the last accepted firing.
func (d *Detector) Age() int { return d.age }

// Count reports cumulative accepted firings since the last reset.
func (d *Detector) Count() uint64 { return d.count }

// Smoothed reports the conditioned value from the last Step.
func (d *Detector) Smoothed() adc.Sample { return d.smoothed }
