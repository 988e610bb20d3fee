// Package digitizer composes the three stream detectors, the capture
// controller, and the metadata correlator into the behavioral model of
// the instrument, stepped one tick at a time behind a register-page
// mutex that stands in for the bus transport's clock-domain bridge.
package digitizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/capture"
	"github.com/lingx107/digdar/internal/pulse"
	"github.com/lingx107/digdar/internal/trigger"
)

// Stream names one of the three detector instances.
type Stream uint8

const (
	StreamTrig Stream = iota
	StreamACP
	StreamARP
)

func (s Stream) String() string {
	switch s {
	case StreamTrig:
		return "trig"
	case StreamACP:
		return "acp"
	case StreamARP:
		return "arp"
	}
	return "unknown"
}

// StatsSink receives hot-path condition counts. All methods must be safe
// for concurrent use and cheap.
type StatsSink interface {
	// AddOverrun counts a trigger dropped because a capture was running.
	AddOverrun()
}

type noopStats struct{}

func (noopStats) AddOverrun() {}

// Config wires a digitizer's detectors, capture engine, and tick source.
type Config struct {
	Trig    trigger.Config
	ACP     trigger.Config
	ARP     trigger.Config
	Capture capture.Config

	Source     adc.Source // tick supply for Run; Step may be driven directly
	Stats      StatsSink  // optional overrun metric sink
	BatchTicks int        // Run's read granularity, default 1024
}

// Counters is a snapshot of the model's cumulative event counts.
type Counters struct {
	Ticks      uint64
	TrigEvents uint64
	ACPEvents  uint64
	ARPEvents  uint64
	Overruns   uint64
}

// Digitizer is the stepped behavioral model. Step and the register
// accessors may be called from different goroutines; the page mutex
// serializes them. Tick order within Step is strict: detectors first,
// then the correlator (whose snapshot decision sees the pre-trigger
// capture status), then the capture controller, so a trigger accepted
// while Armed both snapshots and starts its capture on the same tick.
type Digitizer struct {
	mu   sync.Mutex
	trig *trigger.Detector
	acp  *trigger.Detector
	arp  *trigger.Detector
	ctrl *capture.Controller
	corr *Correlator

	lastTick adc.Tick
	overruns uint64

	source adc.Source
	stats  StatsSink
	batch  int

	firedCh chan struct{}
}

// New validates the capture configuration and assembles the model.
func New(cfg Config) (*Digitizer, error) {
	ctrl, err := capture.NewController(cfg.Capture)
	if err != nil {
		return nil, err
	}
	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	batch := cfg.BatchTicks
	if batch <= 0 {
		batch = 1024
	}
	return &Digitizer{
		trig:    trigger.NewDetector(cfg.Trig),
		acp:     trigger.NewDetector(cfg.ACP),
		arp:     trigger.NewDetector(cfg.ARP),
		ctrl:    ctrl,
		corr:    NewCorrelator(),
		source:  cfg.Source,
		stats:   stats,
		batch:   batch,
		firedCh: make(chan struct{}, 1),
	}, nil
}

// Run drains the configured source, stepping the model in strict temporal
// order until the source is exhausted or ctx is cancelled.
func (d *Digitizer) Run(ctx context.Context) error {
	if d.source == nil {
		return errors.New("digitizer: no tick source configured")
	}
	buf := make([]adc.Tick, d.batch)
	for {
		n, err := d.source.ReadTicks(ctx, buf)
		if n > 0 {
			d.Step(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			diagf("tick source exhausted after %d ticks", d.Counters().Ticks)
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("failed to read ticks: %w", err)
		}
	}
}

// Step advances the model over a batch of consecutive ticks. Batches must
// arrive in temporal order from a single caller; cross-tick parallelism
// breaks the state machines.
func (d *Digitizer) Step(ticks []adc.Tick) {
	fired := false
	d.mu.Lock()
	for i := range ticks {
		if d.stepTick(&ticks[i]) {
			fired = true
		}
	}
	d.mu.Unlock()
	if fired {
		d.notifyFired()
	}
}

func (d *Digitizer) stepTick(t *adc.Tick) bool {
	d.lastTick = *t

	trigEvt := d.trig.Step(t.Trig)
	acpEvt := d.acp.Step(t.ACP)
	arpEvt := d.arp.Step(t.ARP)

	capturing := d.ctrl.Status() == capture.Capturing
	accepted := d.corr.Tick(trigEvt, acpEvt, arpEvt, d.acp.Age(), capturing)
	if trigEvt && !accepted {
		d.overrun("trigger during capture")
	}

	var ev bool
	src := d.ctrl.Config().Source
	switch src {
	case capture.SourceTrig:
		ev = trigEvt
	case capture.SourceACP:
		ev = acpEvt
	case capture.SourceARP:
		ev = arpEvt
	}
	fired, dropped := d.ctrl.Step(t.Video, ev)
	if dropped && src != capture.SourceTrig {
		// Trigger-sourced drops were already counted on the snapshot side.
		d.overrun("start event during capture")
	}
	if fired {
		tracef("capture fired at tick %d, trig %d", d.corr.Clock(), d.corr.TrigCount())
	}
	return fired
}

func (d *Digitizer) overrun(reason string) {
	d.overruns++
	d.stats.AddOverrun()
	tracef("overrun: %s", reason)
}

func (d *Digitizer) notifyFired() {
	select {
	case d.firedCh <- struct{}{}:
	default:
	}
}

// FiredSignal returns the notification channel pulsed on Capturing ->
// Fired transitions. Receivers must recheck status after each wake.
func (d *Digitizer) FiredSignal() <-chan struct{} { return d.firedCh }

// Status reports the capture state machine's position.
func (d *Digitizer) Status() capture.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl.Status()
}

// Arm readies the next capture.
func (d *Digitizer) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctrl.Arm()
}

// TakePulse copies the pending metadata snapshot and the completed window
// out of the register page in one lock hold: metadata first, then an
// immediate re-arm, then the sample copy into dst. Arming before the copy
// minimizes dead time between pulses; the page lock keeps the next
// capture from writing over a window still being copied, a hazard the
// instrument itself leaves to the caller. Returns false when no capture
// has fired.
func (d *Digitizer) TakePulse(dst []adc.Sample) (pulse.Metadata, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctrl.Status() != capture.Fired {
		return pulse.Metadata{}, false
	}
	md := d.corr.Snapshot()
	d.ctrl.Arm()
	d.ctrl.Window(dst)
	return md, true
}

// SetTriggerConfig swaps one detector's configuration between ticks. The
// detector resets: mode re-derives from the new thresholds and its filter
// reseeds from the stream's current sample.
func (d *Digitizer) SetTriggerConfig(s Stream, cfg trigger.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch s {
	case StreamTrig:
		d.trig.Configure(cfg, d.lastTick.Trig)
	case StreamACP:
		d.acp.Configure(cfg, d.lastTick.ACP)
	case StreamARP:
		d.arp.Configure(cfg, d.lastTick.ARP)
	}
	diagf("detector %s reconfigured: excite %d relax %d latency %d delay %d",
		s, cfg.Excite, cfg.Relax, cfg.Latency, cfg.Delay)
}

// SetThresholds moves one detector's comparison points without a reset.
// The mode keeps its reset-time value, matching the instrument registers.
func (d *Digitizer) SetThresholds(s Stream, excite, relax adc.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch s {
	case StreamTrig:
		d.trig.SetThresholds(excite, relax)
	case StreamACP:
		d.acp.SetThresholds(excite, relax)
	case StreamARP:
		d.arp.SetThresholds(excite, relax)
	}
}

// SetCaptureConfig swaps the capture register set. The controller drops
// to Idle; the reader re-arms on its next pulse wait.
func (d *Digitizer) SetCaptureConfig(cfg capture.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ctrl.Configure(cfg); err != nil {
		return err
	}
	diagf("capture reconfigured: ns %d rate %d avg %t sum %t source %s",
		cfg.NS, cfg.Rate, cfg.Average, cfg.Sum, cfg.Source)
	return nil
}

// Reset returns the whole model to power-on state: detectors re-derive
// modes and reseed from the current stream samples, the capture engine
// idles, and every clock and counter clears.
func (d *Digitizer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trig.Reset(d.lastTick.Trig)
	d.acp.Reset(d.lastTick.ACP)
	d.arp.Reset(d.lastTick.ARP)
	d.ctrl.Reset()
	d.corr.Reset()
	d.overruns = 0
	opsf("model reset")
}

// Counters snapshots the cumulative event counts.
func (d *Digitizer) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counters{
		Ticks:      d.corr.Clock(),
		TrigEvents: d.corr.TrigCount(),
		ACPEvents:  d.corr.ACPCount(),
		ARPEvents:  d.corr.ARPCount(),
		Overruns:   d.overruns,
	}
}
