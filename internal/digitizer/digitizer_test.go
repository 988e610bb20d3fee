package digitizer

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/capture"
	"github.com/lingx107/digdar/internal/trigger"
)

// bypassed detectors make the tick scripts below read as raw levels:
// 3500 crosses excite, 0 relaxes.
func testConfig() Config {
	det := trigger.Config{Excite: 3000, Relax: 500, Bypass: true, Enabled: true}
	return Config{
		Trig: det,
		ACP:  det,
		ARP:  det,
		Capture: capture.Config{
			NS:     4,
			Rate:   1,
			Source: capture.SourceTrig,
		},
	}
}

func tk(trig, acp, arp, video adc.Sample) adc.Tick {
	return adc.Tick{Trig: trig, ACP: acp, ARP: arp, Video: video}
}

type countingStats struct {
	overruns atomic.Int64
}

func (s *countingStats) AddOverrun() { s.overruns.Add(1) }

// Test one full acquisition: azimuth and revolution context arrives, a
// trigger fires, the window fills, and TakePulse hands both out while
// re-arming.
func TestDigitizer_CaptureCycle(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Arm()

	d.Step([]adc.Tick{
		tk(0, 0, 0, 0),       // tick 1: all detectors relax
		tk(0, 3500, 0, 0),    // tick 2: azimuth tick
		tk(0, 0, 3500, 0),    // tick 3: revolution index
		tk(3500, 0, 0, 10),   // tick 4: trigger accepted, window opens
		tk(0, 0, 0, 20),      // tick 5
		tk(0, 0, 0, 30),      // tick 6
		tk(0, 0, 0, 40),      // tick 7: window complete
	})

	if d.Status() != capture.Fired {
		t.Fatalf("status = %v, want fired", d.Status())
	}
	select {
	case <-d.FiredSignal():
	default:
		t.Fatal("no fire notification pending")
	}

	dst := make([]adc.Sample, 4)
	md, ok := d.TakePulse(dst)
	if !ok {
		t.Fatal("TakePulse = false with a fired capture")
	}
	if d.Status() != capture.Armed {
		t.Fatalf("status after TakePulse = %v, want armed", d.Status())
	}

	if md.TrigClock != 4 || md.TrigCount != 1 {
		t.Fatalf("trig clock/count = %d/%d, want 4/1", md.TrigClock, md.TrigCount)
	}
	if md.ACPCount != 1 || md.ACPClock != 2 {
		t.Fatalf("acp count/clock = %d/%d, want 1/2", md.ACPCount, md.ACPClock)
	}
	if md.ARPCount != 1 || md.ARPClock != 3 {
		t.Fatalf("arp count/clock = %d/%d, want 1/3", md.ARPCount, md.ARPClock)
	}
	if md.ACPPerARP != 1 || md.ACPAtARP != 1 || md.TrigAtARP != 0 {
		t.Fatalf("revolution markers = %d/%d/%d, want 1/1/0",
			md.ACPPerARP, md.ACPAtARP, md.TrigAtARP)
	}
	if md.TicksSinceACPAtARP != 1 {
		t.Fatalf("TicksSinceACPAtARP = %d, want 1 (azimuth tick one tick before the index)", md.TicksSinceACPAtARP)
	}
	if md.ARPWall.IsZero() {
		t.Fatal("ARPWall not latched")
	}
	for i, want := range []adc.Sample{10, 20, 30, 40} {
		if dst[i] != want {
			t.Fatalf("window = %v, want [10 20 30 40]", dst)
		}
	}

	// Nothing further has fired.
	if _, ok := d.TakePulse(dst); ok {
		t.Fatal("TakePulse = true without a new capture")
	}
}

// Test the re-arm inside TakePulse is live: a second trigger captures
// without an explicit Arm.
func TestDigitizer_TakePulseRearms(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Arm()

	script := []adc.Tick{
		tk(0, 0, 0, 0),
		tk(3500, 0, 0, 1),
		tk(0, 0, 0, 2),
		tk(0, 0, 0, 3),
		tk(0, 0, 0, 4),
	}
	d.Step(script)
	dst := make([]adc.Sample, 4)
	if _, ok := d.TakePulse(dst); !ok {
		t.Fatal("first TakePulse failed")
	}

	d.Step([]adc.Tick{
		tk(3500, 0, 0, 5),
		tk(0, 0, 0, 6),
		tk(0, 0, 0, 7),
		tk(0, 0, 0, 8),
	})
	md, ok := d.TakePulse(dst)
	if !ok {
		t.Fatal("second TakePulse failed after implicit re-arm")
	}
	if md.TrigCount != 2 {
		t.Fatalf("TrigCount = %d, want 2", md.TrigCount)
	}
	for i, want := range []adc.Sample{5, 6, 7, 8} {
		if dst[i] != want {
			t.Fatalf("window = %v, want [5 6 7 8]", dst)
		}
	}
}

// Test a trigger landing mid-capture is counted as an overrun and does
// not disturb the running capture or the pending snapshot.
func TestDigitizer_MidCaptureTriggerOverrun(t *testing.T) {
	stats := &countingStats{}
	cfg := testConfig()
	cfg.Stats = stats
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Arm()

	d.Step([]adc.Tick{
		tk(0, 0, 0, 0),
		tk(3500, 0, 0, 10), // capture opens
		tk(0, 0, 0, 20),
		tk(3500, 0, 0, 30), // stray trigger mid-capture
		tk(0, 0, 0, 40),    // window complete
	})

	if got := stats.overruns.Load(); got != 1 {
		t.Fatalf("overruns = %d, want 1", got)
	}
	c := d.Counters()
	if c.Overruns != 1 || c.TrigEvents != 2 || c.Ticks != 5 {
		t.Fatalf("counters = %+v, want 1 overrun, 2 trig events, 5 ticks", c)
	}

	dst := make([]adc.Sample, 4)
	md, ok := d.TakePulse(dst)
	if !ok {
		t.Fatal("TakePulse failed")
	}
	if md.TrigCount != 1 || md.TrigClock != 2 {
		t.Fatalf("snapshot = count %d clock %d, want the opening trigger 1/2", md.TrigCount, md.TrigClock)
	}
	for i, want := range []adc.Sample{10, 20, 30, 40} {
		if dst[i] != want {
			t.Fatalf("window = %v, want [10 20 30 40]", dst)
		}
	}
}

type scriptSource struct {
	ticks []adc.Tick
	at    int
}

func (s *scriptSource) ReadTicks(ctx context.Context, buf []adc.Tick) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.at >= len(s.ticks) {
		return 0, io.EOF
	}
	n := copy(buf, s.ticks[s.at:])
	s.at += n
	return n, nil
}

// Test Run drains a source to exhaustion and returns cleanly.
func TestDigitizer_RunToEOF(t *testing.T) {
	cfg := testConfig()
	src := &scriptSource{}
	for i := 0; i < 3000; i++ {
		src.ticks = append(src.ticks, tk(0, 0, 0, adc.Sample(i)))
	}
	cfg.Source = src
	cfg.BatchTicks = 256
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := d.Counters().Ticks; got != 3000 {
		t.Fatalf("Ticks = %d, want 3000", got)
	}
}

func TestDigitizer_RunWithoutSource(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("Run = nil without a source")
	}
}

type failSource struct{}

func (failSource) ReadTicks(context.Context, []adc.Tick) (int, error) {
	return 0, errors.New("bus fault")
}

func TestDigitizer_RunSourceError(t *testing.T) {
	cfg := testConfig()
	cfg.Source = failSource{}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.Run(context.Background())
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Run = %v, want wrapped source error", err)
	}
}

// Test New rejects an invalid capture register set up front.
func TestDigitizer_NewRejectsBadCapture(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Rate = 7
	if _, err := New(cfg); !errors.Is(err, capture.ErrConfig) {
		t.Fatalf("New = %v, want capture.ErrConfig", err)
	}
}

func TestDigitizer_SetCaptureConfig(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.SetCaptureConfig(capture.Config{NS: 8, Rate: 9}); !errors.Is(err, capture.ErrConfig) {
		t.Fatalf("bad config = %v, want capture.ErrConfig", err)
	}
	if err := d.SetCaptureConfig(capture.Config{NS: 8, Rate: 2, Average: true, Source: capture.SourceTrig}); err != nil {
		t.Fatalf("SetCaptureConfig: %v", err)
	}
	if d.Status() != capture.Idle {
		t.Fatalf("status = %v, want idle after reconfigure", d.Status())
	}
}

// Test Reset returns the whole model to power-on state.
func TestDigitizer_Reset(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Arm()
	d.Step([]adc.Tick{
		tk(0, 0, 0, 0),
		tk(3500, 3500, 3500, 1),
	})
	d.Reset()

	c := d.Counters()
	if c.Ticks != 0 || c.TrigEvents != 0 || c.ACPEvents != 0 || c.ARPEvents != 0 || c.Overruns != 0 {
		t.Fatalf("counters after Reset = %+v, want zeros", c)
	}
	if d.Status() != capture.Idle {
		t.Fatalf("status = %v, want idle", d.Status())
	}
}

// Test threshold moves through the register page keep the stale mode,
// and a full reconfigure re-derives it.
func TestDigitizer_ThresholdRegisterSemantics(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Arm()

	// Swap the trigger comparison points without a reset: stale normal
	// mode now relaxes below 3000 and fires above 500.
	d.SetThresholds(StreamTrig, 500, 3000)
	d.Step([]adc.Tick{
		tk(1000, 0, 0, 1), // relaxes (1000 <= 3000)
		tk(1000, 0, 0, 2), // fires (1000 >= 500), window opens
		tk(0, 0, 0, 3),
		tk(0, 0, 0, 4),
		tk(0, 0, 0, 5),
	})
	if d.Status() != capture.Fired {
		t.Fatalf("status = %v, want fired under stale mode", d.Status())
	}

	// A full detector reconfigure re-derives the mode from the same
	// ordering: now inverted, firing on the downward crossing.
	d.SetTriggerConfig(StreamTrig, trigger.Config{
		Excite: 500, Relax: 3000, Bypass: true, Enabled: true,
	})
	dst := make([]adc.Sample, 4)
	d.TakePulse(dst) // re-arm
	d.Step([]adc.Tick{
		tk(3500, 0, 0, 6), // relaxes (>= 3000)
		tk(400, 0, 0, 7),  // fires (<= 500)
		tk(0, 0, 0, 8),
		tk(0, 0, 0, 9),
	})
	if d.Status() != capture.Fired {
		t.Fatalf("status = %v, want fired from inverted crossing", d.Status())
	}
}

// Test the capture start event follows the configured source: an azimuth
// or revolution event opens the window, a radar trigger does not, and a
// second source event mid-capture is dropped and counted.
func TestDigitizer_AlternateTriggerSources(t *testing.T) {
	cases := []struct {
		name   string
		source capture.TriggerSource
		start  adc.Tick
		stray  adc.Tick
	}{
		{"acp", capture.SourceACP, tk(0, 3500, 0, 10), tk(0, 3500, 0, 30)},
		{"arp", capture.SourceARP, tk(0, 0, 3500, 10), tk(0, 0, 3500, 30)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stats := &countingStats{}
			cfg := testConfig()
			cfg.Capture.Source = tc.source
			cfg.Stats = stats
			d, err := New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			d.Arm()

			d.Step([]adc.Tick{
				tk(0, 0, 0, 0),    // all detectors relax
				tk(3500, 0, 0, 1), // radar trigger alone must not open the window
			})
			if d.Status() != capture.Armed {
				t.Fatalf("status after radar trigger = %v, want still armed", d.Status())
			}

			d.Step([]adc.Tick{
				tc.start,        // source event opens the window
				tk(0, 0, 0, 20), // source relaxes
				tc.stray,        // second source event mid-capture
				tk(0, 0, 0, 40), // window complete
			})
			if d.Status() != capture.Fired {
				t.Fatalf("status = %v, want fired on %s event", d.Status(), tc.source)
			}
			if got := stats.overruns.Load(); got != 1 {
				t.Fatalf("overruns = %d, want 1 from the mid-capture start event", got)
			}

			dst := make([]adc.Sample, 4)
			if _, ok := d.TakePulse(dst); !ok {
				t.Fatal("TakePulse failed")
			}
			for i, want := range []adc.Sample{10, 20, 30, 40} {
				if dst[i] != want {
					t.Fatalf("window = %v, want [10 20 30 40]", dst)
				}
			}
		})
	}
}

func TestStreamString(t *testing.T) {
	cases := map[Stream]string{
		StreamTrig: "trig", StreamACP: "acp", StreamARP: "arp", Stream(9): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Stream(%d).String() = %q, want %q", s, got, want)
		}
	}
}
