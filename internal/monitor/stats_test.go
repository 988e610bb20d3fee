package monitor

import (
	"bytes"
	"log"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/lingx107/digdar/internal/pulse"
)

func TestPulseStatsCountersAndReset(t *testing.T) {
	ps := NewPulseStats()

	ps.AddPulse(&pulse.Metadata{TrigClock: 1000}, 3000)
	ps.AddPulse(&pulse.Metadata{TrigClock: 2000}, 3000)
	ps.AddTimeout()
	ps.AddOverrun()
	ps.AddOverrun()
	ps.AddRingDrop()
	ps.AddSectorDrop()
	ps.AddChunk()
	ps.AddSinkBytes(1024)
	ps.AddSinkRetry()

	counts, _, _, _, duration := ps.GetAndReset()
	if counts.Pulses != 2 || counts.Samples != 6000 {
		t.Fatalf("pulses/samples = %d/%d, want 2/6000", counts.Pulses, counts.Samples)
	}
	if counts.Timeouts != 1 || counts.Overruns != 2 || counts.RingDrops != 1 {
		t.Fatalf("timeouts/overruns/ringdrops = %d/%d/%d, want 1/2/1",
			counts.Timeouts, counts.Overruns, counts.RingDrops)
	}
	if counts.SectorDrops != 1 || counts.Chunks != 1 || counts.Bytes != 1024 || counts.SinkRetries != 1 {
		t.Fatalf("sectordrops/chunks/bytes/retries = %d/%d/%d/%d",
			counts.SectorDrops, counts.Chunks, counts.Bytes, counts.SinkRetries)
	}
	if duration <= 0 {
		t.Fatalf("duration = %v, want positive", duration)
	}

	counts, _, _, _, _ = ps.GetAndReset()
	if counts != (Counts{}) {
		t.Fatalf("counts after reset = %+v, want zeros", counts)
	}
}

// Test PRF estimation from consecutive trigger clocks: 62500 ticks at
// 125 MHz is exactly 2 kHz.
func TestPulseStatsPRF(t *testing.T) {
	ps := NewPulseStats()
	for i := uint64(1); i <= 4; i++ {
		ps.AddPulse(&pulse.Metadata{TrigClock: i * 62500}, 100)
	}

	_, prf, stddev, _, _ := ps.GetAndReset()
	if math.Abs(prf-2000) > 1e-9 {
		t.Fatalf("prf = %v, want 2000", prf)
	}
	if stddev != 0 {
		t.Fatalf("stddev = %v, want 0 for a steady trigger", stddev)
	}
}

func TestPulseStatsPRFSpread(t *testing.T) {
	ps := NewPulseStats()
	// Alternating intervals: 2000 Hz and 1000 Hz.
	ps.AddPulse(&pulse.Metadata{TrigClock: 62500}, 1)
	ps.AddPulse(&pulse.Metadata{TrigClock: 125000}, 1)
	ps.AddPulse(&pulse.Metadata{TrigClock: 250000}, 1)

	_, prf, stddev, _, _ := ps.GetAndReset()
	if math.Abs(prf-1500) > 1e-9 {
		t.Fatalf("prf = %v, want 1500", prf)
	}
	if math.Abs(stddev-math.Sqrt(500000)) > 1e-6 {
		t.Fatalf("stddev = %v, want %v", stddev, math.Sqrt(500000))
	}
}

// Test a single interval reports no spread rather than NaN.
func TestPulseStatsPRFSingleDelta(t *testing.T) {
	ps := NewPulseStats()
	ps.AddPulse(&pulse.Metadata{TrigClock: 62500}, 1)
	ps.AddPulse(&pulse.Metadata{TrigClock: 125000}, 1)

	_, prf, stddev, _, _ := ps.GetAndReset()
	if prf != 2000 {
		t.Fatalf("prf = %v, want 2000", prf)
	}
	if stddev != 0 {
		t.Fatalf("stddev = %v, want 0", stddev)
	}
}

// Test RPM from revolution clock deltas, and that the estimate carries
// across counter resets.
func TestPulseStatsRPM(t *testing.T) {
	ps := NewPulseStats()

	// Pulses before the first revolution carry no ARP clock.
	ps.AddPulse(&pulse.Metadata{TrigClock: 100}, 1)
	ps.AddPulse(&pulse.Metadata{TrigClock: 200, ARPClock: 250_000_000}, 1)
	ps.AddPulse(&pulse.Metadata{TrigClock: 300, ARPClock: 500_000_000}, 1)

	_, _, _, rpm, _ := ps.GetAndReset()
	if math.Abs(rpm-30) > 1e-9 {
		t.Fatalf("rpm = %v, want 30 (quarter-billion ticks per revolution)", rpm)
	}

	_, _, _, rpm, _ = ps.GetAndReset()
	if math.Abs(rpm-30) > 1e-9 {
		t.Fatalf("rpm after reset = %v, want 30 retained", rpm)
	}
}

func TestPulseStatsLogAndSnapshot(t *testing.T) {
	ps := NewPulseStats()

	// Nothing recorded: no log line, no snapshot.
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	ps.LogStats()
	if buf.Len() != 0 {
		t.Fatalf("logged %q with nothing to report", buf.String())
	}
	if ps.GetLatestSnapshot() != nil {
		t.Fatal("snapshot present with nothing to report")
	}

	ps.AddPulse(&pulse.Metadata{TrigClock: 62500}, 500)
	ps.AddPulse(&pulse.Metadata{TrigClock: 125000}, 500)
	ps.AddTimeout()
	ps.AddOverrun()
	ps.AddSinkBytes(4096)
	ps.LogStats()

	line := buf.String()
	for _, want := range []string{
		"Pulse stats (/sec):", "pulses", "samples",
		"prf 2000.0 Hz", "1 timeouts", "1 triggers dropped mid-capture",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}

	snap := ps.GetLatestSnapshot()
	if snap == nil {
		t.Fatal("no snapshot after LogStats")
	}
	if snap.PulsesPerSec <= 0 || snap.Timeouts != 1 || snap.Overruns != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// The returned snapshot is a copy.
	snap.Timeouts = 99
	if again := ps.GetLatestSnapshot(); again.Timeouts != 1 {
		t.Fatalf("stored snapshot mutated through the returned copy: %+v", again)
	}
}

func TestPulseStatsUptime(t *testing.T) {
	ps := NewPulseStats()
	if ps.GetUptime() < 0 {
		t.Fatal("negative uptime")
	}
}

// Test the counters are safe under concurrent writers.
func TestPulseStatsConcurrent(t *testing.T) {
	ps := NewPulseStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ps.AddTimeout()
				ps.AddSinkBytes(2)
			}
		}()
	}
	wg.Wait()

	counts, _, _, _, _ := ps.GetAndReset()
	if counts.Timeouts != 800 || counts.Bytes != 1600 {
		t.Fatalf("timeouts/bytes = %d/%d, want 800/1600", counts.Timeouts, counts.Bytes)
	}
}

func TestFormatWithCommas(t *testing.T) {
	cases := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-1234:   "-1,234",
	}
	for n, want := range cases {
		if got := FormatWithCommas(n); got != want {
			t.Errorf("FormatWithCommas(%d) = %q, want %q", n, got, want)
		}
	}
}
