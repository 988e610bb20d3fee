// Package monitor tracks acquisition statistics for the digitizer
// pipeline and logs a periodic one-line summary.
package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/pulse"
)

// maxTrigDeltas bounds the inter-trigger sample window between resets.
const maxTrigDeltas = 65536

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	PulsesPerSec  float64
	MBPerSec      float64
	SamplesPerSec float64
	PRFHz         float64
	PRFStddevHz   float64
	RPM           float64
	Timeouts      int64
	Overruns      int64
	RingDrops     int64
	SectorDrops   int64
	Chunks        int64
	SinkRetries   int64
	Timestamp     time.Time
}

// Counts holds the raw counters accumulated since the last reset.
type Counts struct {
	Pulses      int64
	Samples     int64
	Bytes       int64
	Timeouts    int64
	Overruns    int64
	RingDrops   int64
	SectorDrops int64
	Chunks      int64
	SinkRetries int64
}

// PulseStats tracks pulse statistics with thread-safe operations. It
// satisfies the stats interfaces of the digitizer, reader, consumer and
// sink packages.
type PulseStats struct {
	mu             sync.Mutex
	counts         Counts
	lastTrigClock  uint64
	trigDeltas     []float64
	lastARPClock   uint64
	revTicks       float64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPulseStats creates a new PulseStats instance
func NewPulseStats() *PulseStats {
	now := time.Now()
	return &PulseStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPulse records one delivered pulse and its trigger timing.
func (ps *PulseStats) AddPulse(md *pulse.Metadata, samples int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.Pulses++
	ps.counts.Samples += int64(samples)

	if ps.lastTrigClock != 0 && md.TrigClock > ps.lastTrigClock {
		if len(ps.trigDeltas) < maxTrigDeltas {
			ps.trigDeltas = append(ps.trigDeltas, float64(md.TrigClock-ps.lastTrigClock))
		}
	}
	ps.lastTrigClock = md.TrigClock

	if ps.lastARPClock != 0 && md.ARPClock > ps.lastARPClock {
		ps.revTicks = float64(md.ARPClock - ps.lastARPClock)
	}
	if md.ARPClock != 0 {
		ps.lastARPClock = md.ARPClock
	}
}

// AddTimeout increments the pulse wait timeout count
func (ps *PulseStats) AddTimeout() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.Timeouts++
}

// AddOverrun increments the dropped trigger count
func (ps *PulseStats) AddOverrun() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.Overruns++
}

// AddRingDrop increments the ring-full drop count
func (ps *PulseStats) AddRingDrop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.RingDrops++
}

// AddSectorDrop increments the blanked sector drop count
func (ps *PulseStats) AddSectorDrop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.SectorDrops++
}

// AddChunk records one delivered chunk
func (ps *PulseStats) AddChunk() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.Chunks++
}

// AddSinkBytes adds to the sink byte count
func (ps *PulseStats) AddSinkBytes(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.Bytes += int64(bytes)
}

// AddSinkRetry increments the partial write retry count
func (ps *PulseStats) AddSinkRetry() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.counts.SinkRetries++
}

// GetAndReset returns current stats and resets counters
func (ps *PulseStats) GetAndReset() (counts Counts, prfHz, prfStddevHz, rpm float64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	counts = ps.counts

	if len(ps.trigDeltas) > 0 {
		prfs := make([]float64, len(ps.trigDeltas))
		for i, d := range ps.trigDeltas {
			prfs[i] = float64(adc.TickHz) / d
		}
		prfHz, prfStddevHz = stat.MeanStdDev(prfs, nil)
		if len(prfs) < 2 {
			prfStddevHz = 0
		}
	}
	if ps.revTicks > 0 {
		rpm = 60 * float64(adc.TickHz) / ps.revTicks
	}

	ps.counts = Counts{}
	ps.trigDeltas = ps.trigDeltas[:0]
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics and stores a snapshot
func (ps *PulseStats) LogStats() {
	counts, prfHz, prfStddevHz, rpm, duration := ps.GetAndReset()
	if counts.Pulses == 0 && counts.Timeouts == 0 && counts.Overruns == 0 {
		return
	}

	pulsesPerSec := float64(counts.Pulses) / duration.Seconds()
	mbPerSec := float64(counts.Bytes) / duration.Seconds() / (1024 * 1024)
	samplesPerSec := float64(counts.Samples) / duration.Seconds()

	ps.mu.Lock()
	ps.latestSnapshot = &StatsSnapshot{
		PulsesPerSec:  pulsesPerSec,
		MBPerSec:      mbPerSec,
		SamplesPerSec: samplesPerSec,
		PRFHz:         prfHz,
		PRFStddevHz:   prfStddevHz,
		RPM:           rpm,
		Timeouts:      counts.Timeouts,
		Overruns:      counts.Overruns,
		RingDrops:     counts.RingDrops,
		SectorDrops:   counts.SectorDrops,
		Chunks:        counts.Chunks,
		SinkRetries:   counts.SinkRetries,
		Timestamp:     time.Now(),
	}
	ps.mu.Unlock()

	logMsg := fmt.Sprintf("Pulse stats (/sec): %.2f MB, %.1f pulses, %s samples",
		mbPerSec, pulsesPerSec, FormatWithCommas(int64(samplesPerSec)))
	if prfHz > 0 {
		logMsg += fmt.Sprintf(", prf %.1f Hz ±%.1f", prfHz, prfStddevHz)
	}
	if rpm > 0 {
		logMsg += fmt.Sprintf(", %.1f rpm", rpm)
	}
	if counts.Timeouts > 0 {
		logMsg += fmt.Sprintf(", %d timeouts", counts.Timeouts)
	}
	if counts.Overruns > 0 {
		logMsg += fmt.Sprintf(", %d triggers dropped mid-capture", counts.Overruns)
	}
	if counts.RingDrops > 0 {
		logMsg += fmt.Sprintf(", %d dropped on ring full", counts.RingDrops)
	}
	if counts.SectorDrops > 0 {
		logMsg += fmt.Sprintf(", %d blanked", counts.SectorDrops)
	}
	if counts.SinkRetries > 0 {
		logMsg += fmt.Sprintf(", %d sink retries", counts.SinkRetries)
	}

	log.Print(logMsg)
}

// GetUptime returns the time since the stats were created
func (ps *PulseStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot
func (ps *PulseStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
