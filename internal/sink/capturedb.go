package sink

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/db"
	"github.com/lingx107/digdar/internal/pulse"
)

// CaptureDBConfig configures the sqlite capture sink. The radar mode and
// site facts are recorded once per run alongside the digitize mode.
type CaptureDBConfig struct {
	Path   string       // sqlite database file
	Decim  int          // digitizer decimation recorded in digitize_mode
	NS     int          // samples per pulse recorded in digitize_mode
	Radar  db.RadarMode // transmitter facts for this installation
	Site   db.Geo       // antenna position
	Retain string       // retention policy tag
	Stats  StatsSink
}

// DefaultCaptureDBConfig returns a config populated with the survey facts
// for the installed magnetron and antenna site.
func DefaultCaptureDBConfig(path string, decim, ns int) CaptureDBConfig {
	return CaptureDBConfig{
		Path:  path,
		Decim: decim,
		NS:    ns,
		Radar: db.RadarMode{
			PowerWatts: 25e3,
			PulseLenNs: 50,
			PRFHz:      1800,
			RPM:        28,
		},
		Site: db.Geo{
			Latitude:  45.371907,
			Longitude: -64.402584,
			Altitude:  30,
			Heading:   0,
		},
		Retain: "full",
	}
}

// CaptureDB persists pulse chunks to the sqlite capture database, one
// transaction per chunk.
type CaptureDB struct {
	db    *db.DB
	runID string
	stats StatsSink
	blob  []byte
	rows  []db.PulseRow
}

// NewCaptureDB opens the capture database, applies migrations, and records
// the run row plus the one-time mode and site facts.
func NewCaptureDB(cfg CaptureDBConfig) (*CaptureDB, error) {
	if cfg.Decim < 1 {
		cfg.Decim = 1
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}

	database, err := db.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture db: %w", err)
	}
	if err := database.MigrateUp(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate capture db: %w", err)
	}

	runID := uuid.New().String()
	if err := database.InsertRun(runID, time.Now(), cfg.Retain); err != nil {
		database.Close()
		return nil, err
	}
	if err := database.RecordRadarMode(runID, cfg.Radar); err != nil {
		database.Close()
		return nil, err
	}

	// Sample values are scaled so full range survives interval summing at
	// low decimation.
	scale := 16383.0
	if cfg.Decim <= 4 {
		scale *= float64(cfg.Decim)
	}
	mode := db.DigitizeMode{
		RateHz:     float64(adc.TickHz) / float64(cfg.Decim),
		FormatBits: 16,
		Scale:      scale,
		NS:         cfg.NS,
	}
	if err := database.RecordDigitizeMode(runID, mode); err != nil {
		database.Close()
		return nil, err
	}
	if err := database.RecordGeo(runID, time.Now(), cfg.Site); err != nil {
		database.Close()
		return nil, err
	}

	return &CaptureDB{db: database, runID: runID, stats: cfg.Stats}, nil
}

// RunID returns the uuid assigned to this capture run.
func (c *CaptureDB) RunID() string {
	return c.runID
}

// WriteChunk appends the chunk's pulses in a single transaction.
func (c *CaptureDB) WriteChunk(recs []pulse.Record) error {
	if len(recs) == 0 {
		return nil
	}

	total := 0
	for i := range recs {
		total += 2 * len(recs[i].Samples)
	}
	if cap(c.blob) < total {
		c.blob = make([]byte, 0, total)
	}
	c.blob = c.blob[:0]
	c.rows = c.rows[:0]

	for i := range recs {
		r := &recs[i]
		start := len(c.blob)
		c.blob = pulse.AppendSampleBytes(c.blob, r.Samples)

		var ts float64
		if t := r.Meta.Timestamp(); !t.IsZero() {
			ts = float64(t.UnixNano()) / 1e9
		}

		c.rows = append(c.rows, db.PulseRow{
			TS:        ts,
			TrigCount: r.Meta.TrigCount,
			TrigClock: r.Meta.TrigClock,
			ACPClock:  r.Meta.ACPClock,
			ARPCount:  r.Meta.ARPCount,
			Samples:   c.blob[start:len(c.blob):len(c.blob)],
		})
	}

	if err := c.db.InsertPulses(c.runID, c.rows); err != nil {
		return err
	}
	c.stats.AddSinkBytes(total)
	return nil
}

// Close closes the underlying database.
func (c *CaptureDB) Close() error {
	return c.db.Close()
}
