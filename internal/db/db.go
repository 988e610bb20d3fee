// Package db manages the sqlite capture database. The schema is owned
// by the embedded migrations; callers open the database and run
// MigrateUp before writing.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the capture database at path.
// No schema initialization happens here; migrations manage the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// RadarMode describes the transmitter configuration in effect for a run.
type RadarMode struct {
	PowerWatts float64
	PulseLenNs float64
	PRFHz      float64
	RPM        float64
}

// DigitizeMode describes the digitizer configuration in effect for a run.
type DigitizeMode struct {
	RateHz     float64
	FormatBits int
	Scale      float64
	NS         int
}

// Geo is the fixed antenna site position.
type Geo struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Heading   float64
}

// PulseRow is one captured pulse ready for insertion. TS is seconds
// since the unix epoch; Samples holds little-endian int16 video samples.
type PulseRow struct {
	TS           float64
	TrigCount    uint64
	TrigClock    uint64
	ACPClock     uint64
	ARPCount     uint64
	Elevation    float64
	Polarization float64
	Samples      []byte
}

// InsertRun records the start of a capture run.
func (db *DB) InsertRun(runID string, startedAt time.Time, retain string) error {
	_, err := db.Exec(
		`INSERT INTO runs (run_uuid, started_at, retain) VALUES (?, ?, ?)`,
		runID, startedAt.UTC(), retain,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordRadarMode records the transmitter mode for a run.
func (db *DB) RecordRadarMode(runID string, m RadarMode) error {
	_, err := db.Exec(
		`INSERT INTO radar_mode (run_uuid, power_watts, pulse_len_ns, prf_hz, rpm)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, m.PowerWatts, m.PulseLenNs, m.PRFHz, m.RPM,
	)
	if err != nil {
		return fmt.Errorf("insert radar mode: %w", err)
	}
	return nil
}

// RecordDigitizeMode records the digitizer mode for a run.
func (db *DB) RecordDigitizeMode(runID string, m DigitizeMode) error {
	_, err := db.Exec(
		`INSERT INTO digitize_mode (run_uuid, rate_hz, format_bits, scale, ns)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, m.RateHz, m.FormatBits, m.Scale, m.NS,
	)
	if err != nil {
		return fmt.Errorf("insert digitize mode: %w", err)
	}
	return nil
}

// RecordGeo records the antenna site position for a run.
func (db *DB) RecordGeo(runID string, ts time.Time, g Geo) error {
	_, err := db.Exec(
		`INSERT INTO geo (run_uuid, ts, latitude, longitude, altitude, heading)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, ts.UTC(), g.Latitude, g.Longitude, g.Altitude, g.Heading,
	)
	if err != nil {
		return fmt.Errorf("insert geo: %w", err)
	}
	return nil
}

// InsertPulses appends a batch of pulses in a single transaction.
func (db *DB) InsertPulses(runID string, rows []PulseRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin pulse tx: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO pulses (
			run_uuid, ts, trig_count, trig_clock, acp_clock,
			arp_count, elevation, polarization, samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare pulse insert: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		_, err := stmt.Exec(
			runID, r.TS, int64(r.TrigCount), int64(r.TrigClock),
			int64(r.ACPClock), int64(r.ARPCount),
			r.Elevation, r.Polarization, r.Samples,
		)
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert pulse: %w", err)
		}
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pulse tx: %w", err)
	}
	return nil
}

// PulseCount returns the number of pulses stored for a run.
func (db *DB) PulseCount(runID string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM pulses WHERE run_uuid = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pulses: %w", err)
	}
	return n, nil
}
