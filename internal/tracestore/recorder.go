package tracestore

import (
	"fmt"

	"github.com/redline-data/sfe/internal/sfe"
)

// Recorder persists one run's samples, fixes, snapshots, and events to a
// trace store DB as they occur, so the run can be replayed bit-for-bit
// later.
type Recorder struct {
	db    *DB
	runID string
}

// NewRecorder begins recording a run under runID, inserting its runs row.
func NewRecorder(db *DB, runID string, startedAtMillis int64, label string) (*Recorder, error) {
	_, err := db.Exec(`INSERT INTO runs (run_id, started_at_ms, label) VALUES (?, ?, ?)`,
		runID, startedAtMillis, label)
	if err != nil {
		return nil, fmt.Errorf("tracestore: insert run: %w", err)
	}
	return &Recorder{db: db, runID: runID}, nil
}

// Stop marks the run's stop time.
func (r *Recorder) Stop(stoppedAtMillis int64) error {
	_, err := r.db.Exec(`UPDATE runs SET stopped_at_ms = ? WHERE run_id = ?`, stoppedAtMillis, r.runID)
	if err != nil {
		return fmt.Errorf("tracestore: stop run: %w", err)
	}
	return nil
}

// RecordAccel appends one accelerometer sample to the trace.
func (r *Recorder) RecordAccel(s sfe.AccelSample) error {
	_, err := r.db.Exec(
		`INSERT INTO accel_samples (run_id, t_millis, ax, ay, az, linear) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, s.TMillis, s.AX, s.AY, s.AZ, s.Linear)
	if err != nil {
		return fmt.Errorf("tracestore: record accel: %w", err)
	}
	return nil
}

// RecordGPS appends one GPS fix to the trace.
func (r *Recorder) RecordGPS(f sfe.GpsFix) error {
	var speed interface{}
	if f.SpeedMS != nil {
		speed = *f.SpeedMS
	}
	_, err := r.db.Exec(
		`INSERT INTO gps_fixes (run_id, t_millis, lat, lon, speed_ms, accuracy_m) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, f.TMillis, f.Lat, f.Lon, speed, f.AccuracyM)
	if err != nil {
		return fmt.Errorf("tracestore: record gps: %w", err)
	}
	return nil
}

// RecordSnapshot appends one fused-state snapshot to the trace.
func (r *Recorder) RecordSnapshot(tMillis int64, snap sfe.Snapshot) error {
	_, err := r.db.Exec(
		`INSERT INTO snapshots (run_id, t_millis, speed_ms, distance_m, moving, launched, calibrated, gps_reliable, gps_reliability_score, sigma)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, tMillis, snap.SpeedMS, snap.DistanceM, snap.Moving, snap.Launched,
		snap.Calibrated, snap.GPSReliable, snap.GPSReliabilityScore, snap.Sigma)
	if err != nil {
		return fmt.Errorf("tracestore: record snapshot: %w", err)
	}
	return nil
}

// RecordEvent appends one detector event to the trace.
func (r *Recorder) RecordEvent(tMillis int64, ev sfe.Event) error {
	_, err := r.db.Exec(
		`INSERT INTO events (run_id, t_millis, kind, event_id, t_since_basis, speed_at_crossing_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, tMillis, eventKindName(ev.Kind), ev.ID, ev.TSinceEventBasis, ev.SpeedAtCrossingMS)
	if err != nil {
		return fmt.Errorf("tracestore: record event: %w", err)
	}
	return nil
}

func eventKindName(k sfe.EventKind) string {
	switch k {
	case sfe.EventLaunchDetected:
		return "launch"
	case sfe.EventSpeedCheckpoint:
		return "speed_checkpoint"
	case sfe.EventDistanceMilestone:
		return "distance_milestone"
	default:
		return "unknown"
	}
}
