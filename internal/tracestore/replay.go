package tracestore

import (
	"fmt"
	"sort"

	"github.com/redline-data/sfe/internal/config"
	"github.com/redline-data/sfe/internal/sfe"
)

// replayTick is one input to the engine during replay, ordered by arrival
// timestamp the way the live event loop would have received it.
type replayTick struct {
	tMillis int64
	accel   *sfe.AccelSample
	gps     *sfe.GpsFix
}

// ReplayPoint pairs an engine snapshot taken right after one tick with any
// events that fired on that tick, for charting and assertion.
type ReplayPoint struct {
	TMillis  int64
	Snapshot sfe.Snapshot
	Events   []sfe.Event
}

// Replay re-runs every recorded accelerometer sample and GPS fix for runID,
// in their original arrival order, through a fresh Engine constructed from
// cfg and started at the first recorded tick's timestamp, and returns the
// resulting snapshot/event trace. The recorded run start time and any
// accelerometer bias the live engine carried over from earlier runs are not
// restored, so the trace matches the original run tick-for-tick only when
// that run began on a freshly constructed engine at its first tick.
func Replay(db *DB, runID string, cfg *config.TuningConfig) ([]ReplayPoint, error) {
	ticks, err := loadTicks(db, runID)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("tracestore: no recorded ticks for run %q", runID)
	}

	engine := sfe.NewEngine(cfg)
	engine.StartRun(ticks[0].tMillis)

	points := make([]ReplayPoint, 0, len(ticks))
	for _, tick := range ticks {
		switch {
		case tick.accel != nil:
			a := tick.accel
			engine.PushAccel(a.AX, a.AY, a.AZ, a.TMillis, a.Linear)
		case tick.gps != nil:
			g := tick.gps
			engine.PushGPS(g.Lat, g.Lon, g.SpeedMS, g.AccuracyM, g.TMillis)
		}
		points = append(points, ReplayPoint{
			TMillis:  tick.tMillis,
			Snapshot: engine.Snapshot(),
			Events:   engine.DrainEvents(),
		})
	}
	return points, nil
}

func loadTicks(db *DB, runID string) ([]replayTick, error) {
	var ticks []replayTick

	rows, err := db.Query(`SELECT t_millis, ax, ay, az, linear FROM accel_samples WHERE run_id = ? ORDER BY t_millis`, runID)
	if err != nil {
		return nil, fmt.Errorf("tracestore: load accel samples: %w", err)
	}
	for rows.Next() {
		var s sfe.AccelSample
		if err := rows.Scan(&s.TMillis, &s.AX, &s.AY, &s.AZ, &s.Linear); err != nil {
			rows.Close()
			return nil, fmt.Errorf("tracestore: scan accel sample: %w", err)
		}
		sample := s
		ticks = append(ticks, replayTick{tMillis: s.TMillis, accel: &sample})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracestore: iterate accel samples: %w", err)
	}

	gpsRows, err := db.Query(`SELECT t_millis, lat, lon, speed_ms, accuracy_m FROM gps_fixes WHERE run_id = ? ORDER BY t_millis`, runID)
	if err != nil {
		return nil, fmt.Errorf("tracestore: load gps fixes: %w", err)
	}
	for gpsRows.Next() {
		var f sfe.GpsFix
		var speed *float64
		if err := gpsRows.Scan(&f.TMillis, &f.Lat, &f.Lon, &speed, &f.AccuracyM); err != nil {
			gpsRows.Close()
			return nil, fmt.Errorf("tracestore: scan gps fix: %w", err)
		}
		f.SpeedMS = speed
		fix := f
		ticks = append(ticks, replayTick{tMillis: f.TMillis, gps: &fix})
	}
	gpsRows.Close()
	if err := gpsRows.Err(); err != nil {
		return nil, fmt.Errorf("tracestore: iterate gps fixes: %w", err)
	}

	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].tMillis < ticks[j].tMillis })
	return ticks, nil
}
