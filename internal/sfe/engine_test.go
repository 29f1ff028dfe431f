package sfe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

// feedAccel pushes samples at hz Hz for durationS seconds, starting at
// startMillis, calling fn before each push to let the caller vary the
// sample per tick.
func feedAccel(e *Engine, startMillis int64, hz float64, durationS float64, fn func(tSec float64) (ax, ay, az float64, linear bool)) int64 {
	dtMillis := int64(1000.0 / hz)
	n := int(durationS * hz)
	t := startMillis
	for i := 0; i < n; i++ {
		tSec := float64(t-startMillis) / 1000.0
		ax, ay, az, linear := fn(tSec)
		e.PushAccel(ax, ay, az, t, linear)
		t += dtMillis
	}
	return t
}

func TestScenarioStaticPhone(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 5.0, func(tSec float64) (float64, float64, float64, bool) {
		return 0.03, 0.02, 0.03, true
	})

	snap := e.Snapshot()
	assert.Equal(t, 0.0, snap.SpeedMS, "static phone must report zero speed")
	assert.Equal(t, 0.0, snap.DistanceM, "static phone must accumulate zero distance")
}

func TestScenarioCleanZeroToSixty(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	// Establish a stationary calibration first so the run isn't stuck
	// waiting on the moving-start evaluation without any GPS fixes.
	feedAccel(e, 0, 100, 6.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	start := int64(6100)
	totalS := 9.0
	var lastSnap Snapshot
	var checkpointSeen bool
	var checkpointAtS float64

	dtMillis := int64(10) // 100Hz
	n := int(totalS * 100)
	tMillis := start
	for i := 0; i < n; i++ {
		tSec := float64(tMillis-start) / 1000.0
		e.PushAccel(3.0, 0, 0, tMillis, true)

		vGps := 27.0 * (tSec / totalS)
		e.PushGPS(0, 0, f64(vGps), 5, tMillis)

		for _, ev := range e.DrainEvents() {
			if ev.Kind == EventSpeedCheckpoint && ev.ID == "0-60mph" {
				checkpointSeen = true
				checkpointAtS = tSec
			}
		}
		lastSnap = e.Snapshot()
		tMillis += dtMillis
	}

	require.True(t, checkpointSeen, "expected a 0-60mph checkpoint to fire")
	assert.Greater(t, checkpointAtS, 5.0, "checkpoint should not fire implausibly early")
	assert.LessOrEqual(t, checkpointAtS, totalS, "checkpoint should fire within the run")
	assert.Greater(t, lastSnap.DistanceM, 0.0)
}

func TestScenarioGPSOutageDuringCruise(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 6.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	start := int64(6100)
	tMillis := start
	// 5s cruise at steady 20 m/s.
	for i := 0; i < 500; i++ {
		e.PushAccel(2.0, 0, 0, tMillis, true)
		e.PushGPS(0, 0, f64(20.0), 5, tMillis)
		tMillis += 10
	}

	preOutage := e.Snapshot()
	require.Greater(t, preOutage.SpeedMS, 10.0, "should be cruising near 20 m/s before outage")

	// 8s outage with no GPS fixes. The residual magnitude sits below the
	// motion threshold but above the demotion band, so the gate keeps the
	// engine classified as moving while it coasts.
	for i := 0; i < 800; i++ {
		e.PushAccel(0.3, 0, 0, tMillis, true)
		tMillis += 10
	}

	outageSnap := e.Snapshot()
	assert.GreaterOrEqual(t, outageSnap.Sigma, 4.0, "sigma should grow substantially during an 8s outage")

	// GPS resumes at 20 m/s with good accuracy.
	e.PushGPS(0, 0, f64(20.0), 5, tMillis)
	e.PushAccel(2.0, 0, 0, tMillis, true)

	resumedSnap := e.Snapshot()
	assert.InDelta(t, 20.0, resumedSnap.SpeedMS, 5.0, "speed should be converging back toward 20 m/s after resumption")
}

func TestScenarioMovingStart(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	e.PushGPS(0, 0, f64(15.0), 8, 0)
	e.PushGPS(0, 0.0001, f64(15.0), 8, 500)
	e.PushGPS(0, 0.0002, f64(15.0), 8, 1000)

	// First accelerometer tick after the three fixes.
	e.PushAccel(1.0, 0, 0, 1010, true)

	snap := e.Snapshot()
	assert.True(t, snap.Calibrated, "moving start should mark the engine calibrated without a calibration window")
	assert.InDelta(t, 15.0, snap.SpeedMS, 3.0, "speed should initialize near the moving-start mean speed")
	assert.NotEqual(t, 0.0, snap.SpeedMS, "first tick after a moving start must not drop speed to zero")
}

func TestScenarioScreenLockGap(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 6.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	tMillis := int64(6100)
	for i := 0; i < 200; i++ {
		e.PushAccel(2.0, 0, 0, tMillis, true)
		e.PushGPS(0, 0, f64(20.0), 5, tMillis)
		tMillis += 10
	}

	gapStart := tMillis
	tMillis += 3000 // 3s screen-lock gap, no accel ticks
	e.PushGPS(0, 0, f64(20.0), 5, tMillis)
	e.PushAccel(2.0, 0, 0, tMillis, true)

	snap := e.Snapshot()
	assert.InDelta(t, 5.0, snap.Sigma, 0.01, "sigma should be reset to 5 immediately after a discarded gap tick")
	assert.InDelta(t, 20.0, snap.SpeedMS, 5.0, "speed should remain near 20 m/s, re-anchored to GPS")
	_ = gapStart
}

func TestInvariantSpeedNeverExceedsVMax(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 6.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	tMillis := int64(6100)
	for i := 0; i < 2000; i++ {
		e.PushAccel(50.0, 0, 0, tMillis, true)
		snap := e.Snapshot()
		assert.GreaterOrEqual(t, snap.SpeedMS, 0.0)
		assert.LessOrEqual(t, snap.SpeedMS, 100.0)
		tMillis += 10
	}
}

func TestInvariantDistanceMonotonic(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 3.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	tMillis := int64(3100)
	last := 0.0
	for i := 0; i < 1000; i++ {
		ax := 2.0
		if i%50 < 20 {
			ax = 0.05
		}
		e.PushAccel(ax, 0, 0, tMillis, true)
		snap := e.Snapshot()
		assert.GreaterOrEqual(t, snap.DistanceM, last)
		last = snap.DistanceM
		tMillis += 10
	}
}

func TestInvariantHardZeroForcesSpeedZero(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 3.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	tMillis := int64(3100)
	for i := 0; i < 500; i++ {
		e.PushAccel(0.01, 0, 0, tMillis, true)
		tMillis += 10
	}

	snap := e.Snapshot()
	assert.Equal(t, 0.0, snap.SpeedMS, "prolonged stationary stretch should force speed to zero by the fourth second")
}

func TestResetMatchesConstruction(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)
	e.PushAccel(5.0, 0, 0, 0, true)
	e.PushAccel(5.0, 0, 0, 10, true)

	fresh := NewEngine(nil)
	e.Reset()

	assert.Equal(t, fresh.Snapshot().SpeedMS, e.Snapshot().SpeedMS)
	assert.Equal(t, fresh.Snapshot().DistanceM, e.Snapshot().DistanceM)
	assert.Equal(t, fresh.Snapshot().Calibrated, e.Snapshot().Calibrated)
}

func TestGPSFixPullsFusedSpeedCloser(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(0)

	feedAccel(e, 0, 100, 6.1, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})

	tMillis := int64(6100)
	for i := 0; i < 300; i++ {
		e.PushAccel(2.0, 0, 0, tMillis, true)
		tMillis += 10
	}

	before := e.state.VFused

	// Three clean fixes to build up a strong reliability score, then a
	// fourth authoritative fix far from the current estimate.
	fixT := tMillis
	for i := 0; i < 3; i++ {
		e.PushGPS(0, 0, f64(before), 5, fixT)
		fixT += 200
	}
	preUpdateDiff := absFloat(e.state.VFused - 30.0)
	e.PushGPS(0, 0, f64(30.0), 5, fixT)
	after := e.state.VFused
	postUpdateDiff := absFloat(after - 30.0)

	assert.Less(t, postUpdateDiff, preUpdateDiff, "a reliable GPS fix should pull v_fused toward v_gps")
}

// TestScenarioQuarterMileSprint drives a full drag run end to end through
// the engine: a stationary hold, a hard launch, the 0-60 crossing, and the
// quarter-mile distance crossing, with GPS corroborating throughout. The
// event times are checked on the launch-relative basis.
func TestScenarioQuarterMileSprint(t *testing.T) {
	e := NewEngine(nil)

	// A quiet first run leaves the engine calibrated, so the sprint run
	// goes live as soon as its moving-start evaluation settles.
	e.StartRun(0)
	feedAccel(e, 0, 100, 6.5, func(tSec float64) (float64, float64, float64, bool) {
		return 0.02, 0.01, 0.01, true
	})
	e.StopRun(6500)

	start := int64(10000)
	e.StartRun(start)

	// Ground-truth speed profile: hold for 1.5s, pull 4.125 m/s^2 to
	// ~26.8 at 8.0s, ease to 3.0 m/s^2 until the 42 m/s cap.
	profile := func(rel float64) float64 {
		switch {
		case rel < 1.5:
			return 0
		case rel < 8.0:
			return 4.125 * (rel - 1.5)
		default:
			v := 26.8125 + 3.0*(rel-8.0)
			if v > 42 {
				v = 42
			}
			return v
		}
	}

	var (
		launchSeen, checkpointSeen, milestoneSeen bool

		launchAt       float64 // seconds since run start
		checkpointTime float64 // launch-relative
		milestoneTime  float64 // launch-relative
		milestoneSpeed float64
		crossedAt      float64 // seconds since run start when distance passed 1/4 mile
	)

	tMillis := start
	for i := 0; i < 2000; i++ { // 20s at 100Hz
		rel := float64(tMillis-start) / 1000.0

		if i%50 == 0 { // 2Hz GPS
			e.PushGPS(37.0, -122.0, f64(profile(rel)), 5, tMillis)
		}

		var ax float64
		switch {
		case rel < 1.5:
			ax = 0.05
		case rel < 8.0:
			ax = 4.125
		case rel < 13.1:
			ax = 3.0
		default:
			ax = 0.3
		}
		e.PushAccel(ax, 0, 0, tMillis, true)

		for _, ev := range e.DrainEvents() {
			switch {
			case ev.Kind == EventLaunchDetected:
				launchSeen = true
				launchAt = ev.TSinceEventBasis
			case ev.Kind == EventSpeedCheckpoint && ev.ID == "0-60mph":
				checkpointSeen = true
				checkpointTime = ev.TSinceEventBasis
			case ev.Kind == EventDistanceMilestone && ev.ID == "1/4mile":
				milestoneSeen = true
				milestoneTime = ev.TSinceEventBasis
				milestoneSpeed = ev.SpeedAtCrossingMS
			}
		}
		if crossedAt == 0 && e.Snapshot().DistanceM >= 402.336 {
			crossedAt = rel
		}
		tMillis += 10
	}

	require.True(t, launchSeen, "expected a launch during the sprint")
	assert.GreaterOrEqual(t, launchAt, 1.5, "launch cannot precede the throttle onset")
	assert.LessOrEqual(t, launchAt, 3.0, "launch should be detected shortly after onset")

	require.True(t, checkpointSeen, "expected the 0-60mph checkpoint to fire")
	absCheckpoint := launchAt + checkpointTime
	assert.InDelta(t, 8.3, absCheckpoint, 1.0, "0-60 crossing should land near the profile's 26.8 m/s point")
	assert.Less(t, checkpointTime, absCheckpoint, "checkpoint time must be on the launch-relative basis")

	require.True(t, milestoneSeen, "expected the 1/4mile milestone to fire")
	require.NotZero(t, crossedAt, "the run should cover a quarter mile")
	assert.InDelta(t, crossedAt-launchAt, milestoneTime, 0.05, "milestone time must be launch-relative")
	assert.InDelta(t, 42.0, milestoneSpeed, 3.0, "speed at the quarter-mile crossing should be near the profile cap")
}

// TestReprocessingTraceIsDeterministic replays the same input sequence
// through two engines and requires tick-for-tick identical snapshots. Only
// the run ID, which is freshly generated per run, may differ.
func TestReprocessingTraceIsDeterministic(t *testing.T) {
	run := func() []Snapshot {
		e := NewEngine(nil)
		e.StartRun(0)

		var snaps []Snapshot
		tMillis := int64(0)
		for i := 0; i < 1200; i++ {
			ax := 0.02
			if i > 400 {
				ax = 3.0
			}
			e.PushAccel(ax, 0.01, 0.01, tMillis, true)
			if i%100 == 0 {
				vGps := float64(i) * 0.02
				e.PushGPS(37.0, -122.0+float64(i)*1e-6, f64(vGps), 5, tMillis)
			}
			snaps = append(snaps, e.Snapshot())
			tMillis += 10
		}
		return snaps
	}

	first := run()
	second := run()

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(Snapshot{}, "RunID")); diff != "" {
		t.Errorf("replayed snapshots diverged (-first +second):\n%s", diff)
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
