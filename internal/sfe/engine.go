package sfe

import (
	"math"

	"github.com/google/uuid"
	"github.com/redline-data/sfe/internal/config"
	"github.com/redline-data/sfe/internal/monitoring"
)

type startupPhase int

const (
	startupPending startupPhase = iota
	startupCalibrating
	startupDone
)

const displayRingSize = 5

// Engine is the Sensor Fusion Engine: the single owning value that holds
// every substructure (calibration, motion gate, GPS reliability, fusion,
// event detection) and is driven entirely by sample/fix arrival on one
// cooperative event loop. It is not safe for concurrent use; callers must
// serialize pushes onto a single goroutine.
type Engine struct {
	cfg resolvedConfig

	cal         *calibration
	motion      *motionGate
	gps         *gpsReliability
	movingStart *movingStartDetector
	detector    *eventDetector

	runID          string
	running        bool
	runStartMillis int64
	phase          startupPhase

	state        FusedState
	lastTMillis  int64
	haveLastTick bool

	displayRing  []float64
	displaySpeed float64

	lastGpsFusionTMillis int64
	haveLastGpsFusion    bool

	lastFixLat, lastFixLon float64
	haveLastFixPos         bool

	elapsedRunTimeS    float64
	lastReconcileMarkS float64

	pendingEvents []Event
}

// NewEngine constructs an Engine from a tuning configuration. Pass nil to
// use every default.
func NewEngine(tuning *config.TuningConfig) *Engine {
	cfg := resolveConfig(tuning)
	e := &Engine{
		cfg:         cfg,
		cal:         newCalibration(),
		motion:      newMotionGate(cfg),
		gps:         newGPSReliability(cfg),
		movingStart: newMovingStartDetector(cfg),
		detector:    newEventDetector(cfg),
	}
	return e
}

// Reset reinitializes the engine to its just-constructed state. Per the
// round-trip property, Reset followed by no inputs yields the same initial
// snapshot as construction.
func (e *Engine) Reset() {
	cfg := e.cfg
	*e = Engine{
		cfg:         cfg,
		cal:         newCalibration(),
		motion:      newMotionGate(cfg),
		gps:         newGPSReliability(cfg),
		movingStart: newMovingStartDetector(cfg),
		detector:    newEventDetector(cfg),
	}
}

// StartRun begins a new tracking run: it assigns a run ID, resets the fused
// state and motion/GPS pipelines, and arms the moving-start detector.
// Accelerometer bias is not reset; it persists across runs so a warmed-up
// device does not lose its calibration between back-to-back runs.
func (e *Engine) StartRun(nowMillis int64) {
	bias := e.cal.bias
	calibrated := e.cal.calibrated

	e.cal = newCalibration()
	e.cal.bias = bias
	e.cal.calibrated = calibrated

	e.motion = newMotionGate(e.cfg)
	e.gps = newGPSReliability(e.cfg)
	e.movingStart = newMovingStartDetector(e.cfg)
	e.movingStart.reset(nowMillis)
	e.detector = newEventDetector(e.cfg)

	e.runID = uuid.New().String()
	e.running = true
	e.runStartMillis = nowMillis
	e.phase = startupPending

	e.state = FusedState{Sigma: 10}
	e.lastTMillis = 0
	e.haveLastTick = false

	e.displayRing = nil
	e.displaySpeed = 0

	e.haveLastGpsFusion = false
	e.haveLastFixPos = false

	e.elapsedRunTimeS = 0
	e.lastReconcileMarkS = 0

	e.pendingEvents = nil

	monitoring.Logf("sfe: run %s started at t=%d", e.runID, nowMillis)
}

// StopRun ends the current run synchronously: no further pushes are
// processed until the next StartRun, and the final snapshot is returned for
// the caller to persist or display.
func (e *Engine) StopRun(nowMillis int64) Snapshot {
	e.running = false
	monitoring.Logf("sfe: run %s stopped at t=%d", e.runID, nowMillis)
	return e.Snapshot()
}

// PushGPS ingests one GPS fix.
func (e *Engine) PushGPS(lat, lon float64, speedMS *float64, accuracyM float64, tMillis int64) {
	if !e.running {
		return
	}

	fix := GpsFix{Lat: lat, Lon: lon, SpeedMS: speedMS, AccuracyM: accuracyM, TMillis: tMillis}

	e.gps.update(fix)

	if e.phase == startupPending {
		e.movingStart.observeFix(fix)
	}

	if e.phase != startupDone {
		e.lastFixLat, e.lastFixLon = lat, lon
		e.haveLastFixPos = true
		return
	}

	e.fuseGPSFix(fix)
}

func (e *Engine) fuseGPSFix(fix GpsFix) {
	accuracyM := fix.accuracy()
	r := e.gps.score()
	sigmaGps := math.Max(0.5, accuracyM*0.05) / r

	dtSinceLastFusion := 0.0
	if e.haveLastGpsFusion {
		dtSinceLastFusion = float64(fix.TMillis-e.lastGpsFusionTMillis) / 1000.0
	}
	e.state.Sigma += e.cfg.driftRate * dtSinceLastFusion

	if fix.SpeedMS != nil && *fix.SpeedMS >= 0 {
		vGps := *fix.SpeedMS
		k := e.state.Sigma / math.Max(e.state.Sigma+sigmaGps, 0.1)
		e.state.VFused += k * (vGps - e.state.VFused)
		e.state.Sigma = math.Max((1-k)*e.state.Sigma, e.cfg.sigmaMin)
		e.state.VAccel = e.state.VFused
	}
	e.lastGpsFusionTMillis = fix.TMillis
	e.haveLastGpsFusion = true

	if e.haveLastFixPos {
		delta := haversineDistance(e.lastFixLat, e.lastFixLon, fix.Lat, fix.Lon)
		if delta < e.cfg.distanceOutlierCapM {
			e.state.DistanceGPS += delta
		}
	}
	e.lastFixLat, e.lastFixLon = fix.Lat, fix.Lon
	e.haveLastFixPos = true

	if e.gps.consecutiveZeroHeld() {
		e.state.VFused = 0
		e.state.VAccel = 0
	}
}

// PushAccel ingests one accelerometer sample.
func (e *Engine) PushAccel(ax, ay, az float64, tMillis int64, linear bool) {
	if !e.running {
		return
	}

	sample := AccelSample{AX: ax, AY: ay, AZ: az, TMillis: tMillis, Linear: linear}
	gx, gy, gz := sample.gravityCompensated()

	if e.phase == startupPending && e.movingStart.ready(tMillis) {
		e.resolveStartup(tMillis)
	}

	switch e.phase {
	case startupPending:
		return
	case startupCalibrating:
		e.cal.observe(gx, gy, gz, tMillis)
		if !e.cal.collecting {
			e.phase = startupDone
		}
		return
	}

	e.runFusionTick(gx, gy, gz, tMillis)
}

func (e *Engine) resolveStartup(nowMillis int64) {
	result := e.movingStart.resolve()
	if result.isMovingStart {
		e.cal.skipCollectionAsMovingStart()
		e.state.VFused = result.meanSpeedMS
		e.state.VAccel = result.meanSpeedMS
		e.state.Sigma = math.Max(0.1*result.meanAccuracyM, e.cfg.sigmaMin)
		e.phase = startupDone
		monitoring.Logf("sfe: run %s moving start detected, v=%.2f", e.runID, result.meanSpeedMS)
		return
	}

	if e.cal.calibrated {
		e.phase = startupDone
		return
	}
	e.cal.beginCollection(nowMillis)
	e.phase = startupCalibrating
}

// runFusionTick is the fusion core's per-accelerometer-tick update: gap
// handling, dead-reckoning integration, GPS blending, zero anchoring,
// distance accounting, and event detection, in that order.
func (e *Engine) runFusionTick(gx, gy, gz float64, tMillis int64) {
	bx, by, bz := e.cal.apply(gx, gy, gz)
	e.cal.trackResidual(bx, by, bz)

	filtered := e.motion.observe(bx, by, bz)
	moving := e.motion.moving
	e.state.Moving = moving

	var dt float64
	if e.haveLastTick {
		dt = float64(tMillis-e.lastTMillis) / 1000.0
	}

	// Step 1: gap detection.
	if e.haveLastTick && dt > e.cfg.dtGap {
		reliable := e.gps.reliable(tMillis)
		vGps, haveGps := e.gps.speed()
		if reliable && haveGps {
			e.state.VAccel = vGps
			e.state.VFused = vGps
		} else {
			e.state.VAccel = 0
			e.state.VFused = 0
		}
		e.displayRing = nil
		e.displaySpeed = e.state.VFused
		e.state.Sigma = 5
		e.lastTMillis = tMillis
		e.haveLastTick = true
		e.state.LastTMillis = tMillis
		return
	}

	// Step 2: clamp.
	if dt > e.cfg.dtCap {
		dt = e.cfg.dtCap
	}

	reliable := e.gps.reliable(tMillis)
	vGps, haveGps := e.gps.speed()

	// Step 3: stationary accounting.
	if !moving && filtered < e.cfg.motionThreshold {
		e.state.StationaryDuration += dt
	} else {
		e.state.StationaryDuration = 0
	}

	// Step 4: forced zero (hard anchor).
	if e.state.StationaryDuration > e.cfg.stationaryForcedZeroS && (!reliable || (haveGps && vGps < 0.5)) {
		e.state.VFused = 0
		e.state.VAccel = 0
		e.state.Sigma = 0.5
		e.displayRing = nil
		e.displaySpeed = 0
		e.cal.recalibrate()
		e.lastTMillis = tMillis
		e.haveLastTick = true
		e.state.LastTMillis = tMillis
		return
	}

	// Step 5: accelerometer integration. Uncertainty grows for every
	// second spent dead reckoning, whether that is active integration or
	// coasting through a GPS outage.
	if moving && filtered > e.cfg.motionThreshold {
		e.state.VAccel += filtered * dt
	}
	if (moving && filtered > e.cfg.motionThreshold) || !reliable {
		e.state.Sigma += e.cfg.driftRate * dt
	}

	// Step 6: primary estimate.
	if reliable && haveGps {
		wGps := math.Min(0.8, 0.5+0.3*e.gps.score())
		e.state.VFused = wGps*vGps + (1-wGps)*e.state.VAccel
		if math.Abs(e.state.VAccel-vGps) > 2 {
			e.state.VAccel = 0.7*e.state.VAccel + 0.3*vGps
		}
	} else {
		e.state.VFused = e.state.VAccel
		if !moving || filtered < 0.5*e.cfg.motionThreshold {
			e.state.VFused *= 0.98
			e.state.VAccel = e.state.VFused
		}
	}

	// Step 7: soft zero anchors.
	if reliable && haveGps && vGps < 0.3 && e.gps.consecutiveZeroHeld() {
		e.state.VFused = 0
		e.state.VAccel = 0
	}
	if !moving && e.state.VFused < 2.0 {
		if (reliable && haveGps && vGps < 1.0) || e.state.VFused < e.cfg.tiltRejectV {
			e.state.VFused = 0
			e.state.VAccel = 0
		}
	}

	// Step 8: distance reconciliation.
	e.elapsedRunTimeS += dt
	if e.elapsedRunTimeS-e.lastReconcileMarkS >= e.cfg.distanceReconcileEveryS {
		e.lastReconcileMarkS = e.elapsedRunTimeS
		if e.state.DistanceAccel > 5 && e.state.DistanceGPS > 0 {
			relErr := math.Abs(e.state.DistanceAccel-e.state.DistanceGPS) / e.state.DistanceAccel
			if relErr > e.cfg.distanceReconcileRelErr && reliable {
				factor := e.state.DistanceGPS / e.state.DistanceAccel
				e.state.DistanceAccel = e.state.DistanceGPS
				if factor < 0.8 || factor > 1.2 {
					if haveGps {
						e.state.VFused = vGps
						e.state.VAccel = vGps
					}
				}
			}
		}
	}

	// Step 9: sanity cap.
	if math.Abs(e.state.VFused) > e.cfg.vMax {
		if reliable && haveGps {
			e.state.VFused = vGps
		} else {
			e.state.VFused = 0
		}
	}

	// Step 10: display smoothing.
	e.displayRing = appendCapped(e.displayRing, e.state.VFused, displayRingSize)
	if len(e.displayRing) >= 3 {
		e.displaySpeed = median(e.displayRing)
	} else {
		e.displaySpeed = e.state.VFused
	}

	// Step 11: distance integration.
	if e.state.VFused > 0.5 {
		e.state.DistanceAccel += e.state.VFused * dt
	}

	// Step 12: record timestamp.
	e.lastTMillis = tMillis
	e.haveLastTick = true
	e.state.LastTMillis = tMillis

	elapsedSinceRunStart := float64(tMillis-e.runStartMillis) / 1000.0
	events := e.detector.onAccelTick(filtered, moving, e.state.VFused, e.state.DistanceAccel, elapsedSinceRunStart)
	if len(events) > 0 {
		e.pendingEvents = append(e.pendingEvents, events...)
	}
}

// Snapshot returns the current read-only state polled by the display
// collaborator.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		RunID:               e.runID,
		SpeedMS:             e.displaySpeed,
		DistanceM:           e.state.DistanceAccel,
		Moving:              e.state.Moving,
		Launched:            e.detector.launched,
		Calibrated:          e.cal.calibrated,
		GPSReliable:         e.gps.reliable(e.lastTMillis),
		GPSReliabilityScore: e.gps.score(),
		Sigma:               e.state.Sigma,
	}
}

// DrainEvents returns every event emitted since the last drain and clears
// the internal queue, matching the "no inversion of control" design note.
func (e *Engine) DrainEvents() []Event {
	events := e.pendingEvents
	e.pendingEvents = nil
	return events
}
