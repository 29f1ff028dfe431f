package sfe

import "math"

type gpsFixRecord struct {
	speedMS  float64
	hasSpeed bool
	accuracy float64
	tMillis  int64
}

// gpsReliability is C3: it scores every incoming GPS fix for trustworthiness
// and tracks the rolling state C4 needs to decide whether GPS is reliable.
type gpsReliability struct {
	cfg resolvedConfig

	window []gpsFixRecord // last reliabilityWindow fixes, oldest first

	r              float64
	haveFix        bool
	lastFixTMillis int64

	vGps    float64
	haveGps bool

	consecutiveNearZero int
}

func newGPSReliability(cfg resolvedConfig) *gpsReliability {
	return &gpsReliability{cfg: cfg, r: 0.3}
}

func (e *gpsReliability) reset() {
	*e = gpsReliability{cfg: e.cfg, r: 0.3}
}

// update folds a new fix into the reliability window, recomputes r, and
// updates the last-known GPS speed when the fix carries one.
func (e *gpsReliability) update(fix GpsFix) {
	rec := gpsFixRecord{accuracy: fix.accuracy(), tMillis: fix.TMillis}
	if fix.SpeedMS != nil && *fix.SpeedMS >= 0 {
		rec.speedMS = *fix.SpeedMS
		rec.hasSpeed = true
	}

	e.window = append(e.window, rec)
	if len(e.window) > e.cfg.reliabilityWindow {
		e.window = e.window[len(e.window)-e.cfg.reliabilityWindow:]
	}
	e.haveFix = true
	e.lastFixTMillis = fix.TMillis

	e.r = e.computeReliability()

	if rec.hasSpeed {
		e.vGps = rec.speedMS
		e.haveGps = true
		if rec.speedMS < 0.3 {
			e.consecutiveNearZero++
		} else {
			e.consecutiveNearZero = 0
		}
	}
}

func (e *gpsReliability) computeReliability() float64 {
	if len(e.window) < 2 {
		return 0.3
	}

	r := 1.0

	var accSum float64
	for _, f := range e.window {
		accSum += f.accuracy
	}
	meanAccuracy := accSum / float64(len(e.window))
	switch {
	case meanAccuracy > 50:
		r *= 0.3
	case meanAccuracy > 20:
		r *= 0.7
	case meanAccuracy > 10:
		r *= 0.9
	}

	if len(e.window) >= 3 {
		maxJump := 0.0
		for i := 1; i < len(e.window); i++ {
			prev, cur := e.window[i-1], e.window[i]
			if !prev.hasSpeed || !cur.hasSpeed {
				continue
			}
			jump := math.Abs(cur.speedMS - prev.speedMS)
			if jump > maxJump {
				maxJump = jump
			}
		}
		switch {
		case maxJump > 5:
			r *= 0.5
		case maxJump > 3:
			r *= 0.7
		}
	}

	last := e.window[len(e.window)-1]
	secondLast := e.window[len(e.window)-2]
	dt := float64(last.tMillis-secondLast.tMillis) / 1000.0
	switch {
	case dt > 3:
		r *= 0.5
	case dt > 2:
		r *= 0.7
	}

	if r < 0.1 {
		r = 0.1
	}
	if r > 1.0 {
		r = 1.0
	}
	return r
}

// reliable reports whether GPS should be treated as reliable by C4: a fix
// exists, the newest one is fresh, and the score clears the floor.
func (e *gpsReliability) reliable(nowMillis int64) bool {
	if !e.haveFix {
		return false
	}
	ageS := float64(nowMillis-e.lastFixTMillis) / 1000.0
	return ageS < e.cfg.reliableMaxAgeS && e.r > e.cfg.reliableMinScore
}

func (e *gpsReliability) score() float64 {
	return e.r
}

func (e *gpsReliability) speed() (float64, bool) {
	return e.vGps, e.haveGps
}

// consecutiveZeroHeld reports whether at least consecutiveZeroGPS readings
// in a row have been near-zero, the condition C4 uses to force a hard zero.
func (e *gpsReliability) consecutiveZeroHeld() bool {
	return e.consecutiveNearZero >= e.cfg.consecutiveZeroGPS
}

// movingStartDetector accumulates fixes seen before run startup completes
// and decides whether the user was already moving when tracking began.
type movingStartDetector struct {
	cfg resolvedConfig

	runStartMillis int64
	firstFixMillis int64
	haveFirstFix   bool
	fixes          []GpsFix
	resolved       bool
}

func newMovingStartDetector(cfg resolvedConfig) *movingStartDetector {
	return &movingStartDetector{cfg: cfg}
}

func (d *movingStartDetector) reset(runStartMillis int64) {
	*d = movingStartDetector{cfg: d.cfg, runStartMillis: runStartMillis}
}

func (d *movingStartDetector) observeFix(fix GpsFix) {
	if d.resolved {
		return
	}
	if !d.haveFirstFix {
		d.haveFirstFix = true
		d.firstFixMillis = fix.TMillis
	}
	d.fixes = append(d.fixes, fix)
}

// ready reports whether enough evidence has accumulated to decide, driven
// by accelerometer ticks since the detector itself runs no timers.
func (d *movingStartDetector) ready(nowMillis int64) bool {
	if d.resolved {
		return false
	}
	if len(d.fixes) >= 3 {
		return true
	}
	if d.haveFirstFix && float64(nowMillis-d.firstFixMillis)/1000.0 >= 2.0 {
		return true
	}
	if !d.haveFirstFix && float64(nowMillis-d.runStartMillis)/1000.0 >= calibrationWindowS {
		return true
	}
	return false
}

// movingStartResult is the outcome of resolve.
type movingStartResult struct {
	isMovingStart bool
	meanSpeedMS   float64
	meanAccuracyM float64
}

// resolve evaluates the accumulated fixes exactly once and returns the
// decision; subsequent calls are no-ops.
func (d *movingStartDetector) resolve() movingStartResult {
	d.resolved = true

	var filtered []GpsFix
	for _, f := range d.fixes {
		if f.accuracy() < 30 {
			filtered = append(filtered, f)
		}
	}
	if len(filtered) == 0 {
		return movingStartResult{isMovingStart: false}
	}

	var speedSum, accSum float64
	n := 0
	for _, f := range filtered {
		accSum += f.accuracy()
		if f.SpeedMS != nil && *f.SpeedMS >= 0 {
			speedSum += *f.SpeedMS
			n++
		}
	}
	meanAccuracy := accSum / float64(len(filtered))
	if n == 0 {
		return movingStartResult{isMovingStart: false, meanAccuracyM: meanAccuracy}
	}
	meanSpeed := speedSum / float64(n)

	return movingStartResult{
		isMovingStart: meanSpeed > 2.0,
		meanSpeedMS:   meanSpeed,
		meanAccuracyM: meanAccuracy,
	}
}
