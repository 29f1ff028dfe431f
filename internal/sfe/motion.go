package sfe

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	magnitudeRingSize  = 20
	trimmedMeanWindow  = 10
	trimmedMeanMinSize = 5
	stationaryStreakN  = 50 // ~0.5s at 100Hz
)

// motionGate turns raw, bias-corrected accelerometer samples into a
// smoothed scalar magnitude and a sticky moving/stationary classification.
type motionGate struct {
	cfg resolvedConfig

	ring         []float64 // last magnitudeRingSize accepted magnitudes, oldest first
	lastAccepted float64

	moving           bool
	stationaryStreak int
}

func newMotionGate(cfg resolvedConfig) *motionGate {
	return &motionGate{cfg: cfg}
}

func (g *motionGate) reset() {
	*g = motionGate{cfg: g.cfg}
}

// observe takes a bias-corrected sample, applies impulsive-noise rejection
// and trimmed-mean smoothing, updates the moving/stationary classification,
// and returns the filtered magnitude.
func (g *motionGate) observe(x, y, z float64) float64 {
	m := math.Sqrt(x*x + y*y + z*z)

	impulseCeiling := 5 * g.cfg.noiseThreshold
	var filtered float64
	if m > impulseCeiling {
		filtered = g.lastAccepted
	} else {
		g.ring = appendCapped(g.ring, m, magnitudeRingSize)
		filtered = g.trimmedMean()
		g.lastAccepted = filtered
	}

	g.classify(filtered)
	return filtered
}

// trimmedMean computes a 5%-trimmed mean over the most recent 10 ring
// values, or passes the latest raw value through when fewer than 5 are
// buffered.
func (g *motionGate) trimmedMean() float64 {
	n := len(g.ring)
	if n < trimmedMeanMinSize {
		if n == 0 {
			return 0
		}
		return g.ring[n-1]
	}

	window := g.ring
	if n > trimmedMeanWindow {
		window = g.ring[n-trimmedMeanWindow:]
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)

	// 5% trim on each side, rounded down to len/20 samples per side; for
	// the 10-value window that is zero, so the mean is untrimmed.
	trim := len(sorted) / 20
	lo, hi := trim, len(sorted)-trim
	if lo >= hi {
		lo, hi = 0, len(sorted)
	}
	trimmed := sorted[lo:hi]
	return floats.Sum(trimmed) / float64(len(trimmed))
}

// classify applies the sticky moving/stationary transition rules: entering
// Moving needs a strong signal, leaving it needs a sustained quiet streak.
func (g *motionGate) classify(filtered float64) {
	tau := g.cfg.motionThreshold

	if filtered < 0.5*tau {
		g.stationaryStreak++
	} else {
		g.stationaryStreak = 0
	}

	switch {
	case !g.moving && filtered > 2*tau:
		g.moving = true
		g.stationaryStreak = 0
	case g.moving && g.stationaryStreak >= stationaryStreakN:
		g.moving = false
		g.stationaryStreak = 0
	}
}
