// Package sfe implements the real-time sensor fusion engine: it ingests
// accelerometer samples and GPS fixes and produces a fused speed, distance,
// and motion-event stream robust to sensor bias, device tilt, GPS outages,
// and stationary drift.
package sfe

// AccelSample is a single three-axis accelerometer reading.
type AccelSample struct {
	AX, AY, AZ float64 // m/s^2
	TMillis    int64   // monotonic milliseconds
	// Linear is true when the sample already has gravity removed by the
	// hardware (a "linear acceleration" sensor). When false, gravity is
	// approximated by subtracting 9.81 from Z before use; this path is
	// tilt-sensitive.
	Linear bool
}

const gravityMS2 = 9.81

// gravityCompensated returns the sample's axes after removing gravity along
// the sensed down-axis when the sample is not already hardware-linear.
func (s AccelSample) gravityCompensated() (x, y, z float64) {
	if s.Linear {
		return s.AX, s.AY, s.AZ
	}
	return s.AX, s.AY, s.AZ - gravityMS2
}

// GpsFix is a single GPS reading. SpeedMS is nil when the receiver could not
// derive an instantaneous ground speed for this fix.
type GpsFix struct {
	Lat, Lon  float64
	SpeedMS   *float64 // m/s, nullable; negative values are discarded by the caller
	AccuracyM float64  // metres; 0 is treated as "absent" and defaulted to 20
	TMillis   int64    // monotonic milliseconds
}

// accuracy returns the fix's accuracy radius, defaulting to 20m when unset.
func (f GpsFix) accuracy() float64 {
	if f.AccuracyM <= 0 {
		return 20
	}
	return f.AccuracyM
}

// Bias is the per-axis accelerometer bias subtracted from every calibrated
// sample. It starts at zero and is refined by the calibration module.
type Bias struct {
	X, Y, Z float64
}

// FusedState is the engine's central, continuously mutated estimate.
type FusedState struct {
	VFused float64 // m/s, always >= 0
	VAccel float64 // m/s, dead-reckoned speed since the last GPS correction
	Sigma  float64 // m/s, uncertainty of VFused

	DistanceAccel float64 // metres, integrated from VFused
	DistanceGPS   float64 // metres, great-circle sum of GPS fixes

	Moving             bool
	StationaryDuration float64 // seconds of continuous non-motion

	LastTMillis int64
}

// Snapshot is the read-only view of engine state polled by the display and
// persistence collaborators.
type Snapshot struct {
	RunID               string
	SpeedMS             float64 // display-smoothed VFused
	DistanceM           float64
	Moving              bool
	Launched            bool
	Calibrated          bool
	GPSReliable         bool
	GPSReliabilityScore float64
	Sigma               float64
}

// EventKind identifies the kind of asynchronous event emitted by the event
// detector (C5).
type EventKind int

const (
	EventLaunchDetected EventKind = iota
	EventSpeedCheckpoint
	EventDistanceMilestone
)

// Event is one asynchronously emitted detection event. Fields not
// applicable to Kind are left zero.
type Event struct {
	Kind EventKind

	// TSinceEventBasis is the elapsed seconds since launch (if launch has
	// been detected) or since run start otherwise. For
	// EventLaunchDetected itself the elapsed time is always since run
	// start.
	TSinceEventBasis float64

	// ID names the checkpoint or milestone that fired, e.g. "0-60mph" or
	// "1/4mile". Empty for EventLaunchDetected.
	ID string

	// SpeedAtCrossingMS is populated only for EventDistanceMilestone.
	SpeedAtCrossingMS float64
}
