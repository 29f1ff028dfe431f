package sfe

import "github.com/redline-data/sfe/internal/config"

// resolvedConfig is the engine's fully-resolved view of config.TuningConfig:
// every Get* default has already been applied, so the rest of the package
// never has to think about nil pointers.
type resolvedConfig struct {
	motionThreshold float64
	noiseThreshold  float64

	driftRate float64
	sigmaMin  float64

	dtGap float64
	dtCap float64
	vMax  float64

	reliabilityWindow int
	reliableMaxAgeS   float64
	reliableMinScore  float64

	stationaryForcedZeroS float64
	consecutiveZeroGPS    int
	tiltRejectV           float64

	distanceReconcileEveryS float64
	distanceReconcileRelErr float64
	distanceOutlierCapM     float64

	speedCheckpoints   []config.CheckpointTarget
	distanceMilestones []config.MilestoneTarget
}

func resolveConfig(c *config.TuningConfig) resolvedConfig {
	if c == nil {
		c = config.EmptyTuningConfig()
	}
	return resolvedConfig{
		motionThreshold:         c.GetMotionThreshold(),
		noiseThreshold:          c.GetNoiseThreshold(),
		driftRate:               c.GetDriftRate(),
		sigmaMin:                c.GetSigmaMin(),
		dtGap:                   c.GetDtGap(),
		dtCap:                   c.GetDtCap(),
		vMax:                    c.GetVMax(),
		reliabilityWindow:       c.GetReliabilityWindow(),
		reliableMaxAgeS:         c.GetReliableMaxAgeS(),
		reliableMinScore:        c.GetReliableMinScore(),
		stationaryForcedZeroS:   c.GetStationaryForcedZeroS(),
		consecutiveZeroGPS:      c.GetConsecutiveZeroGPS(),
		tiltRejectV:             c.GetTiltRejectV(),
		distanceReconcileEveryS: c.GetDistanceReconcileEveryS(),
		distanceReconcileRelErr: c.GetDistanceReconcileRelErr(),
		distanceOutlierCapM:     c.GetDistanceOutlierCapM(),
		speedCheckpoints:        c.GetSpeedCheckpoints(),
		distanceMilestones:      c.GetDistanceMilestones(),
	}
}
