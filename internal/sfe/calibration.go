package sfe

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	calibrationWindowS     = 3.0
	calibrationMinSamples  = 10
	recalibrationBlend     = 0.1
	recalibrationMaxWindow = 20
)

// calibration estimates and maintains the per-axis accelerometer bias that
// every other component subtracts before use.
type calibration struct {
	bias       Bias
	calibrated bool

	// collecting is true during the initial 3s stationary calibration
	// window following a stationary-start decision by C3.
	collecting  bool
	windowStart int64
	samplesX    []float64
	samplesY    []float64
	samplesZ    []float64

	// residual ring buffers used for the slow online re-calibration that
	// runs whenever a confirmed stationary interval holds.
	residualX []float64
	residualY []float64
	residualZ []float64
}

func newCalibration() *calibration {
	return &calibration{}
}

func (c *calibration) reset() {
	*c = calibration{}
}

// beginCollection starts the initial 3s stationary calibration window.
func (c *calibration) beginCollection(nowMillis int64) {
	c.collecting = true
	c.windowStart = nowMillis
	c.samplesX = c.samplesX[:0]
	c.samplesY = c.samplesY[:0]
	c.samplesZ = c.samplesZ[:0]
}

// skipCollectionAsMovingStart marks calibration complete without running
// the stationary window, for the C3 moving-start path.
func (c *calibration) skipCollectionAsMovingStart() {
	c.collecting = false
	c.calibrated = true
}

// observe feeds one gravity-compensated (but not yet bias-corrected) sample
// into an in-progress calibration window, and finalizes it once 3s have
// elapsed; the per-axis medians replace the bias only when at least 10
// samples were collected.
func (c *calibration) observe(x, y, z float64, nowMillis int64) {
	if !c.collecting {
		return
	}
	c.samplesX = append(c.samplesX, x)
	c.samplesY = append(c.samplesY, y)
	c.samplesZ = append(c.samplesZ, z)

	elapsedS := float64(nowMillis-c.windowStart) / 1000.0
	if elapsedS < calibrationWindowS {
		return
	}

	if len(c.samplesX) >= calibrationMinSamples {
		c.bias = Bias{
			X: median(c.samplesX),
			Y: median(c.samplesY),
			Z: median(c.samplesZ),
		}
	}
	// Too few samples: leave the bias at its prior value, but still mark
	// calibrated so the engine does not stall waiting for a quiet window.
	c.collecting = false
	c.calibrated = true
}

// apply subtracts the current bias from a gravity-compensated sample.
func (c *calibration) apply(x, y, z float64) (float64, float64, float64) {
	return x - c.bias.X, y - c.bias.Y, z - c.bias.Z
}

// trackResidual records the post-bias residual for the slow re-calibration
// path; call once per accelerometer tick regardless of motion state.
func (c *calibration) trackResidual(rx, ry, rz float64) {
	c.residualX = appendCapped(c.residualX, rx, recalibrationMaxWindow)
	c.residualY = appendCapped(c.residualY, ry, recalibrationMaxWindow)
	c.residualZ = appendCapped(c.residualZ, rz, recalibrationMaxWindow)
}

// recalibrate nudges the bias toward the recently observed residual. The
// fusion core invokes it whenever a confirmed stationary interval holds, so
// thermal drift is absorbed slowly without destabilizing the estimate.
func (c *calibration) recalibrate() {
	if len(c.residualX) == 0 {
		return
	}
	c.bias.X += recalibrationBlend * mean(c.residualX)
	c.bias.Y += recalibrationBlend * mean(c.residualY)
	c.bias.Z += recalibrationBlend * mean(c.residualZ)
}

func appendCapped(buf []float64, v float64, maxLen int) []float64 {
	buf = append(buf, v)
	if len(buf) > maxLen {
		buf = buf[len(buf)-maxLen:]
	}
	return buf
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
