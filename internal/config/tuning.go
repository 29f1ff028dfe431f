// Package config loads and validates the sensor fusion engine's tunable
// thresholds from an external JSON file, so a device's estimator can be
// retuned without a rebuild.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// CheckpointTarget configures a speed checkpoint event. FromMS gates the
// crossing: the engine must have observed a speed below it during the run
// before the checkpoint can fire, so a 60-100 interval does not fire on a
// run that started above 60.
type CheckpointTarget struct {
	ID     string  `json:"id"`
	FromMS float64 `json:"from_ms"`
	ToMS   float64 `json:"to_ms"`
}

// MilestoneTarget configures a distance milestone event.
type MilestoneTarget struct {
	ID        string  `json:"id"`
	DistanceM float64 `json:"distance_m"`
}

// TuningConfig holds every estimator tunable. Pointer fields are optional in
// the JSON source; omitted fields fall back to the Get* defaults below, so
// partial override files are safe.
type TuningConfig struct {
	MotionThreshold *float64 `json:"motion_threshold,omitempty"`
	NoiseThreshold  *float64 `json:"noise_threshold,omitempty"`

	DriftRate *float64 `json:"drift_rate,omitempty"`
	SigmaMin  *float64 `json:"sigma_min,omitempty"`

	DtGap *float64 `json:"dt_gap,omitempty"`
	DtCap *float64 `json:"dt_cap,omitempty"`
	VMax  *float64 `json:"v_max,omitempty"`

	ReliabilityWindow *int     `json:"reliability_window,omitempty"`
	ReliableMaxAgeS   *float64 `json:"reliable_max_age_s,omitempty"`
	ReliableMinScore  *float64 `json:"reliable_min_score,omitempty"`

	StationaryForcedZeroS *float64 `json:"stationary_forced_zero_s,omitempty"`
	ConsecutiveZeroGPS    *int     `json:"consecutive_zero_gps,omitempty"`
	TiltRejectV           *float64 `json:"tilt_reject_v,omitempty"`

	DistanceReconcileEveryS *float64 `json:"distance_reconcile_every_s,omitempty"`
	DistanceReconcileRelErr *float64 `json:"distance_reconcile_rel_err,omitempty"`
	DistanceOutlierCapM     *float64 `json:"distance_outlier_cap_m,omitempty"`

	SpeedCheckpoints   []CheckpointTarget `json:"speed_checkpoints,omitempty"`
	DistanceMilestones []MilestoneTarget  `json:"distance_milestones,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset so callers
// can layer Get* defaults on top.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that set fields carry sane values.
func (c *TuningConfig) Validate() error {
	if c.MotionThreshold != nil && *c.MotionThreshold <= 0 {
		return fmt.Errorf("motion_threshold must be positive, got %f", *c.MotionThreshold)
	}
	if c.NoiseThreshold != nil && *c.NoiseThreshold <= 0 {
		return fmt.Errorf("noise_threshold must be positive, got %f", *c.NoiseThreshold)
	}
	if c.SigmaMin != nil && *c.SigmaMin < 0 {
		return fmt.Errorf("sigma_min must be non-negative, got %f", *c.SigmaMin)
	}
	if c.VMax != nil && *c.VMax <= 0 {
		return fmt.Errorf("v_max must be positive, got %f", *c.VMax)
	}
	if c.ReliabilityWindow != nil && *c.ReliabilityWindow < 2 {
		return fmt.Errorf("reliability_window must be at least 2, got %d", *c.ReliabilityWindow)
	}
	for _, cp := range c.SpeedCheckpoints {
		if cp.ID == "" {
			return fmt.Errorf("speed checkpoint missing id")
		}
	}
	for _, m := range c.DistanceMilestones {
		if m.ID == "" {
			return fmt.Errorf("distance milestone missing id")
		}
		if m.DistanceM <= 0 {
			return fmt.Errorf("distance milestone %q must have positive distance_m", m.ID)
		}
	}
	return nil
}

func (c *TuningConfig) GetMotionThreshold() float64 {
	if c.MotionThreshold == nil {
		return 0.5
	}
	return *c.MotionThreshold
}

func (c *TuningConfig) GetNoiseThreshold() float64 {
	if c.NoiseThreshold == nil {
		return 2.0
	}
	return *c.NoiseThreshold
}

func (c *TuningConfig) GetDriftRate() float64 {
	if c.DriftRate == nil {
		return 0.5
	}
	return *c.DriftRate
}

func (c *TuningConfig) GetSigmaMin() float64 {
	if c.SigmaMin == nil {
		return 0.1
	}
	return *c.SigmaMin
}

func (c *TuningConfig) GetDtGap() float64 {
	if c.DtGap == nil {
		return 0.5
	}
	return *c.DtGap
}

func (c *TuningConfig) GetDtCap() float64 {
	if c.DtCap == nil {
		return 0.1
	}
	return *c.DtCap
}

func (c *TuningConfig) GetVMax() float64 {
	if c.VMax == nil {
		return 100
	}
	return *c.VMax
}

func (c *TuningConfig) GetReliabilityWindow() int {
	if c.ReliabilityWindow == nil {
		return 10
	}
	return *c.ReliabilityWindow
}

func (c *TuningConfig) GetReliableMaxAgeS() float64 {
	if c.ReliableMaxAgeS == nil {
		return 2.0
	}
	return *c.ReliableMaxAgeS
}

func (c *TuningConfig) GetReliableMinScore() float64 {
	if c.ReliableMinScore == nil {
		return 0.3
	}
	return *c.ReliableMinScore
}

func (c *TuningConfig) GetStationaryForcedZeroS() float64 {
	if c.StationaryForcedZeroS == nil {
		return 3.0
	}
	return *c.StationaryForcedZeroS
}

func (c *TuningConfig) GetConsecutiveZeroGPS() int {
	if c.ConsecutiveZeroGPS == nil {
		return 3
	}
	return *c.ConsecutiveZeroGPS
}

func (c *TuningConfig) GetTiltRejectV() float64 {
	if c.TiltRejectV == nil {
		return 0.89
	}
	return *c.TiltRejectV
}

func (c *TuningConfig) GetDistanceReconcileEveryS() float64 {
	if c.DistanceReconcileEveryS == nil {
		return 2.0
	}
	return *c.DistanceReconcileEveryS
}

func (c *TuningConfig) GetDistanceReconcileRelErr() float64 {
	if c.DistanceReconcileRelErr == nil {
		return 0.2
	}
	return *c.DistanceReconcileRelErr
}

func (c *TuningConfig) GetDistanceOutlierCapM() float64 {
	if c.DistanceOutlierCapM == nil {
		return 100
	}
	return *c.DistanceOutlierCapM
}

// GetSpeedCheckpoints returns the configured speed checkpoints, or the
// canonical drag-timing defaults (0-60 mph, 60-100 mph) when unset.
func (c *TuningConfig) GetSpeedCheckpoints() []CheckpointTarget {
	if len(c.SpeedCheckpoints) > 0 {
		return c.SpeedCheckpoints
	}
	return []CheckpointTarget{
		{ID: "0-60mph", FromMS: 0, ToMS: 26.8224},
		{ID: "60-100mph", FromMS: 26.8224, ToMS: 44.704},
	}
}

// GetDistanceMilestones returns the configured distance milestones, or the
// canonical drag-strip defaults (1/8 mile, 1/4 mile, 1 km, 1 mile) when unset.
func (c *TuningConfig) GetDistanceMilestones() []MilestoneTarget {
	if len(c.DistanceMilestones) > 0 {
		return c.DistanceMilestones
	}
	return []MilestoneTarget{
		{ID: "1/8mile", DistanceM: 201.168},
		{ID: "1/4mile", DistanceM: 402.336},
		{ID: "1km", DistanceM: 1000},
		{ID: "1mile", DistanceM: 1609.344},
	}
}

// MustLoadDefaultConfig loads the canonical tuning defaults, searching from
// the current directory up through common parent directories. Panics if the
// file cannot be found; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}
