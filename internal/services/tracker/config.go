package tracker

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// Config holds the thresholds of the tracking pipeline. Zero values are not
// meaningful; start from DefaultConfig and override.
type Config struct {
	// StateClassifier
	IrrigationPressure float64 `yaml:"irrigation_pressure"` // psi-equivalent
	MovementSpeed      float64 `yaml:"movement_speed"`      // km/h

	// SamplingGate
	ShortInterval time.Duration `yaml:"short_interval"` // while irrigating or moving
	LongInterval  time.Duration `yaml:"long_interval"`

	// RotationTracker
	CompletionThreshold float64            `yaml:"completion_threshold"` // fraction of 360°
	MinRotationDuration time.Duration      `yaml:"min_rotation_duration"`
	SafetyCapPercent    float64            `yaml:"safety_cap_percent"`
	DirectionAgreement  float64            `yaml:"direction_agreement"`
	MinAngleDelta       float64            `yaml:"min_angle_delta"` // degrees
	HistorySize         int                `yaml:"history_size"`
	DefaultDirection    entities.Direction `yaml:"default_direction"`

	// SectorEventTracker
	ProgressCap float64 `yaml:"progress_cap"`

	PressureCurve geo.Curve `yaml:"pressure_curve"`
}

func DefaultConfig() Config {
	return Config{
		IrrigationPressure:  10,
		MovementSpeed:       0.01,
		ShortInterval:       10 * time.Minute,
		LongInterval:        30 * time.Minute,
		CompletionThreshold: 0.98,
		MinRotationDuration: 12 * time.Hour,
		SafetyCapPercent:    95,
		DirectionAgreement:  0.70,
		MinAngleDelta:       0.5,
		HistorySize:         10,
		DefaultDirection:    entities.Counterclockwise,
		ProgressCap:         99,
		PressureCurve:       geo.DefaultCurve,
	}
}

// Validate returns every violated constraint joined together.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.IrrigationPressure >= 0, "irrigation_pressure must be >= 0, got %v", c.IrrigationPressure)
	check(c.MovementSpeed >= 0, "movement_speed must be >= 0, got %v", c.MovementSpeed)
	check(c.ShortInterval > 0, "short_interval must be > 0, got %s", c.ShortInterval)
	check(c.LongInterval >= c.ShortInterval, "long_interval (%s) must be >= short_interval (%s)", c.LongInterval, c.ShortInterval)
	check(c.CompletionThreshold > 0 && c.CompletionThreshold <= 1, "completion_threshold must be in (0,1], got %v", c.CompletionThreshold)
	check(c.MinRotationDuration >= 0, "min_rotation_duration must be >= 0, got %s", c.MinRotationDuration)
	check(c.SafetyCapPercent > 0 && c.SafetyCapPercent < 100, "safety_cap_percent must be in (0,100), got %v", c.SafetyCapPercent)
	check(c.DirectionAgreement > 0.5 && c.DirectionAgreement <= 1, "direction_agreement must be in (0.5,1], got %v", c.DirectionAgreement)
	check(c.MinAngleDelta >= 0, "min_angle_delta must be >= 0, got %v", c.MinAngleDelta)
	check(c.HistorySize >= 2 && c.HistorySize <= maxHistory, "history_size must be in [2,%d], got %d", maxHistory, c.HistorySize)
	check(c.DefaultDirection == entities.Clockwise || c.DefaultDirection == entities.Counterclockwise,
		"default_direction must be clockwise or counterclockwise, got %q", c.DefaultDirection)
	check(c.ProgressCap > 0 && c.ProgressCap < 100, "progress_cap must be in (0,100), got %v", c.ProgressCap)
	check(c.PressureCurve.A != 0 || c.PressureCurve.B != 0, "pressure_curve needs a non-zero a or b")
	return errors.Join(errs...)
}

// LoadConfig overlays a YAML file on DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read tracker config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse tracker config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid tracker config %s: %w", path, err)
	}
	return cfg, nil
}
