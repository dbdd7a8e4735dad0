package zswitch

import (
	"time"

	"github.com/mastercactapus/zcal/coord"
	"github.com/pkg/errors"
)

// Config holds the calibration settings. Speeds are in mm/s, distances in mm.
type Config struct {
	// Switch position; all three must be set before moving to the switch.
	SwitchX, SwitchY, SwitchZ *float64

	// LiftZ is added to SwitchZ when approaching the switch.
	LiftZ float64

	// SafeStartZ is the minimum height for approaching and retreating.
	SafeStartZ float64

	MoveSpeed  float64
	ZMoveSpeed float64

	Samples          int
	SamplesTolerance float64
	SamplesMaxCount  int

	Method    Method
	TrimCount int

	RecoverLift        float64
	RecoverPause       time.Duration
	RecoverMaxAttempts int

	DefaultRefTool int

	Probe ProbeRequest
}

// DefaultConfig returns the stock settings, with no switch position.
func DefaultConfig() Config {
	return Config{
		LiftZ:      1,
		SafeStartZ: 6,
		MoveSpeed:  60,
		ZMoveSpeed: 10,

		Samples:          10,
		SamplesTolerance: 0.02,
		SamplesMaxCount:  10,

		Method:    MethodMedian,
		TrimCount: 1,

		RecoverLift:        2,
		RecoverPause:       150 * time.Millisecond,
		RecoverMaxAttempts: 4,

		Probe: DefaultProbeRequest,
	}
}

// HasSwitchPos reports if every switch coordinate is configured.
func (c Config) HasSwitchPos() bool {
	return c.SwitchX != nil && c.SwitchY != nil && c.SwitchZ != nil
}

// SwitchPos returns the configured switch position.
func (c Config) SwitchPos() (coord.Point, error) {
	if !c.HasSwitchPos() {
		return coord.Point{}, ErrSwitchPosition
	}
	return coord.Point{X: *c.SwitchX, Y: *c.SwitchY, Z: *c.SwitchZ}, nil
}

// SampleOptions returns the configured sampling defaults.
func (c Config) SampleOptions() SampleOptions {
	return SampleOptions{
		Samples:   c.Samples,
		MaxCount:  c.SamplesMaxCount,
		Tolerance: c.SamplesTolerance,
		Method:    c.Method,
		TrimCount: c.TrimCount,
	}
}

func (c Config) Validate() error {
	if err := c.SampleOptions().Validate(); err != nil {
		return err
	}
	switch {
	case c.SafeStartZ < 0:
		return errors.New("safe_start_z must be >= 0")
	case c.MoveSpeed <= 0 || c.ZMoveSpeed <= 0:
		return errors.New("move speeds must be > 0")
	case c.RecoverLift < 0:
		return errors.New("recover_lift_mm must be >= 0")
	case c.RecoverPause < 0:
		return errors.New("recover_pause_ms must be >= 0")
	case c.RecoverMaxAttempts < 1:
		return errors.New("recover_max_attempts must be >= 1")
	case c.DefaultRefTool < 0:
		return errors.New("default_ref_tool must be >= 0")
	case c.Probe.MaxDistance <= 0:
		return errors.New("probe max distance must be > 0")
	}
	return nil
}
