package zswitch

import (
	"time"

	"github.com/mastercactapus/zcal/coord"
)

// Motion is the toolhead of the machine.
//
// MoveTo may return before the move completes; WaitIdle blocks until every
// queued move has finished.
type Motion interface {
	Position() (coord.Point, error)
	MoveTo(p coord.Point, speed float64) error
	WaitIdle() error
	Dwell(d time.Duration) error
	Homed() (bool, error)
}

// ProbeRequest configures a single probing move toward the switch.
type ProbeRequest struct {
	// Axis is the axis letter, only 'Z' is supported by the machines here.
	Axis byte

	// Direction is -1 or 1.
	Direction int

	// SpeedRatio scales the probing feed rate of the machine.
	SpeedRatio float64

	// MaxDistance is the maximum travel before giving up, in mm.
	MaxDistance float64
}

// DefaultProbeRequest probes down, at half speed, for at most 10mm.
var DefaultProbeRequest = ProbeRequest{Axis: 'Z', Direction: -1, SpeedRatio: 0.5, MaxDistance: 10}

// Probe performs a single blocking probing move and returns the trigger height.
//
// Failures must be returned as *ProbeFault so callers can tell a
// pre-triggered switch from any other fault.
type Probe interface {
	Probe(req ProbeRequest) (float64, error)
}

// ToolChanger is the tool-changing subsystem.
type ToolChanger interface {
	ActiveTool() (int, error)

	// ToolIDs returns every known tool in the changer's native order.
	ToolIDs() []int

	SelectTool(tool int) error
}

// Hooks are optional callbacks run at fixed points of a calibration run.
type Hooks struct {
	Start        func() error
	BeforePickup func() error
	AfterPickup  func() error
	Finish       func() error
}

// Hook names, as used by Hooks.ByName.
const (
	HookStart        = "start"
	HookBeforePickup = "before_pickup"
	HookAfterPickup  = "after_pickup"
	HookFinish       = "finish"
)

// ByName returns the hook registered under name, or nil.
func (h Hooks) ByName(name string) func() error {
	switch name {
	case HookStart:
		return h.Start
	case HookBeforePickup:
		return h.BeforePickup
	case HookAfterPickup:
		return h.AfterPickup
	case HookFinish:
		return h.Finish
	}
	return nil
}

// Run runs the named hook, if set.
func (h Hooks) Run(name string) error {
	fn := h.ByName(name)
	if fn == nil {
		return nil
	}
	if err := fn(); err != nil {
		return &HookError{Name: name, Err: err}
	}
	return nil
}
