package zswitch

import (
	"fmt"
	"time"

	"github.com/mastercactapus/zcal/coord"
	"github.com/pkg/errors"
)

// rig is an in-memory machine with a trigger switch. Each tool triggers at
// the next value of its sequence; preTriggered[tool] probes fail first.
type rig struct {
	pos    coord.Point
	homed  bool
	tools  []int
	active int

	triggers     map[int][]float64
	preTriggered map[int]int
	probeErr     error

	probes map[int]int
	moves  []coord.Point
	events []string
}

func newRig(tools ...int) *rig {
	return &rig{
		homed:        true,
		tools:        tools,
		active:       -1,
		pos:          coord.Point{X: 100, Y: 100, Z: 20},
		triggers:     make(map[int][]float64),
		preTriggered: make(map[int]int),
		probes:       make(map[int]int),
	}
}

func (r *rig) Position() (coord.Point, error) { return r.pos, nil }
func (r *rig) MoveTo(p coord.Point, speed float64) error {
	r.pos = p
	r.moves = append(r.moves, p)
	return nil
}
func (r *rig) WaitIdle() error { return nil }
func (r *rig) Dwell(d time.Duration) error {
	r.events = append(r.events, "dwell "+d.String())
	return nil
}
func (r *rig) Homed() (bool, error) { return r.homed, nil }

func (r *rig) Probe(req ProbeRequest) (float64, error) {
	if r.probeErr != nil {
		return 0, r.probeErr
	}
	if r.preTriggered[r.active] > 0 {
		r.preTriggered[r.active]--
		return 0, &ProbeFault{Kind: FaultPreTriggered, Err: errors.New("ALARM:4")}
	}
	seq := r.triggers[r.active]
	if len(seq) == 0 {
		return 0, &ProbeFault{Kind: FaultOther, Err: errors.New("no trigger")}
	}
	z := seq[r.probes[r.active]%len(seq)]
	r.probes[r.active]++
	r.pos.Z = z
	return z, nil
}

func (r *rig) ActiveTool() (int, error) {
	if r.active < 0 {
		return 0, errors.New("no active tool")
	}
	return r.active, nil
}
func (r *rig) ToolIDs() []int { return r.tools }
func (r *rig) SelectTool(tool int) error {
	r.active = tool
	r.events = append(r.events, fmt.Sprintf("T%d", tool))
	return nil
}

func (r *rig) hooks() Hooks {
	hook := func(name string) func() error {
		return func() error {
			r.events = append(r.events, name)
			return nil
		}
	}
	return Hooks{
		Start:        hook("start"),
		BeforePickup: hook("before"),
		AfterPickup:  hook("after"),
		Finish:       hook("finish"),
	}
}

func float(v float64) *float64 { return &v }
func intp(v int) *int           { return &v }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SwitchX = float(10)
	cfg.SwitchY = float(20)
	cfg.SwitchZ = float(2)
	cfg.Samples = 3
	cfg.SamplesMaxCount = 9
	cfg.RecoverPause = 0
	return cfg
}

func newTestCalibrator(r *rig) *Calibrator {
	c := NewCalibrator(testConfig(), r, r, r, r.hooks())
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}
