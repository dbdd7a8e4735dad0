package machine

import (
	"strings"
	"time"

	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/gcode"
	"github.com/mastercactapus/zcal/zswitch"
)

var _ zswitch.Motion = &Machine{}

// Position returns the commanded machine position.
func (m *Machine) Position() (coord.Point, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.vm.MPos(), nil
}

// MoveTo queues a machine-coordinate move at speed mm/s.
func (m *Machine) MoveTo(p coord.Point, speed float64) error {
	return m.runBlocks([]gcode.Block{{
		gcode.G(53),
		gcode.G(1),
		{W: 'X', Arg: p.X},
		{W: 'Y', Arg: p.Y},
		{W: 'Z', Arg: p.Z},
		{W: 'F', Arg: speed * 60},
	}})
}

// WaitIdle returns once the planner is empty.
//
// A zero dwell is only acknowledged after every queued move has finished.
func (m *Machine) WaitIdle() error {
	return m.runBlocks([]gcode.Block{{gcode.G(4), {W: 'P', Arg: 0}}})
}

// Dwell pauses motion for d.
func (m *Machine) Dwell(d time.Duration) error {
	return m.runBlocks([]gcode.Block{{gcode.G(4), {W: 'P', Arg: d.Seconds()}}})
}

// Homed reports false while the controller is locked by an alarm or has
// not reported any status yet. When idle, the commanded position is synced
// from the status report.
func (m *Machine) Homed() (bool, error) {
	stat := m.CurrentState()
	if stat.Status == "" || strings.HasPrefix(stat.Status, "Alarm") {
		return false, nil
	}
	if stat.Status == "Idle" {
		m.resync()
	}
	return true, nil
}
