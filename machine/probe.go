package machine

import (
	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/gcode"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
)

type ProbeResult struct {
	coord.Point
	Valid bool
}

var _ zswitch.Probe = &Machine{}

// probeCommand returns a relative G38.2 probe toward the switch, restoring
// absolute mode after.
func probeCommand(axis byte, distance, feed float64) []gcode.Block {
	return []gcode.Block{
		{
			gcode.G(91),
			gcode.G(38.2),
			{W: axis, Arg: distance},
			{W: 'F', Arg: feed},
		},
		{gcode.G(90)},
	}
}

// Probe performs a straight probe from the current location and returns
// the trigger height.
//
// A latched probe alarm 4 is reported as a pre-triggered fault; the alarm
// lock is cleared before returning.
func (m *Machine) Probe(req zswitch.ProbeRequest) (float64, error) {
	if req.Axis != 'Z' {
		return 0, &zswitch.ProbeFault{Err: errors.Errorf("unsupported probe axis '%c'", req.Axis)}
	}
	dir := -1.0
	if req.Direction > 0 {
		dir = 1
	}
	feed := m.opt.ProbeFeed * req.SpeedRatio
	if feed <= 0 {
		return 0, &zswitch.ProbeFault{Err: errors.New("probe feed rate must be > 0")}
	}

	m.Adapter.ResetProbes()
	err := m.runBlocks(probeCommand(req.Axis, dir*req.MaxDistance, feed))
	if alarm := m.Adapter.LastAlarm(); alarm != nil {
		uerr := m.Adapter.Unlock()
		if uerr != nil {
			m.log.WithError(uerr).Error("unlock after alarm")
		}
		m.resync()
		kind := zswitch.FaultOther
		if alarm.Code == AlarmProbeInitialState {
			kind = zswitch.FaultPreTriggered
		}
		return 0, &zswitch.ProbeFault{Kind: kind, Err: alarm}
	}
	if err != nil {
		m.resync()
		return 0, &zswitch.ProbeFault{Err: err}
	}

	p := m.Adapter.Probes()
	if len(p) == 0 {
		return 0, &zswitch.ProbeFault{Err: errors.New("no probe data returned")}
	}
	if !p[0].Valid {
		return 0, &zswitch.ProbeFault{Err: errors.Errorf("switch not triggered within %gmm", req.MaxDistance)}
	}

	m.mx.Lock()
	m.vm.SetMPos(p[0].Point)
	m.mx.Unlock()
	return p[0].Z, nil
}
