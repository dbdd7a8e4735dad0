package main

import (
	"io"

	"github.com/mastercactapus/zcal/config"
	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/machine"
	"github.com/mastercactapus/zcal/machine/grbl"
	"github.com/mastercactapus/zcal/machine/sim"
	"github.com/mastercactapus/zcal/service"
	"github.com/mastercactapus/zcal/spjs"
	"github.com/mastercactapus/zcal/store"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newAdapter connects to the controller selected by cfg.
func newAdapter(cfg config.Config, simulate bool) (machine.Adapter, io.Closer, error) {
	switch {
	case simulate:
		return newSimAdapter(cfg), nopCloser{}, nil
	case cfg.SPJS != "":
		if cfg.Port == "" {
			return nil, nil, errors.New("port name is required with spjs")
		}
		sp := spjs.NewSPJS(cfg.SPJS)
		return grbl.NewSPJSAdapter(sp, cfg.Port), sp, nil
	case cfg.Port != "":
		a, err := grbl.OpenSerial(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	}
	return nil, nil, errors.New("no controller: set port, spjs or --sim")
}

// newSimAdapter places the simulated switch at the configured position
// with tools triggering 0.05mm apart.
func newSimAdapter(cfg config.Config) *sim.Adapter {
	base := 0.0
	if cfg.ZSwitch.SwitchZ != nil {
		base = *cfg.ZSwitch.SwitchZ
	}
	tools := make(map[int]*sim.Tool, len(cfg.Machine.Tools))
	for i, t := range cfg.Machine.Tools {
		tools[t] = &sim.Tool{
			Trigger: base + 2 - 0.05*float64(i),
			Noise:   []float64{0, 0.003, -0.002},
		}
	}
	a := sim.New(coord.Point{Z: cfg.Machine.TravelHeight}, tools)
	if cfg.Machine.InitialTool >= 0 {
		a.LoadTool(cfg.Machine.InitialTool)
	}
	logrus.Warn("using simulated controller")
	return a
}

type app struct {
	svc     *service.Service
	machine *machine.Machine
	store   *store.Store
	closers []io.Closer
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newApp wires the controller, calibrator, store and service.
func newApp(cfg config.Config, simulate bool) (*app, error) {
	adapter, closer, err := newAdapter(cfg, simulate)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []io.Closer{closer}}

	a.machine = machine.NewMachine(adapter, cfg.Machine)
	m := a.machine
	hooks := zswitch.Hooks{
		Start:        m.Script(zswitch.HookStart, cfg.Scripts[zswitch.HookStart]),
		BeforePickup: m.Script(zswitch.HookBeforePickup, cfg.Scripts[zswitch.HookBeforePickup]),
		AfterPickup:  m.Script(zswitch.HookAfterPickup, cfg.Scripts[zswitch.HookAfterPickup]),
		Finish:       m.Script(zswitch.HookFinish, cfg.Scripts[zswitch.HookFinish]),
	}
	cal := zswitch.NewCalibrator(cfg.ZSwitch, m, m, m, hooks)
	cal.Log = logrus.WithField("component", "zswitch")

	var rec service.Recorder
	if cfg.DB != "" {
		a.store, err = store.Open(cfg.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.store)
		rec = a.store
	}

	a.svc = service.New(cal, rec)
	m.OnHold = func(msg string) {
		a.svc.Publish(service.Event{Type: service.EventHold, Message: msg})
	}
	return a, nil
}
