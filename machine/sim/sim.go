// Package sim provides a simulated grbl controller with a Z tool setter.
package sim

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/gcode"
	"github.com/mastercactapus/zcal/machine"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrAlarm is returned from writes that stop on an alarm.
var ErrAlarm = errors.New("alarm lock")

// Tool describes how a tool meets the switch.
type Tool struct {
	// Trigger is the machine Z the switch fires at.
	Trigger float64

	// Noise is added to Trigger, one entry per probe, cycling.
	Noise []float64

	// PreTriggered is how many probe cycles will start with the switch
	// already closed.
	PreTriggered int
}

// Adapter is an in-memory machine.Adapter.
type Adapter struct {
	mx     sync.Mutex
	vm     *gcode.VM
	tools  map[int]*Tool
	probed map[int]int
	homed  bool

	alarm  *machine.AlarmError
	probes []machine.ProbeResult
	lines  []string
	state  chan machine.State

	log logrus.FieldLogger
}

var _ machine.Adapter = &Adapter{}

// New returns a homed, idle controller at start.
func New(start coord.Point, tools map[int]*Tool) *Adapter {
	a := &Adapter{
		vm:     gcode.NewVM(),
		tools:  tools,
		probed: make(map[int]int),
		homed:  true,
		state:  make(chan machine.State),
		log:    logrus.WithField("component", "sim"),
	}
	if a.tools == nil {
		a.tools = make(map[int]*Tool)
	}
	a.vm.SetMPos(start)
	return a
}

// SetHomed changes the reported homing state.
func (a *Adapter) SetHomed(v bool) {
	a.mx.Lock()
	a.homed = v
	a.mx.Unlock()
}

// LoadTool sets the loaded tool without executing a line.
func (a *Adapter) LoadTool(tool int) {
	a.mx.Lock()
	a.vm.Run(gcode.Block{{W: 'T', Arg: float64(tool)}})
	a.mx.Unlock()
}

// Lines returns every line executed so far.
func (a *Adapter) Lines() []string {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]string(nil), a.lines...)
}

func (a *Adapter) Probes() []machine.ProbeResult {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]machine.ProbeResult(nil), a.probes...)
}
func (a *Adapter) ResetProbes() {
	a.mx.Lock()
	a.probes = nil
	a.mx.Unlock()
}
func (a *Adapter) LastAlarm() *machine.AlarmError {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.alarm
}
func (a *Adapter) Unlock() error {
	_, err := a.Write([]byte("$X\n"))
	return err
}

func (a *Adapter) State() chan machine.State { return a.state }

func (a *Adapter) CurrentState() machine.State {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.currentState()
}

func (a *Adapter) currentState() machine.State {
	status := "Idle"
	if a.alarm != nil || !a.homed {
		status = "Alarm"
	}
	return machine.State{Status: status, MPos: a.vm.MPos(), WCO: a.vm.WCO()}
}

func (a *Adapter) WriteByte(b byte) error { return nil }

func (a *Adapter) Write(p []byte) (int, error) {
	n, err := a.ReadFrom(bytes.NewReader(p))
	return int(n), err
}

// ReadFrom executes each line in r, stopping at the first error.
func (a *Adapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		n += int64(len(scan.Bytes())) + 1
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		a.mx.Lock()
		a.lines = append(a.lines, line)
		err = a.exec(line)
		stat := a.currentState()
		a.mx.Unlock()

		select {
		case a.state <- stat:
		default:
		}
		if err != nil {
			return n, err
		}
	}
	return n, scan.Err()
}

func (a *Adapter) exec(line string) error {
	switch line {
	case "$X":
		a.alarm = nil
		return nil
	case "$H":
		a.alarm = nil
		a.homed = true
		return nil
	}
	if strings.HasPrefix(line, "$") {
		return errors.New("error:3")
	}
	if a.alarm != nil {
		return errors.Wrap(ErrAlarm, a.alarm.Error())
	}

	blocks, err := gcode.Parse(line)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		start := a.vm.MPos()
		err = a.vm.Run(b)
		if err != nil {
			return err
		}
		if b.Has('G', 38.2) {
			err = a.probe(start)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// probe resolves a G38.2 move from start to the VM target.
func (a *Adapter) probe(start coord.Point) error {
	target := a.vm.MPos()
	t := a.tools[a.vm.Tool()]
	if t == nil {
		a.vm.SetMPos(start)
		return a.raise(5)
	}

	n := a.probed[a.vm.Tool()]
	a.probed[a.vm.Tool()] = n + 1
	z := t.Trigger
	if len(t.Noise) > 0 {
		z += t.Noise[n%len(t.Noise)]
	}

	if t.PreTriggered > 0 || start.Z <= z {
		if t.PreTriggered > 0 {
			t.PreTriggered--
		}
		a.vm.SetMPos(start)
		return a.raise(machine.AlarmProbeInitialState)
	}
	if target.Z > z {
		a.probes = append(a.probes, machine.ProbeResult{Point: target})
		return a.raise(5)
	}

	hit := start.WithZ(z)
	a.vm.SetMPos(hit)
	a.probes = append(a.probes, machine.ProbeResult{Point: hit, Valid: true})
	return nil
}

func (a *Adapter) raise(code int) error {
	a.alarm = &machine.AlarmError{Code: code}
	// an alarm resets the parser state
	a.vm.Run(gcode.Block{gcode.G(90)})
	a.log.Warn(a.alarm.Error())
	return errors.Wrap(ErrAlarm, a.alarm.Error())
}
