package machine

import (
	"sync"

	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/gcode"
	"github.com/sirupsen/logrus"
)

// Options describe the machine around the switch.
type Options struct {
	// Tools are the tool numbers available to the changer, in changer order.
	Tools []int

	// ChangePos is where tools are swapped, in machine coordinates.
	ChangePos    coord.Point
	TravelHeight float64

	// ProbeFeed is the full probing feed rate in mm/min.
	ProbeFeed float64

	// InitialTool is the tool loaded at startup, -1 if unknown.
	InitialTool int
}

// Machine drives a controller through an Adapter and tracks the
// commanded position with a gcode VM.
type Machine struct {
	Adapter

	opt Options

	mx     sync.Mutex
	vm     *gcode.VM
	active int

	// OnHold, if set, is called with a message when the machine pauses for
	// the operator, and with "" once it resumes.
	OnHold func(message string)

	log logrus.FieldLogger
}
type State struct {
	Status string
	MPos   coord.Point
	WCO    coord.Point
}

func NewMachine(a Adapter, opt Options) *Machine {
	m := &Machine{
		Adapter: a,
		opt:     opt,
		vm:      gcode.NewVM(),
		active:  opt.InitialTool,
		log:     logrus.WithField("component", "machine"),
	}
	stat := a.CurrentState()
	m.vm.SetMPos(stat.MPos)
	m.vm.SetWCO(stat.WCO)
	return m
}

// runBlocks sends blocks to the controller and applies them to the VM.
func (m *Machine) runBlocks(b []gcode.Block) error {
	for _, bl := range b {
		err := bl.Validate()
		if err != nil {
			return err
		}
	}
	_, err := m.Adapter.ReadFrom(gcode.NewBuffer(&gcode.BlocksReader{Blocks: b}))
	if err != nil {
		return err
	}

	m.mx.Lock()
	defer m.mx.Unlock()
	for _, bl := range b {
		err = m.vm.Run(bl)
		if err != nil {
			return err
		}
	}
	return nil
}

// Run sends a gcode script to the controller.
func (m *Machine) Run(b []gcode.Block) error {
	return m.runBlocks(b)
}

// resync replaces the commanded position with the last reported one.
func (m *Machine) resync() {
	stat := m.CurrentState()
	m.mx.Lock()
	defer m.mx.Unlock()
	m.vm.SetMPos(stat.MPos)
	m.vm.SetWCO(stat.WCO)
	m.vm.Run(gcode.Block{gcode.G(90)})
}

func (m *Machine) hold(message string) error {
	if m.OnHold != nil {
		m.OnHold(message)
		defer m.OnHold("")
	}
	m.log.Info("hold: ", message)
	_, err := m.Adapter.Write([]byte("M0\n"))
	if err != nil {
		return err
	}
	return m.WaitIdle()
}

func generateGoTo(travelZ float64, pos coord.Point, feed float64) []gcode.Block {
	return []gcode.Block{
		{
			gcode.G(53),
			gcode.G(0),
			{W: 'Z', Arg: travelZ},
		},
		{
			gcode.G(53),
			gcode.G(0),
			{W: 'X', Arg: pos.X},
			{W: 'Y', Arg: pos.Y},
		},
		{
			gcode.G(53),
			gcode.G(1),
			{W: 'Z', Arg: pos.Z},
			{W: 'F', Arg: feed},
		},
	}
}

// Resume releases a program pause (cycle start).
func (m *Machine) Resume() error {
	m.log.Info("resume")
	return m.Adapter.WriteByte('~')
}
