package machine

import (
	"fmt"

	"github.com/mastercactapus/zcal/gcode"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
)

var _ zswitch.ToolChanger = &Machine{}

// ToolIDs returns the configured tools in changer order.
func (m *Machine) ToolIDs() []int {
	ids := make([]int, len(m.opt.Tools))
	copy(ids, m.opt.Tools)
	return ids
}

// ActiveTool returns the loaded tool.
func (m *Machine) ActiveTool() (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.active < 0 {
		return 0, errors.New("no active tool")
	}
	return m.active, nil
}

// SelectTool travels to the change position and holds until the operator
// has loaded tool and resumed.
func (m *Machine) SelectTool(tool int) error {
	known := false
	for _, t := range m.opt.Tools {
		known = known || t == tool
	}
	if !known {
		return errors.Errorf("unknown tool T%d", tool)
	}

	m.mx.Lock()
	active := m.active
	m.mx.Unlock()
	if active == tool {
		return nil
	}

	err := m.runBlocks(generateGoTo(m.opt.TravelHeight, m.opt.ChangePos, m.opt.ProbeFeed))
	if err != nil {
		return err
	}
	err = m.runBlocks([]gcode.Block{{{W: 'T', Arg: float64(tool)}}})
	if err != nil {
		return err
	}
	err = m.hold(fmt.Sprintf("Load tool T%d, then resume.", tool))
	if err != nil {
		return err
	}

	m.mx.Lock()
	m.active = tool
	m.mx.Unlock()
	m.log.WithField("tool", tool).Info("tool loaded")
	return nil
}
