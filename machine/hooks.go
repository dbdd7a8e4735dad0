package machine

import (
	"github.com/mastercactapus/zcal/gcode"
)

// Script returns a hook that runs blocks on the machine, or nil if there is
// nothing to run.
func (m *Machine) Script(name string, blocks []gcode.Block) func() error {
	if len(blocks) == 0 {
		return nil
	}
	return func() error {
		m.log.WithField("hook", name).Debugf("running %d block(s)", len(blocks))
		return m.runBlocks(blocks)
	}
}
