package gcode

import (
	"github.com/mastercactapus/zcal/coord"
	"github.com/pkg/errors"
)

// VM will track state and interpret gcode.
//
// It follows the commanded position only; probing moves leave the VM at
// the probe target until the caller corrects it with SetMPos.
type VM struct {
	pos coord.Point
	wco coord.Point

	modal [256]float64

	feed float64
	tool int
}

// NewVM constructs a new VM with default state.
func NewVM() *VM {
	vm := &VM{tool: -1}

	// using grbl defaults
	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupCoordinateSystem] = 54
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupFeedRateMode] = 94
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupStopping] = 0
	vm.modal[ModalGroupSpindle] = 5
	vm.modal[ModalGroupCoolant] = 9

	return vm
}

func (vm VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }

// Motion returns the active motion mode, e.g. 0, 1 or 38.2.
func (vm VM) Motion() float64 { return vm.modal[ModalGroupMotion] }

// Feed returns the last programmed feed rate in mm/min.
func (vm VM) Feed() float64 { return vm.feed }

// Tool returns the last selected tool number, or -1.
func (vm VM) Tool() int { return vm.tool }

func (vm VM) WPos() coord.Point {
	return vm.pos.Sub(vm.wco)
}
func (vm VM) MPos() coord.Point {
	return vm.pos
}
func (vm *VM) SetMPos(p coord.Point) {
	vm.pos = p
}
func (vm *VM) SetWCO(p coord.Point) {
	vm.wco = p
}
func (vm VM) WCO() coord.Point {
	return vm.wco
}

func isSupported(g Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 4, 20, 21, 38.2, 38.3, 38.4, 38.5, 53, 54, 90, 91, 94:
			return true
		}
	case 'M':
		switch g.Arg {
		case 0, 1, 3, 5, 9:
			return true
		}
	case 'F', 'P', 'S', 'T':
		return true
	}

	return false
}

func applyBlock(p coord.Point, b Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	var machineCoords, dwell bool
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal {
			vm.modal[mg] = g.Arg
		}
		switch {
		case g.Is('G', 53):
			machineCoords = true
		case g.Is('G', 4):
			dwell = true
		case g.W == 'F':
			vm.feed = g.Arg
		case g.W == 'T':
			vm.tool = int(g.Arg)
		}
	}
	if dwell {
		return nil
	}

	args := b.Args()
	if len(args) == 0 {
		return nil
	}

	mul := 1.0
	if vm.Inches() {
		mul = 25.4
	}
	// apply motion
	if vm.RelativeMotion() {
		vm.pos = vm.pos.Add(applyBlock(coord.Point{}, args, mul))
	} else if machineCoords {
		vm.pos = applyBlock(vm.pos, args, 1)
	} else {
		vm.pos = applyBlock(vm.WPos(), args, mul).Add(vm.wco)
	}

	return nil
}
