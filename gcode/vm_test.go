package gcode

import (
	"testing"

	"github.com/mastercactapus/zcal/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAll(t *testing.T, vm *VM, script string) {
	t.Helper()
	for _, b := range MustParse(script) {
		require.NoError(t, vm.Run(b), b.String())
	}
}

func TestVM_MachineCoords(t *testing.T) {
	vm := NewVM()
	vm.SetMPos(coord.Point{X: 1, Y: 2, Z: 3})
	vm.SetWCO(coord.Point{X: 100, Y: 100, Z: 100})

	runAll(t, vm, "G53 G1 X10 Y20 F600\nG53 G1 Z5")
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 5}, vm.MPos())
	assert.Equal(t, 600.0, vm.Feed())

	runAll(t, vm, "G1 Z1")
	assert.Equal(t, 101.0, vm.MPos().Z, "work coordinates are offset by WCO")
}

func TestVM_RelativeProbe(t *testing.T) {
	vm := NewVM()
	vm.SetMPos(coord.Point{Z: 7})

	runAll(t, vm, "G91 G38.2 Z-10 F300")
	assert.True(t, vm.RelativeMotion())
	assert.Equal(t, 38.2, vm.Motion())
	assert.Equal(t, -3.0, vm.MPos().Z)

	runAll(t, vm, "G90\nG4 P0.5")
	assert.False(t, vm.RelativeMotion())
	assert.Equal(t, -3.0, vm.MPos().Z, "dwell does not move")
}

func TestVM_Tool(t *testing.T) {
	vm := NewVM()
	assert.Equal(t, -1, vm.Tool())

	runAll(t, vm, "T3\nM0")
	assert.Equal(t, 3, vm.Tool())
}

func TestVM_Unsupported(t *testing.T) {
	vm := NewVM()
	err := vm.Run(Block{G(2), {W: 'X', Arg: 1}})
	assert.EqualError(t, err, "unsupported code: G2")

	err = vm.Run(Block{G(0), G(1)})
	assert.Error(t, err)
}
