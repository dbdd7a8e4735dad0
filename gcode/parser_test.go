package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	blocks, err := Parse(`
		; park before pickup
		G90
		g53 g0 z 10 (travel height)
		G91 G38.2 Z-10 F300
		T2 M0
	`)
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	assert.Equal(t, Block{G(90)}, blocks[0])
	assert.Equal(t, "G53G0Z10", blocks[1].String())
	assert.Equal(t, "G91G38.2Z-10F300", blocks[2].String())
	assert.True(t, blocks[3].Has('M', 0))

	ok, tool := blocks[3].Arg('T')
	assert.True(t, ok)
	assert.Equal(t, 2.0, tool)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("G0 X1\nG0 X$\n")
	assert.EqualError(t, err, "line 2: invalid or unhandled line: G0X$")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "G4P0.15\nM0\n", Format([]Block{{G(4), {W: 'P', Arg: 0.15}}, {M(0)}}))
	assert.Equal(t, "", Format(nil))
}
