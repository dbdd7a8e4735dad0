package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Add(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 3}
	b := Point{X: 4, Y: 5, Z: 6}

	assert.Equal(t, Point{X: 5, Y: 7, Z: 9}, a.Add(b))
	assert.Equal(t, Point{X: -3, Y: -3, Z: -3}, a.Sub(b))
}

func TestPoint_Lift(t *testing.T) {
	p := Point{X: 10, Y: 20, Z: 1}

	assert.Equal(t, Point{X: 10, Y: 20, Z: 6}, p.Lift(2, 6), "safe height wins")
	assert.Equal(t, Point{X: 10, Y: 20, Z: 3}, p.Lift(2, 0))
	assert.Equal(t, 1.0, p.Z, "receiver is unchanged")
}

func TestPoint_With(t *testing.T) {
	p := Point{X: 1, Y: 2, Z: 3}

	assert.Equal(t, Point{X: 1, Y: 2, Z: math.Pi}, p.WithZ(math.Pi))
	assert.Equal(t, Point{X: 7, Y: 8, Z: 3}, p.WithXY(7, 8))
	assert.Equal(t, "X1.000 Y2.000 Z3.000", p.String())
}
