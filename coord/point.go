package coord

import (
	"fmt"
	"math"
)

// Point is a position in machine coordinates, in millimeters.
type Point struct{ X, Y, Z float64 }

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// WithZ returns p with the Z component replaced.
func (p Point) WithZ(z float64) Point {
	p.Z = z
	return p
}

// WithXY returns p with the X and Y components replaced.
func (p Point) WithXY(x, y float64) Point {
	p.X = x
	p.Y = y
	return p
}

// Lift returns p raised by dz, but never below minZ.
func (p Point) Lift(dz, minZ float64) Point {
	p.Z = math.Max(p.Z+dz, minZ)
	return p
}

func (p Point) String() string {
	return fmt.Sprintf("X%.3f Y%.3f Z%.3f", p.X, p.Y, p.Z)
}
