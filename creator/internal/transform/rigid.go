package transform

import (
	"math"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

// Rigid maps a point from a child frame into its parent: rotate by Yaw
// (radians, counter-clockwise) then translate by (X, Y).
type Rigid struct {
	X   float64 `yaml:"x"`
	Y   float64 `yaml:"y"`
	Yaw float64 `yaml:"yaw"`
}

// Identity is the transform that leaves points unchanged.
var Identity = Rigid{}

// Apply maps p through r.
func (r Rigid) Apply(p observation.Point) observation.Point {
	sin, cos := math.Sincos(r.Yaw)
	return observation.Point{
		X: cos*p.X - sin*p.Y + r.X,
		Y: sin*p.X + cos*p.Y + r.Y,
	}
}

// Then returns the transform that applies r first and next second.
func (r Rigid) Then(next Rigid) Rigid {
	t := next.Apply(observation.Point{X: r.X, Y: r.Y})
	return Rigid{X: t.X, Y: t.Y, Yaw: normalize(r.Yaw + next.Yaw)}
}

// Inverse returns the transform that undoes r.
func (r Rigid) Inverse() Rigid {
	sin, cos := math.Sincos(-r.Yaw)
	return Rigid{
		X:   -(cos*r.X - sin*r.Y),
		Y:   -(sin*r.X + cos*r.Y),
		Yaw: normalize(-r.Yaw),
	}
}

// normalize wraps an angle into (-pi, pi].
func normalize(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	switch {
	case a > math.Pi:
		a -= 2 * math.Pi
	case a <= -math.Pi:
		a += 2 * math.Pi
	}
	return a
}
