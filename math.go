package mga

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	deg2rad = math.Pi / 180
	twoPi   = 2 * math.Pi

	maxFloat = math.MaxFloat64

	// newtonMaxIters is the default iteration cap of NewtonRootSolve.
	newtonMaxIters = 1000
)

var (
	xAxis = r3.Vec{X: 1}
	zAxis = r3.Vec{Z: 1}
)

// unit returns the unit vector of a given vector, or the zero vector if its norm is nil.
func unit(a r3.Vec) r3.Vec {
	n := r3.Norm(a)
	if scalar.EqualWithinAbs(n, 0, 1e-12) {
		return r3.Vec{}
	}
	return r3.Scale(1/n, a)
}

// unit2 is unit for planar vectors.
func unit2(a r2.Vec) r2.Vec {
	n := r2.Norm(a)
	if scalar.EqualWithinAbs(n, 0, 1e-12) {
		return r2.Vec{}
	}
	return r2.Scale(1/n, a)
}

// RotateAboutAxis rotates v by angle (radians, right hand rule) about the provided axis
// using Rodrigues' formula. The axis does not need to be normalized.
func RotateAboutAxis(v, axis r3.Vec, angle float64) r3.Vec {
	k := unit(axis)
	s, c := math.Sincos(angle)
	// v cosθ + (k × v) sinθ + k (k·v)(1 - cosθ)
	rot := r3.Add(r3.Scale(c, v), r3.Scale(s, r3.Cross(k, v)))
	return r3.Add(rot, r3.Scale(r3.Dot(k, v)*(1-c), k))
}

// Rotate2 rotates a planar vector by angle (radians, counter clockwise).
func Rotate2(v r2.Vec, angle float64) r2.Vec {
	s, c := math.Sincos(angle)
	return r2.Vec{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y}
}

// angle2 returns the polar angle of a planar vector in [0, 2π).
func angle2(v r2.Vec) float64 {
	return wrapAngle(math.Atan2(v.Y, v.X))
}

// NewtonRootSolve returns the root of f found by Newton iterations from x0.
// Iterations stop when |Δx| < eps or after maxIters iterations (1000 if maxIters <= 0).
// Non convergence is not an error: the last iterate is returned.
func NewtonRootSolve(f, df func(float64) float64, x0, eps float64, maxIters int) float64 {
	if maxIters <= 0 {
		maxIters = newtonMaxIters
	}
	x := x0
	for i := 0; i < maxIters; i++ {
		Δx := f(x) / df(x)
		x -= Δx
		if math.Abs(Δx) < eps {
			break
		}
	}
	return x
}

// wrapAngle returns the provided angle in [0, 2π).
func wrapAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// clamp bounds x within [lo, hi].
func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// lerp maps t in [0, 1] onto [a, b].
func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// safeAcos absorbs floating point overshoot slightly outside [-1, 1].
// Arguments further away than the tolerance still produce NaN.
func safeAcos(x float64) float64 {
	const tol = 1e-5
	if x > 1 && x < 1+tol {
		x = 1
	} else if x < -1 && x > -1-tol {
		x = -1
	}
	return math.Acos(x)
}

// hasNaN returns whether any of the provided values is NaN.
func hasNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func vecHasNaN(v r3.Vec) bool {
	return hasNaN(v.X, v.Y, v.Z)
}

// Deg2rad converts degrees to radians, and enforced only positive numbers.
func Deg2rad(a float64) float64 {
	if a < 0 {
		a += 360
	}
	return math.Mod(a*deg2rad, twoPi)
}

// Rad2deg converts radians to degrees, and enforced only positive numbers.
func Rad2deg(a float64) float64 {
	if a < 0 {
		a += twoPi
	}
	return math.Mod(a/deg2rad, 360)
}
