package mga

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// nullε is the threshold under which inclinations (from 0 or π) and eccentricities are snapped.
	nullε = 1e-10
)

// OrbitalState is a Cartesian state relative to an attractor at one instant.
type OrbitalState struct {
	Pos, Vel r3.Vec
}

// Add returns the sum of both states, e.g. to switch from a body centric frame to its attractor's frame.
func (s OrbitalState) Add(o OrbitalState) OrbitalState {
	return OrbitalState{r3.Add(s.Pos, o.Pos), r3.Add(s.Vel, o.Vel)}
}

// Sub returns the state relative to the provided one.
func (s OrbitalState) Sub(o OrbitalState) OrbitalState {
	return OrbitalState{r3.Sub(s.Pos, o.Pos), r3.Sub(s.Vel, o.Vel)}
}

func (s OrbitalState) String() string {
	return fmt.Sprintf("R=[%.3f %.3f %.3f] V=[%.6f %.6f %.6f]", s.Pos.X, s.Pos.Y, s.Pos.Z, s.Vel.X, s.Vel.Y, s.Vel.Z)
}

// OrbitalElements defines a conic about an attractor.
// When InPlane is set (inclination exactly 0 or π), the ascending node is undefined: Ω is
// zero and ω is the longitude of periapsis measured from the reference x axis. For circular
// orbits ω is zero and the periapsis direction is the ascending node direction (or the x axis
// if also in plane), so that true anomalies become arguments of latitude or true longitudes.
type OrbitalElements struct {
	SemiMajorAxis    float64 // negative for hyperbolic orbits
	Eccentricity     float64
	Inclination      float64
	ArgPeriapsis     float64 // ω
	AscNodeLongitude float64 // Ω
	OrbitalParam     float64 // semi-latus rectum p
	PeriapsisDir     r3.Vec
	AscNodeDir       r3.Vec
	InPlane          bool
}

// NewOrbitalElements returns the elements of a non parabolic orbit and computes its derived quantities.
// Angles are in radians.
func NewOrbitalElements(a, e, i, Ω, ω float64) OrbitalElements {
	inPlane := i == 0 || i == math.Pi
	if inPlane {
		Ω = 0
	}
	sΩ, cΩ := math.Sincos(Ω)
	return OrbitalElements{
		SemiMajorAxis:    a,
		Eccentricity:     e,
		Inclination:      i,
		ArgPeriapsis:     ω,
		AscNodeLongitude: Ω,
		OrbitalParam:     a * (1 - e*e),
		PeriapsisDir:     PQW2Inertial(i, ω, Ω, xAxis),
		AscNodeDir:       r3.Vec{X: cΩ, Y: sΩ},
		InPlane:          inPlane,
	}
}

// IsHyperbolic returns whether this orbit is open.
func (o OrbitalElements) IsHyperbolic() bool {
	return o.Eccentricity >= 1
}

// MeanMotion returns the mean motion (rad/s) about the provided attractor.
func (o OrbitalElements) MeanMotion(attractor CelestialBody) float64 {
	a := math.Abs(o.SemiMajorAxis)
	return math.Sqrt(attractor.Mu / (a * a * a))
}

// Period returns the orbital period in seconds, or +Inf for open orbits.
func (o OrbitalElements) Period(attractor CelestialBody) float64 {
	if o.IsHyperbolic() {
		return math.Inf(1)
	}
	return twoPi / o.MeanMotion(attractor)
}

// Periapsis returns the radius of periapsis.
func (o OrbitalElements) Periapsis() float64 {
	return o.OrbitalParam / (1 + o.Eccentricity)
}

// RadiusAt returns the radius at the provided true anomaly.
func (o OrbitalElements) RadiusAt(ν float64) float64 {
	return o.OrbitalParam / (1 + o.Eccentricity*math.Cos(ν))
}

// TrueAnomalyAtRadius returns the positive true anomaly at which the orbit reaches the radius r.
// Returns NaN if the orbit never reaches r.
func (o OrbitalElements) TrueAnomalyAtRadius(r float64) float64 {
	if o.Eccentricity == 0 {
		return math.NaN()
	}
	return safeAcos((o.OrbitalParam/r - 1) / o.Eccentricity)
}

func (o OrbitalElements) String() string {
	return fmt.Sprintf("a=%.1f e=%.6f i=%.3f Ω=%.3f ω=%.3f", o.SemiMajorAxis, o.Eccentricity, Rad2deg(o.Inclination), Rad2deg(o.AscNodeLongitude), Rad2deg(o.ArgPeriapsis))
}

// StateToElements returns the orbital elements of the provided state about the attractor,
// from the angular momentum and eccentricity vectors.
func StateToElements(s OrbitalState, attractor CelestialBody) OrbitalElements {
	μ := attractor.Mu
	r := r3.Norm(s.Pos)
	v := r3.Norm(s.Vel)
	hVec := r3.Cross(s.Pos, s.Vel)
	h := r3.Norm(hVec)
	eVec := r3.Sub(r3.Scale(1/μ, r3.Cross(s.Vel, hVec)), r3.Scale(1/r, s.Pos))
	e := r3.Norm(eVec)
	i := safeAcos(hVec.Z / h)

	inPlane := false
	if math.Abs(i) < nullε {
		i = 0
		inPlane = true
	} else if math.Abs(i-math.Pi) < nullε {
		i = math.Pi
		inPlane = true
	}
	circular := e <= nullε
	if circular {
		e = 0
	}

	o := OrbitalElements{
		SemiMajorAxis: 1 / (2/r - v*v/μ),
		Eccentricity:  e,
		Inclination:   i,
		OrbitalParam:  h * h / μ,
		InPlane:       inPlane,
	}

	switch {
	case inPlane && circular:
		o.AscNodeDir = xAxis
		o.PeriapsisDir = xAxis
	case inPlane:
		o.AscNodeDir = xAxis
		o.PeriapsisDir = unit(eVec)
		// Longitude of periapsis, measured in the sense of the R1(-i) rotation for retrograde orbits.
		if i == 0 {
			o.ArgPeriapsis = wrapAngle(math.Atan2(o.PeriapsisDir.Y, o.PeriapsisDir.X))
		} else {
			o.ArgPeriapsis = wrapAngle(math.Atan2(-o.PeriapsisDir.Y, o.PeriapsisDir.X))
		}
	default:
		o.AscNodeDir = unit(r3.Cross(zAxis, hVec))
		o.AscNodeLongitude = safeAcos(o.AscNodeDir.X)
		if o.AscNodeDir.Y < 0 {
			o.AscNodeLongitude = twoPi - o.AscNodeLongitude
		}
		if circular {
			o.PeriapsisDir = o.AscNodeDir
		} else {
			o.PeriapsisDir = unit(eVec)
			// Signed angle from the node to the periapsis about the momentum.
			hHat := r3.Scale(1/h, hVec)
			o.ArgPeriapsis = wrapAngle(math.Atan2(r3.Dot(r3.Cross(o.AscNodeDir, o.PeriapsisDir), hHat), r3.Dot(o.AscNodeDir, o.PeriapsisDir)))
		}
	}
	return o
}

// TrueAnomalyFromOrbitalState returns the true anomaly of the state on the provided orbit,
// measured from the periapsis direction in the direction of motion. It lies in [0, 2π) for
// closed orbits and in (-π, π] for open ones, so that inbound hyperbolic arcs are negative.
func TrueAnomalyFromOrbitalState(o OrbitalElements, s OrbitalState) float64 {
	rHat := unit(s.Pos)
	hHat := unit(r3.Cross(s.Pos, s.Vel))
	ν := math.Atan2(r3.Dot(r3.Cross(o.PeriapsisDir, rHat), hHat), r3.Dot(o.PeriapsisDir, rHat))
	if o.IsHyperbolic() {
		return ν
	}
	return wrapAngle(ν)
}

// ElementsToState returns the state on the orbit at the provided true anomaly.
func ElementsToState(o OrbitalElements, attractor CelestialBody, ν float64) OrbitalState {
	μ := attractor.Mu
	e := o.Eccentricity
	var pos, vel r3.Vec
	switch {
	case e < 1:
		a := o.SemiMajorAxis
		E := EccentricAnomalyFromTrue(e, ν)
		sinE, cosE := math.Sincos(E)
		b := math.Sqrt(1 - e*e)
		r := a * (1 - e*cosE)
		pos = r3.Vec{X: a * (cosE - e), Y: a * b * sinE}
		k := math.Sqrt(μ*a) / r
		vel = r3.Vec{X: -k * sinE, Y: k * b * cosE}
	case e > 1:
		a := -o.SemiMajorAxis
		H := EccentricAnomalyFromTrue(e, ν)
		sinhH, coshH := math.Sinh(H), math.Cosh(H)
		b := math.Sqrt(e*e - 1)
		r := a * (e*coshH - 1)
		pos = r3.Vec{X: a * (e - coshH), Y: a * b * sinhH}
		k := math.Sqrt(μ*a) / r
		vel = r3.Vec{X: -k * sinhH, Y: k * b * coshH}
	default:
		// Parabolic: the semi-major axis is undefined, use the orbital parameter.
		p := o.OrbitalParam
		sinν, cosν := math.Sincos(ν)
		r := p / (1 + cosν)
		pos = r3.Vec{X: r * cosν, Y: r * sinν}
		k := math.Sqrt(μ / p)
		vel = r3.Vec{X: -k * sinν, Y: k * (e + cosν)}
	}
	return OrbitalState{
		Pos: PQW2Inertial(o.Inclination, o.ArgPeriapsis, o.AscNodeLongitude, pos),
		Vel: PQW2Inertial(o.Inclination, o.ArgPeriapsis, o.AscNodeLongitude, vel),
	}
}
