package mga

import (
	"errors"
	"math"
)

const keplerε = 1e-15

// ErrNegativeTimeOfFlight is returned when a pair of anomalies cannot be flown forward in time.
var ErrNegativeTimeOfFlight = errors.New("negative time of flight")

// EccentricAnomalyFromTrue returns the eccentric anomaly (e < 1) or the hyperbolic anomaly (e >= 1).
func EccentricAnomalyFromTrue(e, ν float64) float64 {
	if e < 1 {
		sinν, cosν := math.Sincos(ν)
		return math.Atan2(math.Sqrt(1-e*e)*sinν, e+cosν)
	}
	return 2 * math.Atanh(math.Sqrt((e-1)/(e+1))*math.Tan(ν/2))
}

// TrueAnomalyFromEccentric is the inverse of EccentricAnomalyFromTrue.
func TrueAnomalyFromEccentric(e, E float64) float64 {
	if e < 1 {
		sinE2, cosE2 := math.Sincos(E / 2)
		return 2 * math.Atan2(math.Sqrt(1+e)*sinE2, math.Sqrt(1-e)*cosE2)
	}
	return 2 * math.Atan(math.Sqrt((e+1)/(e-1))*math.Tanh(E/2))
}

// MeanAnomalyFromEccentric applies Kepler's equation (or its hyperbolic equivalent).
func MeanAnomalyFromEccentric(e, E float64) float64 {
	if e < 1 {
		return E - e*math.Sin(E)
	}
	return e*math.Sinh(E) - E
}

// EccentricAnomalyFromMean solves Kepler's equation (or its hyperbolic equivalent) with Newton iterations.
// Closed orbits use the mean anomaly wrapped in [0, 2π).
func EccentricAnomalyFromMean(e, M float64) float64 {
	if e < 1 {
		M = wrapAngle(M)
		E0 := M
		if e > 0.8 {
			E0 = math.Pi
		}
		f := func(E float64) float64 { return E - e*math.Sin(E) - M }
		df := func(E float64) float64 { return 1 - e*math.Cos(E) }
		return NewtonRootSolve(f, df, E0, keplerε, newtonMaxIters)
	}
	H0 := math.Log(2*math.Abs(M)/e + 1.8)
	if M < 0 {
		H0 = -H0
	}
	f := func(H float64) float64 { return e*math.Sinh(H) - H - M }
	df := func(H float64) float64 { return e*math.Cosh(H) - 1 }
	return NewtonRootSolve(f, df, H0, keplerε, newtonMaxIters)
}

// MeanAnomalyFromTrue returns the mean anomaly for the provided true anomaly.
func MeanAnomalyFromTrue(e, ν float64) float64 {
	return MeanAnomalyFromEccentric(e, EccentricAnomalyFromTrue(e, ν))
}

// TrueAnomalyFromMean returns the true anomaly for the provided mean anomaly.
func TrueAnomalyFromMean(e, M float64) float64 {
	return TrueAnomalyFromEccentric(e, EccentricAnomalyFromMean(e, M))
}

// TofBetweenAnomalies returns the time needed to fly from ν1 to ν2 on the provided orbit.
// On closed orbits ν2 is always reached after ν1, within one period. On open orbits ν2 must
// come after ν1, otherwise ErrNegativeTimeOfFlight is returned.
func TofBetweenAnomalies(o OrbitalElements, attractor CelestialBody, ν1, ν2 float64) (float64, error) {
	e := o.Eccentricity
	M1 := MeanAnomalyFromTrue(e, ν1)
	M2 := MeanAnomalyFromTrue(e, ν2)
	if e < 1 {
		M1 = wrapAngle(M1)
		M2 = wrapAngle(M2)
		if M2 < M1 {
			M2 += twoPi
		}
	}
	tof := (M2 - M1) / o.MeanMotion(attractor)
	if tof < 0 {
		return tof, ErrNegativeTimeOfFlight
	}
	return tof, nil
}

// PropagateStateFromTrueAnomaly propagates along the orbit from ν0 for Δt seconds.
// It returns the state and the true anomaly reached.
func PropagateStateFromTrueAnomaly(o OrbitalElements, attractor CelestialBody, ν0, Δt float64) (OrbitalState, float64) {
	M0 := MeanAnomalyFromTrue(o.Eccentricity, ν0)
	M := M0 + o.MeanMotion(attractor)*Δt
	ν := TrueAnomalyFromMean(o.Eccentricity, M)
	return ElementsToState(o, attractor, ν), ν
}
