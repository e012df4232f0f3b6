package mga

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	lambertMaxIters = 15
	lambertε        = 1e-15
	// x2tof switches formulas when x gets close to 1 (parabola).
	lambertBattin   = 0.01
	lambertLagrange = 0.2
	hypergeometricε = 1e-11
)

// ErrLambertInput is returned when Lambert's problem is called with a non physical geometry.
var ErrLambertInput = errors.New("invalid Lambert problem")

// Lambert solves Lambert's boundary value problem with Izzo's algorithm: given two positions
// and a time of flight about the attractor, it returns the departure and arrival velocities.
// Only the zero revolution prograde transfer (about +Z) is computed. Householder iterations are
// capped, and the last iterate is used if they do not converge.
func Lambert(r1, r2 r3.Vec, tof float64, attractor CelestialBody) (v1, v2 r3.Vec, err error) {
	R1 := r3.Norm(r1)
	R2 := r3.Norm(r2)
	if tof <= 0 || R1 == 0 || R2 == 0 {
		err = ErrLambertInput
		return
	}
	μ := attractor.Mu
	c := r3.Norm(r3.Sub(r2, r1))
	s := (c + R1 + R2) / 2

	ir1 := r3.Scale(1/R1, r1)
	ir2 := r3.Scale(1/R2, r2)
	ih := unit(r3.Cross(ir1, ir2))

	λ2 := 1 - c/s
	λ := math.Sqrt(λ2)
	var it1, it2 r3.Vec
	if ih.Z < 0 {
		λ = -λ
		it1 = r3.Cross(ir1, ih)
		it2 = r3.Cross(ir2, ih)
	} else {
		it1 = r3.Cross(ih, ir1)
		it2 = r3.Cross(ih, ir2)
	}

	T := math.Sqrt(2*μ/(s*s*s)) * tof
	x := izzoSolve(λ, T)

	γ := math.Sqrt(μ * s / 2)
	ρ := (R1 - R2) / c
	σ := math.Sqrt(1 - ρ*ρ)
	y := math.Sqrt(1 - λ2 + λ2*x*x)
	vr1 := γ * ((λ*y - x) - ρ*(λ*y+x)) / R1
	vr2 := -γ * ((λ*y - x) + ρ*(λ*y+x)) / R2
	vt := γ * σ * (y + λ*x)

	v1 = r3.Add(r3.Scale(vr1, ir1), r3.Scale(vt/R1, it1))
	v2 = r3.Add(r3.Scale(vr2, ir2), r3.Scale(vt/R2, it2))
	return
}

// izzoSolve finds x such that x2tof(x) equals the non dimensional time of flight T.
func izzoSolve(λ, T float64) float64 {
	λ2 := λ * λ
	λ3 := λ2 * λ
	T0 := math.Acos(λ) + λ*math.Sqrt(1-λ2)
	T1 := 2. / 3. * (1 - λ3)

	var x0 float64
	switch {
	case T >= T0:
		x0 = math.Pow(T0/T, 2./3.) - 1
	case T < T1:
		x0 = 5./2.*T1/T*(T1-T)/(1-λ2*λ3) + 1
	default:
		x0 = math.Pow(T0/T, math.Ln2/math.Log(T1/T0)) - 1
	}
	return householder(λ, T, x0)
}

// householder refines x with third order Householder iterations.
func householder(λ, T, x0 float64) float64 {
	for i := 0; i < lambertMaxIters; i++ {
		tof := x2tof(λ, x0)
		DT, DDT, DDDT := dTdx(λ, x0, tof)
		δ := tof - T
		DT2 := DT * DT
		x := x0 - δ*(DT2-δ*DDT/2)/(DT*(DT2-δ*DDT)+DDDT*δ*δ/6)
		err := math.Abs(x0 - x)
		x0 = x
		if err < lambertε {
			break
		}
	}
	return x0
}

// dTdx returns the first three derivatives of the time of flight with respect to x.
func dTdx(λ, x, T float64) (DT, DDT, DDDT float64) {
	l2 := λ * λ
	l3 := l2 * λ
	umx2 := 1 - x*x
	y := math.Sqrt(1 - l2*umx2)
	y2 := y * y
	y3 := y2 * y
	DT = 1 / umx2 * (3*T*x - 2 + 2*l3*x/y)
	DDT = 1 / umx2 * (3*T + 5*x*DT + 2*(1-l2)*l3/y3)
	DDDT = 1 / umx2 * (7*x*DDT + 8*DT - 6*(1-l2)*l2*l3*x/y3/y2)
	return
}

// x2tof returns the non dimensional time of flight for x.
// Close to the parabola, x2tof uses Battin's hypergeometric series; a bit further
// away it uses Lagrange's expression; otherwise Lancaster's general formula.
func x2tof(λ, x float64) float64 {
	dist := math.Abs(x - 1)
	if dist < lambertLagrange && dist > lambertBattin {
		return x2tofLagrange(λ, x)
	}
	K := λ * λ
	E := x*x - 1
	ρ := math.Abs(E)
	z := math.Sqrt(1 + K*E)
	if dist < lambertBattin {
		η := z - λ*x
		S1 := 0.5 * (1 - λ - x*η)
		Q := 4. / 3. * hypergeometricF(S1, hypergeometricε)
		return (η*η*η*Q + 4*λ*η) / 2
	}
	y := math.Sqrt(ρ)
	g := x*z - λ*E
	var d float64
	if E < 0 {
		d = math.Acos(g)
	} else {
		f := y * (z - λ*x)
		d = math.Log(f + g)
	}
	return (x - λ*z - d/y) / E
}

func x2tofLagrange(λ, x float64) float64 {
	a := 1 / (1 - x*x)
	if a > 0 {
		α := 2 * math.Acos(x)
		β := 2 * math.Asin(math.Sqrt(λ*λ/a))
		if λ < 0 {
			β = -β
		}
		return a * math.Sqrt(a) * ((α - math.Sin(α)) - (β - math.Sin(β))) / 2
	}
	α := 2 * math.Acosh(x)
	β := 2 * math.Asinh(math.Sqrt(-λ*λ/a))
	if λ < 0 {
		β = -β
	}
	return -a * math.Sqrt(-a) * ((β - math.Sinh(β)) - (α - math.Sinh(α))) / 2
}

// hypergeometricF evaluates the Gauss hypergeometric function 2F1(3, 1, 5/2, z) by its series.
func hypergeometricF(z, tol float64) float64 {
	Sj, Cj := 1.0, 1.0
	for j := 0.0; j < newtonMaxIters; j++ {
		Cj = Cj * (3 + j) * (1 + j) / (2.5 + j) * z / (j + 1)
		Sj += Cj
		if math.Abs(Cj) <= tol {
			break
		}
	}
	return Sj
}

// Hohmann computes an Hohmann transfer between two circular coplanar orbits of radii r1 and r2.
// It returns the departure and arrival velocities on the transfer orbit, and the time of flight.
// To get final computations:
// ΔvInit = vDeparture - vI
// ΔvFinal = vArrival - vF
func Hohmann(r1, r2 float64, attractor CelestialBody) (vDeparture, vArrival, tof float64) {
	μ := attractor.Mu
	aTransfer := 0.5 * (r1 + r2)
	vDeparture = math.Sqrt((2 * μ / r1) - (μ / aTransfer))
	vArrival = math.Sqrt((2 * μ / r2) - (μ / aTransfer))
	tof = math.Pi * math.Sqrt(aTransfer*aTransfer*aTransfer/μ)
	return
}

// CircularVelocity returns the speed on a circular orbit of radius r.
func CircularVelocity(r float64, attractor CelestialBody) float64 {
	return math.Sqrt(attractor.Mu / r)
}
