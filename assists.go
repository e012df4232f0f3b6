package mga

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// GATurnAngle computes the turn angle about a given body based on the radius of periapsis.
func GATurnAngle(vInf, rP float64, body CelestialBody) float64 {
	ρ := math.Acos(1 / (1 + vInf*vInf*(rP/body.Mu)))
	return math.Pi - 2*ρ
}

// GAFromVinf computes gravity assist parameters about a given body from the V infinity vectors:
// the turn angle ψ, the radius of periapsis and the B-plane targets.
// All angles are in radians!
func GAFromVinf(vInfInVec, vInfOutVec r3.Vec, body CelestialBody) (ψ, rP, bT, bR, B, θ float64) {
	vInfIn := r3.Norm(vInfInVec)
	vInfOut := r3.Norm(vInfOutVec)
	ψ = safeAcos(r3.Dot(vInfInVec, vInfOutVec) / (vInfIn * vInfOut))
	rP = (body.Mu / (vInfIn * vInfIn)) * (1/math.Cos((math.Pi-ψ)/2) - 1)
	sHat := unit(vInfInVec)
	tHat := unit(r3.Cross(sHat, zAxis))
	rHat := unit(r3.Cross(sHat, tHat))
	hHat := unit(r3.Cross(vInfInVec, vInfOutVec))
	bVal := (body.Mu / (vInfIn * vInfIn)) * math.Sqrt(math.Pow(1+vInfIn*vInfIn*(rP/body.Mu), 2)-1)
	bVec := r3.Scale(bVal, unit(r3.Cross(sHat, hHat)))
	bT = r3.Dot(bVec, tHat)
	bR = r3.Dot(bVec, rHat)
	B = r3.Norm(bVec)
	θ = math.Atan2(bT, bR)
	return
}

// HyperbolicExcessVelocity returns v∞ of an open orbit, or NaN for closed orbits.
func HyperbolicExcessVelocity(o OrbitalElements, body CelestialBody) float64 {
	if !o.IsHyperbolic() || o.SemiMajorAxis >= 0 {
		return math.NaN()
	}
	return math.Sqrt(-body.Mu / o.SemiMajorAxis)
}
