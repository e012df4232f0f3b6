package mga

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestGATurnAngle(t *testing.T) {
	catalog := SolarSystem()
	body, _ := catalog.ByName("Mars")
	prev := math.Pi
	for _, alt := range []float64{200, 1000, 5000, 20000} {
		ψ := GATurnAngle(3, body.Radius+alt, body)
		if ψ <= 0 || ψ >= prev {
			t.Fatalf("turn angle %f at %f km should decrease with the altitude", ψ, alt)
		}
		prev = ψ
	}
}

func TestGAFromVinf(t *testing.T) {
	catalog := SolarSystem()
	body, _ := catalog.ByName("Earth")
	vInfIn := r3.Vec{X: 5, Y: 1, Z: 0.5}
	axis := r3.Cross(vInfIn, r3.Vec{X: 0.3, Y: -1, Z: 2})
	for _, exp := range []float64{0.1, 0.5, 1.2} {
		vInfOut := RotateAboutAxis(vInfIn, axis, exp)
		ψ, rP, bT, bR, B, _ := GAFromVinf(vInfIn, vInfOut, body)
		if !scalar.EqualWithinAbs(ψ, exp, 1e-9) {
			t.Fatalf("ψ=%f instead of %f", ψ, exp)
		}
		if turn := GATurnAngle(r3.Norm(vInfIn), rP, body); !scalar.EqualWithinAbs(turn, exp, 1e-9) {
			t.Fatalf("turn angle at rP=%f is %f instead of %f", rP, turn, exp)
		}
		if !scalar.EqualWithinRel(B*B, bT*bT+bR*bR, 1e-9) {
			t.Fatalf("|B|²=%f but BT²+BR²=%f", B*B, bT*bT+bR*bR)
		}
		if B <= rP {
			t.Fatalf("B=%f cannot be smaller than the periapsis %f", B, rP)
		}
	}
}

func TestHyperbolicExcessVelocity(t *testing.T) {
	vInf := 3.5
	o := NewOrbitalElements(-valladoEarth.Mu/(vInf*vInf), 1.4, 0.3, 0, 0)
	if v := HyperbolicExcessVelocity(o, valladoEarth); !scalar.EqualWithinAbs(v, vInf, 1e-12) {
		t.Fatalf("v∞=%f", v)
	}
	// The energy of any state on the hyperbola gives the same v∞.
	s := ElementsToState(o, valladoEarth, 1)
	energy := r3.Dot(s.Vel, s.Vel)/2 - valladoEarth.Mu/r3.Norm(s.Pos)
	if !scalar.EqualWithinAbs(math.Sqrt(2*energy), vInf, 1e-9) {
		t.Fatalf("v∞ from energy=%f", math.Sqrt(2*energy))
	}
	if !math.IsNaN(HyperbolicExcessVelocity(NewOrbitalElements(7000, 0.1, 0, 0, 0), valladoEarth)) {
		t.Fatal("closed orbits have no excess velocity")
	}
}
