package mga

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestAnomalyRoundTrip(t *testing.T) {
	var eccentricities []float64
	for e := 0.0; e < 0.99; e += 0.033 {
		eccentricities = append(eccentricities, e)
	}
	eccentricities = append(eccentricities, 0.99, 1.01, 1.5, 2, 3.5, 5)
	for _, e := range eccentricities {
		νMax := math.Pi
		if e > 1 {
			νMax = 0.98 * math.Acos(-1/e)
		}
		for k := -20; k <= 20; k++ {
			ν := νMax * float64(k) / 21
			M := MeanAnomalyFromTrue(e, ν)
			if ν1 := TrueAnomalyFromMean(e, M); !anglesEqual(ν1, ν, 1e-9) {
				t.Fatalf("e=%f: ν=%f -> M=%f -> ν=%f", e, ν, M, ν1)
			}
			E := EccentricAnomalyFromTrue(e, ν)
			if ν1 := TrueAnomalyFromEccentric(e, E); !anglesEqual(ν1, ν, 1e-12) {
				t.Fatalf("e=%f: ν=%f -> E=%f -> ν=%f", e, ν, E, ν1)
			}
			if E1 := EccentricAnomalyFromMean(e, MeanAnomalyFromEccentric(e, E)); !anglesEqual(E1, E, 1e-9) {
				t.Fatalf("e=%f: Kepler's equation failed for E=%f (got %f)", e, E, E1)
			}
		}
	}
}

func TestAnomalyKnownValues(t *testing.T) {
	// Vallado example 2-1: M=235.4°, e=0.4 gives E=220.512074°.
	E := EccentricAnomalyFromMean(0.4, Deg2rad(235.4))
	if !scalar.EqualWithinAbs(Rad2deg(E), 220.512074, 1e-6) {
		t.Fatalf("E=%f°", Rad2deg(E))
	}
	// Vallado example 2-3: M=235.4°, e=2.4 gives H=1.601376.
	H := EccentricAnomalyFromMean(2.4, Deg2rad(235.4))
	if !scalar.EqualWithinAbs(H, 1.601376, 1e-6) {
		t.Fatalf("H=%f", H)
	}
	// Circular orbits: all anomalies are equal.
	if ν := TrueAnomalyFromMean(0, 1.234); !scalar.EqualWithinAbs(ν, 1.234, 1e-15) {
		t.Fatalf("ν=%f", ν)
	}
}

func TestTofBetweenAnomalies(t *testing.T) {
	circular := NewOrbitalElements(7000, 0, 0.2, 0, 0)
	period := circular.Period(valladoEarth)
	tof, err := TofBetweenAnomalies(circular, valladoEarth, 0, math.Pi/2)
	if err != nil || !scalar.EqualWithinRel(tof, period/4, 1e-12) {
		t.Fatalf("quarter orbit took %f s instead of %f (%v)", tof, period/4, err)
	}
	// Closed orbits wrap around.
	tof, err = TofBetweenAnomalies(circular, valladoEarth, 3*math.Pi/2, math.Pi/2)
	if err != nil || !scalar.EqualWithinRel(tof, period/2, 1e-12) {
		t.Fatalf("half orbit across periapsis took %f s instead of %f (%v)", tof, period/2, err)
	}

	elliptic := NewOrbitalElements(2e4, 0.5, 0.2, 0, 0)
	up, _ := TofBetweenAnomalies(elliptic, valladoEarth, 0, math.Pi)
	if !scalar.EqualWithinRel(up, elliptic.Period(valladoEarth)/2, 1e-12) {
		t.Fatalf("periapsis to apoapsis took %f s", up)
	}
	short, _ := TofBetweenAnomalies(elliptic, valladoEarth, -0.5, 0.5)
	long, _ := TofBetweenAnomalies(elliptic, valladoEarth, math.Pi-0.5, math.Pi+0.5)
	if short >= long {
		t.Fatal("the spacecraft should be faster at periapsis")
	}

	hyperbolic := NewOrbitalElements(-2e4, 1.5, 0.2, 0, 0)
	in, err := TofBetweenAnomalies(hyperbolic, valladoEarth, -1, 0)
	if err != nil || in <= 0 {
		t.Fatalf("inbound leg of the hyperbola: %f (%v)", in, err)
	}
	out, _ := TofBetweenAnomalies(hyperbolic, valladoEarth, 0, 1)
	if !scalar.EqualWithinRel(in, out, 1e-12) {
		t.Fatal("the hyperbola is not symmetric")
	}
	if _, err := TofBetweenAnomalies(hyperbolic, valladoEarth, 1, -1); !errors.Is(err, ErrNegativeTimeOfFlight) {
		t.Fatalf("expected ErrNegativeTimeOfFlight, got %v", err)
	}
}

func TestPropagateStateFromTrueAnomaly(t *testing.T) {
	for _, o := range []OrbitalElements{
		NewOrbitalElements(2e4, 0.3, 0.7, 1, 2),
		NewOrbitalElements(-3e4, 1.8, 2.2, 4, 0.5),
	} {
		ν0 := -0.4
		s0 := ElementsToState(o, valladoEarth, ν0)
		energy := func(s OrbitalState) float64 {
			return r3.Dot(s.Vel, s.Vel)/2 - valladoEarth.Mu/r3.Norm(s.Pos)
		}
		tof, err := TofBetweenAnomalies(o, valladoEarth, ν0, 0.9)
		if err != nil {
			t.Fatal(err)
		}
		s1, ν1 := PropagateStateFromTrueAnomaly(o, valladoEarth, ν0, tof)
		if !anglesEqual(ν1, 0.9, 1e-9) {
			t.Fatalf("propagation reached ν=%f instead of 0.9", ν1)
		}
		if !scalar.EqualWithinRel(energy(s1), energy(s0), 1e-9) {
			t.Fatalf("energy changed from %f to %f", energy(s0), energy(s1))
		}
		h0 := r3.Cross(s0.Pos, s0.Vel)
		h1 := r3.Cross(s1.Pos, s1.Vel)
		if !vectorsEqual(h0, h1, 1e-6*r3.Norm(h0)) {
			t.Fatalf("angular momentum changed from %v to %v", h0, h1)
		}
	}
	// A full period brings the spacecraft back.
	o := NewOrbitalElements(2e4, 0.3, 0.7, 1, 2)
	s0 := ElementsToState(o, valladoEarth, 1)
	s1, _ := PropagateStateFromTrueAnomaly(o, valladoEarth, 1, o.Period(valladoEarth))
	if !vectorsEqual(s0.Pos, s1.Pos, 1e-6) || !vectorsEqual(s0.Vel, s1.Vel, 1e-9) {
		t.Fatalf("state after one period: %s instead of %s", s1, s0)
	}
}
