package mga

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestR1R3(t *testing.T) {
	x := math.Pi / 3.0
	s, c := math.Sincos(x)
	r1 := R1(x)
	r3m := R3(x)
	// Test items equal to 1.
	if r1.At(0, 0) != r3m.At(2, 2) || r3m.At(2, 2) != 1 {
		t.Fatal("expected R1.At(0, 0) = R3.At(2, 2) = 1\n")
	}
	// Test items equal to 0.
	if r1.At(0, 1) != r1.At(0, 2) || r1.At(1, 0) != r1.At(2, 0) || r1.At(0, 1) != 0 {
		t.Fatal("misplaced zeros in R1\n")
	}
	if r3m.At(2, 0) != r3m.At(2, 1) || r3m.At(0, 2) != r3m.At(1, 2) || r3m.At(1, 2) != 0 {
		t.Fatal("misplaced zeros in R3\n")
	}
	// Test R1.
	if r1.At(1, 1) != r1.At(2, 2) || r1.At(2, 2) != c {
		t.Fatal("expected R1 cosines misplaced\n")
	}
	if r1.At(2, 1) != -r1.At(1, 2) || r1.At(1, 2) != s {
		t.Fatal("expected R1 sines misplaced\n")
	}
	// Test R3.
	if r3m.At(1, 1) != r3m.At(0, 0) || r3m.At(0, 0) != c {
		t.Fatal("expected R3 cosines misplaced\n")
	}
	if r3m.At(0, 1) != -r3m.At(1, 0) || r3m.At(0, 1) != s {
		t.Fatal("expected R3 sines misplaced\n")
	}
	// Rotations are orthogonal.
	var id mat.Dense
	id.Mul(r1, r1.T())
	if !mat.EqualApprox(&id, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-15) {
		t.Fatalf("R1·R1ᵀ is not the identity\n%v", mat.Formatted(&id))
	}
}

func TestMxV33(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if v := MxV33(m, r3.Vec{X: 1, Y: 0, Z: -1}); v != (r3.Vec{X: -2, Y: -2, Z: -2}) {
		t.Fatalf("M×V = %v", v)
	}
}

func TestPQW2Inertial(t *testing.T) {
	i := Deg2rad(87.87)
	ω := Deg2rad(53.38)
	Ω := Deg2rad(227.89)
	Rp := PQW2Inertial(i, ω, Ω, r3.Vec{X: -466.7639, Y: 11447.0219})
	Re := r3.Vec{X: 6525.368103709379, Y: 6861.531814548294, Z: 6449.118636407358}
	if !vectorsEqual(Re, Rp, 1e-6) {
		t.Fatalf("R conversion failed: %v", Rp)
	}
	Vp := PQW2Inertial(i, ω, Ω, r3.Vec{X: -5.996222, Y: 4.753601})
	Ve := r3.Vec{X: 4.902278620687254, Y: 5.533139558121602, Z: -1.9757104281719946}
	if !vectorsEqual(Ve, Vp, 1e-9) {
		t.Fatalf("V conversion failed: %v", Vp)
	}
	// Equatorial orbits only rotate about Z.
	v := PQW2Inertial(0, math.Pi/2, 0, r3.Vec{X: 1})
	if !vectorsEqual(v, r3.Vec{Y: 1}, 1e-15) {
		t.Fatalf("equatorial conversion failed: %v", v)
	}
}
