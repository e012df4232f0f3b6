package mga

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// computeFeasible computes random agents until one of them is feasible.
func computeFeasible(t *testing.T, calc *TrajectoryCalculator, rng *rand.Rand, dateMin, dateMax float64) {
	t.Helper()
	agent := make([]float64, AgentDim(calc.Legs()))
	var lastErr error
	for attempt := 0; attempt < 2000; attempt++ {
		RandomizeAgent(agent, rng)
		if err := calc.SetParameters(200, dateMin, dateMax, agent); err != nil {
			t.Fatal(err)
		}
		calc.Compute()
		if calc.Success {
			return
		}
		lastErr = calc.Failure()
		if lastErr == nil {
			t.Fatal("failed computation without reason")
		}
	}
	t.Fatalf("no feasible trajectory found: %s", lastErr)
}

func checkSteps(t *testing.T, calc *TrajectoryCalculator, sequence []int) {
	t.Helper()
	steps := calc.Steps
	if len(steps) != 2+3*(len(sequence)-1) {
		t.Fatalf("%d steps for %d legs", len(steps), len(sequence)-1)
	}
	total := 0.0
	for k, s := range steps {
		if s.Duration < 0 {
			t.Fatalf("step %d lasts %f s", k, s.Duration)
		}
		if k > 0 && !scalar.EqualWithinAbs(s.DateOfStart, steps[k-1].DateOfStart+steps[k-1].Duration, 1e-6) {
			t.Fatalf("step %d starts at %f instead of the end of the previous one", k, s.DateOfStart)
		}
		if s.Maneuver != nil {
			total += s.Maneuver.Magnitude()
		}
	}
	if !scalar.EqualWithinAbs(total, calc.TotalDeltaV, 1e-9) {
		t.Fatalf("total ΔV %f differs from the sum of the maneuvers %f", calc.TotalDeltaV, total)
	}
	// Parking orbit and ejection.
	if steps[0].Attractor != sequence[0] || steps[0].Maneuver != nil || steps[0].Elements.Eccentricity != 0 {
		t.Fatalf("invalid parking step %s", steps[0])
	}
	if m := steps[1].Maneuver; m == nil || m.Context.Kind != EjectionManeuver || !steps[1].Elements.IsHyperbolic() {
		t.Fatalf("invalid ejection step %s", steps[1])
	}
	for leg := 0; leg < len(sequence)-1; leg++ {
		first, second, encounter := steps[2+3*leg], steps[3+3*leg], steps[4+3*leg]
		if first.Maneuver != nil || first.Attractor != 0 {
			t.Fatalf("leg %d: invalid first arc %s", leg, first)
		}
		if m := second.Maneuver; m == nil || m.Context.Kind != DSMManeuver || m.Context.Origin != sequence[leg] || m.Context.Target != sequence[leg+1] {
			t.Fatalf("leg %d: invalid DSM arc %s", leg, second)
		}
		if encounter.Attractor != sequence[leg+1] || encounter.BeginAngle >= 0 {
			t.Fatalf("leg %d: invalid encounter %s", leg, encounter)
		}
		if leg < len(sequence)-2 {
			m := encounter.Maneuver
			if m == nil || m.Context.Kind != FlybyManeuver || m.Magnitude() != 0 || m.Periapsis != encounter.Elements.Periapsis() {
				t.Fatalf("leg %d: invalid flyby %s", leg, encounter)
			}
			if encounter.EndAngle != -encounter.BeginAngle || m.TurnAngle <= 0 || m.TurnAngle >= math.Pi {
				t.Fatalf("leg %d: flyby is not symmetric or has an invalid turn angle %f", leg, m.TurnAngle)
			}
			if m.Deflection <= 0 || m.Deflection > m.TurnAngle+1e-9 || math.Hypot(m.BT, m.BR) == 0 {
				t.Fatalf("leg %d: invalid flyby diagnostics ψ=%f B=(%f, %f)", leg, m.Deflection, m.BT, m.BR)
			}
		} else if encounter.EndAngle != 0 {
			t.Fatalf("arrival ends at ν=%f instead of the periapsis", encounter.EndAngle)
		}
	}
}

func TestTrajectoryDirect(t *testing.T) {
	catalog := SolarSystem()
	config := DefaultConfig()
	sequence := []int{3, 4}
	rng := rand.New(rand.NewSource(1))
	calc, err := NewTrajectoryCalculator(catalog, config, sequence, rng)
	if err != nil {
		t.Fatal(err)
	}
	dateMin, _ := ParseDate("2026-06-01")
	dateMax, _ := ParseDate("2027-01-01")
	computeFeasible(t, calc, rng, dateMin, dateMax)
	checkSteps(t, calc, sequence)
	if start := calc.Steps[0].DateOfStart; start < dateMin || start > dateMax {
		t.Fatalf("departure %s outside of the window", FormatDate(start))
	}
	last := calc.Steps[len(calc.Steps)-1]
	if m := last.Maneuver; m == nil || m.Context.Kind != CircularizationManeuver || !scalar.EqualWithinAbs(m.Magnitude(), calc.CircularizationDeltaV(), 1e-12) {
		t.Fatalf("invalid insertion %s", last)
	}
	if calc.FinalInclination() != last.Elements.Inclination {
		t.Fatal("final inclination is not the one of the arrival orbit")
	}
	t.Logf("Δv=%f km/s", calc.TotalDeltaV)
	for _, s := range calc.Steps {
		t.Log(s)
	}

	// Without insertion, the circularization is computed but not flown.
	config.Insertion = false
	calc, _ = NewTrajectoryCalculator(catalog, config, sequence, rng)
	computeFeasible(t, calc, rng, dateMin, dateMax)
	checkSteps(t, calc, sequence)
	if calc.Steps[len(calc.Steps)-1].Maneuver != nil || calc.CircularizationDeltaV() <= 0 {
		t.Fatal("arrival without insertion should not have any maneuver")
	}
}

func TestTrajectoryFlyby(t *testing.T) {
	catalog := SolarSystem()
	sequence := []int{3, 2, 4}
	rng := rand.New(rand.NewSource(2))
	calc, err := NewTrajectoryCalculator(catalog, DefaultConfig(), sequence, rng)
	if err != nil {
		t.Fatal(err)
	}
	if calc.Legs() != 2 {
		t.Fatalf("%d legs", calc.Legs())
	}
	dateMin, _ := ParseDate("2026-01-01")
	dateMax, _ := ParseDate("2028-01-01")
	computeFeasible(t, calc, rng, dateMin, dateMax)
	checkSteps(t, calc, sequence)
	flyby := calc.Steps[4].Maneuver
	if venus, _ := catalog.Body(2); flyby.Periapsis < venus.Radius {
		t.Fatalf("flyby below the surface: %f km", flyby.Periapsis)
	}
	// Computing again from the returned agent yields the same trajectory.
	steps := calc.Steps
	if err := calc.SetParameters(200, dateMin, dateMax, calc.Agent()); err != nil {
		t.Fatal(err)
	}
	calc.Compute()
	if !calc.Success || len(calc.Steps) != len(steps) || calc.Steps[7].DateOfStart != steps[7].DateOfStart {
		t.Fatalf("recomputed trajectory differs: %v", calc.Failure())
	}
}

func TestTrajectoryResonant(t *testing.T) {
	catalog := SolarSystem()
	config := DefaultConfig()
	sequence := []int{3, 3, 4}
	rng := rand.New(rand.NewSource(4))
	calc, err := NewTrajectoryCalculator(catalog, config, sequence, rng)
	if err != nil {
		t.Fatal(err)
	}
	dateMin, _ := ParseDate("2026-01-01")
	dateMax, _ := ParseDate("2028-01-01")
	computeFeasible(t, calc, rng, dateMin, dateMax)
	checkSteps(t, calc, sequence)
	earth, _ := catalog.Body(3)
	period := earth.Orbit.Elements.Period(catalog.Root())
	if d := calc.Steps[2].Duration + calc.Steps[3].Duration; d < config.ResonantLegMin*period-1e-6 || d > config.ResonantLegMax*period+1e-6 {
		t.Fatalf("resonant leg of %f days for a period of %f days", d/secondsPerDay, period/secondsPerDay)
	}
}

func TestResonantDeparture(t *testing.T) {
	catalog := SolarSystem()
	earth, _ := catalog.Body(3)
	calc, err := NewTrajectoryCalculator(catalog, DefaultConfig(), []int{3, 3, 4}, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatal(err)
	}
	// Lowest ejection ΔV and the longest resonant leg: four years.
	agent := []float64{0.5, 0, 1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	if err := calc.SetParameters(200, 0, 0, agent); err != nil {
		t.Fatal(err)
	}
	// The orbit of period four years tangent to the Earth's leaves at about 7.9 km/s.
	vInf, outwards := calc.idealExcessVelocity(earth, earth)
	if !outwards || vInf < 7.5 || vInf > 8.3 {
		t.Fatalf("resonant v∞=%f km/s outwards=%v", vInf, outwards)
	}
	calc.Compute()
	if errors.Is(calc.Failure(), ErrNotEscaping) {
		t.Fatal("the departure on a resonant leg should escape the Earth")
	}
}

func TestTrajectorySOIExceeded(t *testing.T) {
	sun := CelestialBody{ID: 0, Name: "Sun", Mu: 1.32712440017987e11, SOI: math.Inf(1)}
	earth := CelestialBody{ID: 3, Name: "Earth", Radius: 6378, Mu: 398600.433, SOI: 924645,
		Orbit: &BodyOrbit{Attractor: 0, Elements: NewOrbitalElements(AU, 0, 0, 0, 0)}}
	moon := CelestialBody{ID: 301, Name: "Moon", Radius: 1737, Mu: 4902.8, SOI: 66100,
		Orbit: &BodyOrbit{Attractor: 3, Elements: NewOrbitalElements(384400, 0, 0, 0, 0)}}
	catalog, err := NewCatalog(sun, earth, moon)
	if err != nil {
		t.Fatal(err)
	}
	config := DefaultConfig()
	config.EjectionDVScaleMin, config.EjectionDVScaleMax = 1.5, 1.5
	calc, err := NewTrajectoryCalculator(catalog, config, []int{301, 301}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	// A four month resonance with the Moon does not fit in the Earth's sphere of influence.
	if err := calc.SetParameters(100, 0, 1e6, []float64{0.5, 0.5, 1, 0.5, 0.5, 0.5}); err != nil {
		t.Fatal(err)
	}
	calc.Compute()
	if calc.Success || !errors.Is(calc.Failure(), ErrSOIExceeded) {
		t.Fatalf("expected an SOI violation, got %v", calc.Failure())
	}
}

func TestExceedsSOI(t *testing.T) {
	root := CelestialBody{Mu: valladoEarth.Mu, SOI: 1e6}
	for _, tc := range []struct {
		name string
		o    OrbitalElements
		exp  bool
	}{
		{"inside", NewOrbitalElements(4e5, 0.5, 0, 0, 0), false},
		{"apoapsis outside", NewOrbitalElements(8e5, 0.5, 0, 0, 0), true},
		{"semi-major axis outside", NewOrbitalElements(2e6, 0.1, 0, 0, 0), true},
		{"open", NewOrbitalElements(-4e5, 1.5, 0, 0, 0), true},
	} {
		if got := exceedsSOI(tc.o, root); got != tc.exp {
			t.Fatalf("%s: exceedsSOI=%v", tc.name, got)
		}
	}
	root.SOI = math.Inf(1)
	if exceedsSOI(NewOrbitalElements(-4e5, 1.5, 0, 0, 0), root) {
		t.Fatal("nothing leaves an infinite sphere of influence")
	}
}

func TestFlybyRejections(t *testing.T) {
	catalog := SolarSystem()
	venus, _ := catalog.Body(2)
	calc, err := NewTrajectoryCalculator(catalog, DefaultConfig(), []int{3, 2, 4}, rand.New(rand.NewSource(6)))
	if err != nil {
		t.Fatal(err)
	}
	bodyState := BodyStateAtDate(venus, catalog.Root(), 0)
	entry := r3.Vec{X: venus.SOI}
	for name, tc := range map[string]struct {
		vel r3.Vec
		err error
	}{
		"captured":  {r3.Vec{X: -0.2, Y: 0.3}, ErrNotHyperbolic},
		"collision": {r3.Vec{X: -5, Y: 0.01}, ErrCollision},
		"outbound":  {r3.Vec{X: 5, Y: 1}, ErrOutbound},
	} {
		calc.state = bodyState.Add(OrbitalState{Pos: entry, Vel: tc.vel})
		if err := calc.computeFlyby(venus, bodyState); !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", name, tc.err, err)
		}
		if len(calc.Steps) != 0 {
			t.Fatalf("%s: a rejected flyby added a step", name)
		}
	}

	calc.state = bodyState.Add(OrbitalState{Pos: entry, Vel: r3.Vec{X: -5, Y: 0.5}})
	if err := calc.computeFlyby(venus, bodyState); err != nil {
		t.Fatal(err)
	}
	if len(calc.Steps) != 1 {
		t.Fatalf("%d steps", len(calc.Steps))
	}
	m := calc.Steps[0].Maneuver
	if m.Periapsis < venus.Radius || m.Deflection <= 0 || m.Deflection > m.TurnAngle+1e-9 {
		t.Fatalf("flyby at rP=%f with ψ=%f and a turn angle of %f", m.Periapsis, m.Deflection, m.TurnAngle)
	}
	if math.Hypot(m.BT, m.BR) <= 0 {
		t.Fatalf("null B-plane target (%f, %f)", m.BT, m.BR)
	}
	// The spacecraft leaves the SOI as fast as it entered.
	if rel := calc.state.Sub(BodyStateAtDate(venus, catalog.Root(), calc.missionTime)); !scalar.EqualWithinRel(r3.Norm(rel.Vel), r3.Norm(r3.Vec{X: -5, Y: 0.5}), 1e-6) {
		t.Fatalf("exit speed %f", r3.Norm(rel.Vel))
	}
}

func TestTrajectoryEntryResampling(t *testing.T) {
	calc, err := NewTrajectoryCalculator(SolarSystem(), DefaultConfig(), []int{3, 4}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	agent := []float64{0.5, 0.5, 0.5, 0.5, 0.25, 0}
	if err := calc.SetParameters(200, 0, 0, agent); err != nil {
		t.Fatal(err)
	}
	calc.Compute()
	mars, _ := SolarSystem().Body(4)
	φMin := math.Asin(mars.Radius/mars.SOI) / math.Pi
	if φ := calc.Agent()[5]; φ < φMin || φ > 1-φMin {
		t.Fatalf("polar angle %f not resampled within [%f, %f]", φ, φMin, 1-φMin)
	}
	if agent[5] != 0 {
		t.Fatal("the caller's agent was modified")
	}
}

func TestTrajectoryInfeasible(t *testing.T) {
	config := DefaultConfig()
	config.EjectionDVScaleMin, config.EjectionDVScaleMax = 0, 0
	calc, err := NewTrajectoryCalculator(SolarSystem(), config, []int{3, 4}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := calc.SetParameters(200, 0, 0, []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}); err != nil {
		t.Fatal(err)
	}
	calc.Compute()
	if calc.Success || !errors.Is(calc.Failure(), ErrNotEscaping) || calc.Steps != nil {
		t.Fatalf("a null ejection cannot escape: success=%v err=%v", calc.Success, calc.Failure())
	}
}

func TestNewTrajectoryCalculatorErrors(t *testing.T) {
	catalog := SolarSystem()
	config := DefaultConfig()
	for name, sequence := range map[string][]int{
		"empty":        nil,
		"single body":  {3},
		"unknown body": {3, 42},
		"root body":    {0, 3},
	} {
		if _, err := NewTrajectoryCalculator(catalog, config, sequence, nil); err == nil {
			t.Fatalf("%s: sequence should be invalid", name)
		}
	}
	calc, err := NewTrajectoryCalculator(catalog, config, []int{3, 3, 4}, nil)
	if err != nil {
		t.Fatalf("resonant sequences are valid: %s", err)
	}
	if err := calc.SetParameters(200, 0, 1, make([]float64, AgentDim(1))); err == nil {
		t.Fatal("agent of one leg for a sequence of two legs")
	}
}

func TestManeuverKind(t *testing.T) {
	for k, exp := range map[ManeuverKind]string{
		EjectionManeuver:        "ejection",
		DSMManeuver:             "dsm",
		FlybyManeuver:           "flyby",
		CircularizationManeuver: "circularization",
	} {
		if k.String() != exp {
			t.Fatalf("%d is %s", k, k)
		}
	}
	assertPanic(t, func() {
		_ = ManeuverKind(0).String()
	})
}
