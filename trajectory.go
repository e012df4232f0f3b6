package mga

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Infeasible trajectories. The calculator never retries: callers randomize the agent and try again.
var (
	ErrSOIExceeded   = errors.New("orbit leaves the sphere of influence of the main attractor")
	ErrNaN           = errors.New("NaN anomaly or state")
	ErrNotHyperbolic = errors.New("flyby orbit is not hyperbolic")
	ErrNotEscaping   = errors.New("ejection does not escape the departure body")
	ErrOutbound      = errors.New("spacecraft leaves the sphere of influence it should enter")
	ErrCollision     = errors.New("flyby periapsis is below the body's surface")
)

// ManeuverKind tags the context of a maneuver.
type ManeuverKind uint8

const (
	// EjectionManeuver is the burn from the parking orbit onto the departure hyperbola.
	EjectionManeuver ManeuverKind = iota + 1
	// DSMManeuver is a deep space maneuver between two bodies.
	DSMManeuver
	// FlybyManeuver marks the periapsis of a gravity assist. It costs nothing.
	FlybyManeuver
	// CircularizationManeuver is the insertion burn at the destination.
	CircularizationManeuver
)

func (k ManeuverKind) String() string {
	switch k {
	case EjectionManeuver:
		return "ejection"
	case DSMManeuver:
		return "dsm"
	case FlybyManeuver:
		return "flyby"
	case CircularizationManeuver:
		return "circularization"
	default:
		panic("unknown maneuver kind")
	}
}

// ManeuverContext is the kind of maneuver; DSMs also record the bodies of their leg,
// flybys and ejections the body they happen at.
type ManeuverContext struct {
	Kind   ManeuverKind
	Origin int
	Target int
}

// Maneuver is an impulsive velocity change. Vectors are relative to the attractor of the step.
type Maneuver struct {
	DeltaV   r3.Vec
	Prograde r3.Vec
	Position r3.Vec
	Context  ManeuverContext
	// Only set for flybys: the periapsis radius, the turn angle of the hyperbola, the deflection
	// between the relative velocities at the SOI entry and exit, and the B-plane components.
	Periapsis  float64
	TurnAngle  float64
	Deflection float64
	BT, BR     float64
}

// Magnitude returns the norm of the ΔV.
func (m Maneuver) Magnitude() float64 {
	return r3.Norm(m.DeltaV)
}

// TrajectoryStep is one conic arc of the trajectory.
type TrajectoryStep struct {
	Elements    OrbitalElements
	Attractor   int
	BeginAngle  float64 // true anomaly
	EndAngle    float64
	DateOfStart float64
	Duration    float64
	Maneuver    *Maneuver
}

func (s TrajectoryStep) String() string {
	m := ""
	if s.Maneuver != nil {
		m = fmt.Sprintf(" %s Δv=%.6f km/s", s.Maneuver.Context.Kind, s.Maneuver.Magnitude())
	}
	return fmt.Sprintf("[%d] %s ν=%.4f->%.4f start=%s dur=%.1fs%s", s.Attractor, s.Elements, s.BeginAngle, s.EndAngle, FormatDate(s.DateOfStart), s.Duration, m)
}

// TrajectoryCalculator assembles the trajectory of one agent along a fixed sequence of bodies.
// A calculator is not safe for concurrent use.
type TrajectoryCalculator struct {
	config    Config
	sequence  []CelestialBody
	attractor CelestialBody // main attractor of every body of the sequence
	rng       *rand.Rand

	departureAltitude float64
	dateMin, dateMax  float64
	agent             Agent

	missionTime float64
	state       OrbitalState // spacecraft, relative to the main attractor

	Success     bool
	Steps       []TrajectoryStep
	TotalDeltaV float64

	failure          error
	finalInclination float64
	circularization  float64
}

// NewTrajectoryCalculator returns a calculator for the provided sequence of body ids: departure,
// flybys and destination. All bodies must orbit the same attractor. The rng resamples the SOI
// entry angles when they are outside the valid ring.
func NewTrajectoryCalculator(catalog Catalog, config Config, sequence []int, rng *rand.Rand) (*TrajectoryCalculator, error) {
	if len(sequence) < 2 {
		return nil, errors.New("sequence needs at least a departure and a destination")
	}
	c := &TrajectoryCalculator{config: config, rng: rng, sequence: make([]CelestialBody, len(sequence))}
	for i, id := range sequence {
		body, err := catalog.Body(id)
		if err != nil {
			return nil, err
		}
		attractor, err := catalog.Attractor(body)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			c.attractor = attractor
		} else if attractor.ID != c.attractor.ID {
			return nil, fmt.Errorf("%s does not orbit %s like %s", body, c.attractor, c.sequence[0])
		}
		c.sequence[i] = body
	}
	return c, nil
}

// Legs returns the number of legs of the sequence.
func (c *TrajectoryCalculator) Legs() int {
	return len(c.sequence) - 1
}

// SetParameters stores the search bounds and the flat agent, clamped into [0, 1].
func (c *TrajectoryCalculator) SetParameters(departureAltitude, dateMin, dateMax float64, agent []float64) error {
	a, err := AgentFromFlat(agent)
	if err != nil {
		return err
	}
	if len(a.Legs) != c.Legs() {
		return fmt.Errorf("agent has %d legs but the sequence has %d", len(a.Legs), c.Legs())
	}
	c.departureAltitude = departureAltitude
	c.dateMin = dateMin
	c.dateMax = dateMax
	c.agent = a.clamped()
	return nil
}

// Agent returns the flat agent used by the last computation, including any resampled entry angle.
func (c *TrajectoryCalculator) Agent() []float64 {
	return c.agent.Flat()
}

// Failure returns why the last computation did not succeed.
func (c *TrajectoryCalculator) Failure() error {
	return c.failure
}

// FinalInclination returns the inclination of the arrival hyperbola about the destination.
func (c *TrajectoryCalculator) FinalInclination() float64 {
	return c.finalInclination
}

// CircularizationDeltaV returns the ΔV needed to circularize at the arrival periapsis,
// whether or not it was added to the trajectory.
func (c *TrajectoryCalculator) CircularizationDeltaV() float64 {
	return c.circularization
}

// Compute assembles the trajectory. On success, Steps holds the parking orbit, the ejection,
// three steps per leg (first arc, second arc and flyby or arrival), and TotalDeltaV the
// sum of all maneuvers. Otherwise, Success is false and Failure tells why.
func (c *TrajectoryCalculator) Compute() {
	c.Success = false
	c.Steps = nil
	c.TotalDeltaV = 0
	c.finalInclination = 0
	c.circularization = 0
	c.failure = c.compute()
	c.Success = c.failure == nil
}

func (c *TrajectoryCalculator) compute() error {
	c.missionTime = lerp(c.dateMin, c.dateMax, c.agent.Departure.Date)
	if err := c.computeDeparture(); err != nil {
		return fmt.Errorf("departure: %w", err)
	}
	for i := range c.agent.Legs {
		if err := c.computeLeg(i); err != nil {
			return fmt.Errorf("leg %d (%s -> %s): %w", i, c.sequence[i], c.sequence[i+1], err)
		}
	}
	return nil
}

func (c *TrajectoryCalculator) addStep(s TrajectoryStep) {
	c.Steps = append(c.Steps, s)
	c.missionTime += s.Duration
	if s.Maneuver != nil {
		c.TotalDeltaV += s.Maneuver.Magnitude()
	}
}

// computeDeparture adds the parking orbit and the ejection hyperbola.
func (c *TrajectoryCalculator) computeDeparture() error {
	body := c.sequence[0]
	next := c.sequence[1]
	r0 := body.Radius + c.departureAltitude
	v0 := CircularVelocity(r0, body)
	bodyState := BodyStateAtDate(body, c.attractor, c.missionTime)

	vInf, outwards := c.idealExcessVelocity(body, next)
	idealDV := math.Sqrt(vInf*vInf+2*body.Mu/r0) - v0
	dv := lerp(c.config.EjectionDVScaleMin, c.config.EjectionDVScaleMax, c.agent.Departure.EjectionDV) * idealDV

	vp := v0 + dv
	energy := vp*vp/2 - body.Mu/r0
	if energy <= 0 {
		return ErrNotEscaping
	}
	a := -body.Mu / (2 * energy)
	e := r0*vp*vp/body.Mu - 1
	exit := NewOrbitalElements(a, e, 0, 0, 0)
	νExit := exit.TrueAnomalyAtRadius(body.SOI)
	if hasNaN(νExit) {
		return ErrNaN
	}

	// Offset the periapsis so that the velocity at the SOI exit is along the body's velocity
	// (outwards) or against it (inwards).
	sinν, cosν := math.Sincos(νExit)
	exitDir := angle2(r2.Vec{X: -sinν, Y: e + cosν})
	prograde := unit2(r2.Vec{X: bodyState.Vel.X, Y: bodyState.Vel.Y})
	if !outwards {
		prograde = r2.Scale(-1, prograde)
	}
	ω := wrapAngle(angle2(prograde) - exitDir)
	ejection := NewOrbitalElements(a, e, 0, 0, ω)

	parking := NewOrbitalElements(r0, 0, 0, 0, 0)
	c.addStep(TrajectoryStep{
		Elements:    parking,
		Attractor:   body.ID,
		BeginAngle:  0,
		EndAngle:    ω,
		DateOfStart: c.missionTime,
		Duration:    ω / parking.MeanMotion(body),
	})

	tof, err := TofBetweenAnomalies(ejection, body, 0, νExit)
	if err != nil {
		return err
	}
	periapsis := ElementsToState(ejection, body, 0)
	progradeDir := unit(periapsis.Vel)
	c.addStep(TrajectoryStep{
		Elements:    ejection,
		Attractor:   body.ID,
		BeginAngle:  0,
		EndAngle:    νExit,
		DateOfStart: c.missionTime,
		Duration:    tof,
		Maneuver: &Maneuver{
			DeltaV:   r3.Scale(dv, progradeDir),
			Prograde: progradeDir,
			Position: periapsis.Pos,
			Context:  ManeuverContext{Kind: EjectionManeuver, Origin: body.ID, Target: body.ID},
		},
	})

	local := ElementsToState(ejection, body, νExit)
	c.state = local.Add(BodyStateAtDate(body, c.attractor, c.missionTime))
	if vecHasNaN(c.state.Pos) || vecHasNaN(c.state.Vel) {
		return ErrNaN
	}
	return nil
}

// idealExcessVelocity returns the v∞ of the cheapest departure towards next, and whether the
// spacecraft leaves outwards. Transfers use the Hohmann transfer between both orbits. Resonant legs
// use the orbit tangent to the body's whose period is the duration of the first leg.
func (c *TrajectoryCalculator) idealExcessVelocity(body, next CelestialBody) (vInf float64, outwards bool) {
	aFrom := body.Orbit.Elements.SemiMajorAxis
	vCirc := CircularVelocity(aFrom, c.attractor)
	aTo := next.Orbit.Elements.SemiMajorAxis
	if body.ID == next.ID {
		duration, _ := c.legDuration(body, next, c.agent.Legs[0])
		n := twoPi / duration
		aTo = math.Cbrt(c.attractor.Mu / (n * n))
		v := math.Sqrt(c.attractor.Mu * (2/aFrom - 1/aTo))
		return math.Abs(v - vCirc), aTo >= aFrom
	}
	vDep, _, _ := Hohmann(aFrom, aTo, c.attractor)
	return math.Abs(vDep - vCirc), aTo >= aFrom
}

// exceedsSOI reports whether an orbit about the attractor reaches beyond its sphere of influence:
// its semi-major axis or its apoapsis is beyond the SOI, or it is open while the SOI is finite.
func exceedsSOI(o OrbitalElements, attractor CelestialBody) bool {
	if math.IsInf(attractor.SOI, 1) {
		return false
	}
	if o.SemiMajorAxis > attractor.SOI || o.IsHyperbolic() {
		return true
	}
	return o.SemiMajorAxis*(1+o.Eccentricity) > attractor.SOI
}

// legDuration returns the leg duration and DSM offset within their bounds.
func (c *TrajectoryCalculator) legDuration(from, to CelestialBody, params LegParams) (duration, offset float64) {
	if from.ID == to.ID {
		period := from.Orbit.Elements.Period(c.attractor)
		duration = lerp(c.config.ResonantLegMin*period, c.config.ResonantLegMax*period, params.Duration)
		offset = lerp(c.config.ResonantDSMOffsetMin, c.config.ResonantDSMOffsetMax, params.DSMOffset)
	} else {
		_, _, hohmann := Hohmann(from.Orbit.Elements.SemiMajorAxis, to.Orbit.Elements.SemiMajorAxis, c.attractor)
		duration = lerp(c.config.TransferLegMin*hohmann, c.config.TransferLegMax*hohmann, params.Duration)
		offset = lerp(c.config.DSMOffsetMin, c.config.DSMOffsetMax, params.DSMOffset)
	}
	return math.Max(duration, c.config.MinLegDuration), offset
}

// computeLeg adds the arc to the DSM, the Lambert arc to the target's SOI and the flyby (or the arrival).
func (c *TrajectoryCalculator) computeLeg(i int) error {
	from := c.sequence[i]
	to := c.sequence[i+1]
	params := &c.agent.Legs[i]
	duration, offset := c.legDuration(from, to, *params)

	// First arc: ballistic up to the DSM.
	first := StateToElements(c.state, c.attractor)
	if exceedsSOI(first, c.attractor) {
		return ErrSOIExceeded
	}
	ν0 := TrueAnomalyFromOrbitalState(first, c.state)
	dsmTime := offset * duration
	dsmState, ν1 := PropagateStateFromTrueAnomaly(first, c.attractor, ν0, dsmTime)
	if hasNaN(ν0, ν1) || vecHasNaN(dsmState.Pos) || vecHasNaN(dsmState.Vel) {
		return ErrNaN
	}
	c.addStep(TrajectoryStep{
		Elements:    first,
		Attractor:   c.attractor.ID,
		BeginAngle:  ν0,
		EndAngle:    ν1,
		DateOfStart: c.missionTime,
		Duration:    dsmTime,
	})

	// Second arc: Lambert from the DSM to the entry point on the target's SOI.
	tof := duration - dsmTime
	arrival := c.missionTime + tof
	target := BodyStateAtDate(to, c.attractor, arrival)
	entry := r3.Add(target.Pos, r3.Scale(to.SOI, c.entryDirection(to, target, params)))
	v1, v2, err := Lambert(dsmState.Pos, entry, tof, c.attractor)
	if err != nil {
		return err
	}
	transfer := OrbitalState{Pos: dsmState.Pos, Vel: v1}
	second := StateToElements(transfer, c.attractor)
	if exceedsSOI(second, c.attractor) {
		return ErrSOIExceeded
	}
	νb := TrueAnomalyFromOrbitalState(second, transfer)
	νe := TrueAnomalyFromOrbitalState(second, OrbitalState{Pos: entry, Vel: v2})
	if hasNaN(νb, νe) || vecHasNaN(v1) || vecHasNaN(v2) {
		return ErrNaN
	}
	c.addStep(TrajectoryStep{
		Elements:    second,
		Attractor:   c.attractor.ID,
		BeginAngle:  νb,
		EndAngle:    νe,
		DateOfStart: c.missionTime,
		Duration:    tof,
		Maneuver: &Maneuver{
			DeltaV:   r3.Sub(v1, dsmState.Vel),
			Prograde: unit(dsmState.Vel),
			Position: dsmState.Pos,
			Context:  ManeuverContext{Kind: DSMManeuver, Origin: from.ID, Target: to.ID},
		},
	})
	c.state = OrbitalState{Pos: entry, Vel: v2}

	if i == c.Legs()-1 {
		return c.computeArrival(to, target)
	}
	return c.computeFlyby(to, target)
}

// entryDirection returns the unit vector from the body to the SOI entry point. The polar angle φ is
// measured from the body's velocity, and the azimuth θ from the normal of the body's orbit.
// Polar angles which are too close to the velocity axis are resampled, and written back to the agent.
func (c *TrajectoryCalculator) entryDirection(body CelestialBody, state OrbitalState, params *LegParams) r3.Vec {
	φMin := math.Asin(math.Min(1, body.Radius/body.SOI))
	φ := math.Pi * params.Phi
	if math.Sin(φ) < body.Radius/body.SOI {
		φ = lerp(φMin, math.Pi-φMin, c.rng.Float64())
		params.Phi = φ / math.Pi
	}
	θ := twoPi * params.Theta
	u := unit(state.Vel)
	n := unit(r3.Cross(state.Pos, state.Vel))
	w := r3.Cross(u, n)
	sinφ, cosφ := math.Sincos(φ)
	sinθ, cosθ := math.Sincos(θ)
	radial := r3.Add(r3.Scale(cosθ, n), r3.Scale(sinθ, w))
	return r3.Add(r3.Scale(cosφ, u), r3.Scale(sinφ, radial))
}

// incoming returns the local orbit about the body and the (negative) true anomaly at the SOI entry.
func (c *TrajectoryCalculator) incoming(body CelestialBody, bodyState OrbitalState) (OrbitalElements, float64, error) {
	rel := c.state.Sub(bodyState)
	local := StateToElements(rel, body)
	ν := TrueAnomalyFromOrbitalState(local, rel)
	if hasNaN(ν, local.Eccentricity, local.SemiMajorAxis) {
		return local, ν, ErrNaN
	}
	if !local.IsHyperbolic() && ν > math.Pi {
		ν -= twoPi
	}
	if ν >= 0 {
		return local, ν, ErrOutbound
	}
	return local, ν, nil
}

// computeFlyby adds the swing-by hyperbola, leaving at the opposite of the entry anomaly.
func (c *TrajectoryCalculator) computeFlyby(body CelestialBody, bodyState OrbitalState) error {
	local, νIn, err := c.incoming(body, bodyState)
	if err != nil {
		return err
	}
	if !local.IsHyperbolic() {
		return ErrNotHyperbolic
	}
	rP := local.Periapsis()
	if rP < body.Radius {
		return ErrCollision
	}
	νOut := -νIn
	tof, err := TofBetweenAnomalies(local, body, νIn, νOut)
	if err != nil {
		return err
	}
	periapsis := ElementsToState(local, body, 0)
	entry := ElementsToState(local, body, νIn)
	exit := ElementsToState(local, body, νOut)
	deflection, _, bT, bR, _, _ := GAFromVinf(entry.Vel, exit.Vel, body)
	c.addStep(TrajectoryStep{
		Elements:    local,
		Attractor:   body.ID,
		BeginAngle:  νIn,
		EndAngle:    νOut,
		DateOfStart: c.missionTime,
		Duration:    tof,
		Maneuver: &Maneuver{
			Prograde:   unit(periapsis.Vel),
			Position:   periapsis.Pos,
			Context:    ManeuverContext{Kind: FlybyManeuver, Origin: body.ID, Target: body.ID},
			Periapsis:  rP,
			TurnAngle:  GATurnAngle(HyperbolicExcessVelocity(local, body), rP, body),
			Deflection: deflection,
			BT:         bT,
			BR:         bR,
		},
	})
	c.state = exit.Add(BodyStateAtDate(body, c.attractor, c.missionTime))
	if vecHasNaN(c.state.Pos) || vecHasNaN(c.state.Vel) {
		return ErrNaN
	}
	return nil
}

// computeArrival adds the encounter with the destination, down to periapsis, with the
// circularization burn if insertion is enabled.
func (c *TrajectoryCalculator) computeArrival(body CelestialBody, bodyState OrbitalState) error {
	local, νIn, err := c.incoming(body, bodyState)
	if err != nil {
		return err
	}
	tof, err := TofBetweenAnomalies(local, body, νIn, 0)
	if err != nil {
		return err
	}
	rP := local.Periapsis()
	periapsis := ElementsToState(local, body, 0)
	vP := r3.Norm(periapsis.Vel)
	c.circularization = math.Abs(vP - CircularVelocity(rP, body))
	c.finalInclination = local.Inclination
	if hasNaN(c.circularization, tof) {
		return ErrNaN
	}
	step := TrajectoryStep{
		Elements:    local,
		Attractor:   body.ID,
		BeginAngle:  νIn,
		EndAngle:    0,
		DateOfStart: c.missionTime,
		Duration:    tof,
	}
	progradeDir := unit(periapsis.Vel)
	if c.config.Insertion {
		step.Maneuver = &Maneuver{
			DeltaV:   r3.Scale(-c.circularization, progradeDir),
			Prograde: progradeDir,
			Position: periapsis.Pos,
			Context:  ManeuverContext{Kind: CircularizationManeuver, Origin: body.ID, Target: body.ID},
		}
	}
	c.addStep(step)
	return nil
}
