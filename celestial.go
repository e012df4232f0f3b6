package mga

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// AU is one astronomical unit in kilometers.
	AU = 1.49597870700e8
)

// ErrUnknownBody is returned when a body id or name is not part of the catalog.
var ErrUnknownBody = errors.New("unknown body")

// BodyOrbit is the Keplerian orbit of a body about its attractor.
type BodyOrbit struct {
	Attractor          int // id of the attractor in the catalog
	Elements           OrbitalElements
	Epoch              float64 // seconds past J2000
	MeanAnomalyAtEpoch float64
}

// CelestialBody defines a celestial body. The root of a catalog (the star) has no orbit.
type CelestialBody struct {
	ID     int
	Name   string
	Radius float64
	Mass   float64
	Mu     float64 // standard gravitational parameter μ
	SOI    float64 // sphere of influence radius about the attractor
	Orbit  *BodyOrbit
}

// IsRoot returns whether this body orbits nothing.
func (c CelestialBody) IsRoot() bool {
	return c.Orbit == nil
}

// String implements the Stringer interface.
func (c CelestialBody) String() string {
	return c.Name
}

// BodyStateAtDate returns the state of the body relative to its attractor at the provided date.
func BodyStateAtDate(body, attractor CelestialBody, date float64) OrbitalState {
	if body.IsRoot() {
		return OrbitalState{}
	}
	o := body.Orbit
	M := o.MeanAnomalyAtEpoch + o.Elements.MeanMotion(attractor)*(date-o.Epoch)
	ν := TrueAnomalyFromMean(o.Elements.Eccentricity, M)
	return ElementsToState(o.Elements, attractor, ν)
}

// Catalog is a read-only tree of bodies rooted at a star.
type Catalog struct {
	bodies []CelestialBody
	index  map[int]int
	root   int
}

// NewCatalog validates and returns a catalog. Exactly one body must be without orbit,
// and every attractor must be part of the catalog.
func NewCatalog(bodies ...CelestialBody) (Catalog, error) {
	c := Catalog{bodies: make([]CelestialBody, len(bodies)), index: make(map[int]int, len(bodies)), root: -1}
	for i, b := range bodies {
		if _, dup := c.index[b.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate body id %d (%s)", b.ID, b.Name)
		}
		if b.Mu <= 0 {
			return Catalog{}, fmt.Errorf("body %s: μ must be positive", b.Name)
		}
		if b.IsRoot() {
			if c.root != -1 {
				return Catalog{}, fmt.Errorf("body %s: catalog already has a root", b.Name)
			}
			c.root = b.ID
		} else {
			orbit := *b.Orbit
			b.Orbit = &orbit
		}
		c.bodies[i] = b
		c.index[b.ID] = i
	}
	if c.root == -1 {
		return Catalog{}, errors.New("catalog has no root body")
	}
	for _, b := range c.bodies {
		if b.IsRoot() {
			continue
		}
		if _, ok := c.index[b.Orbit.Attractor]; !ok {
			return Catalog{}, fmt.Errorf("body %s: attractor %d: %w", b.Name, b.Orbit.Attractor, ErrUnknownBody)
		}
	}
	return c, nil
}

// Len returns the number of bodies.
func (c Catalog) Len() int {
	return len(c.bodies)
}

// Root returns the star of the catalog.
func (c Catalog) Root() CelestialBody {
	return c.bodies[c.index[c.root]]
}

// Bodies returns a copy of the bodies, in catalog order.
func (c Catalog) Bodies() []CelestialBody {
	return c.Clone().bodies
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	cl := Catalog{bodies: make([]CelestialBody, len(c.bodies)), index: make(map[int]int, len(c.index)), root: c.root}
	for i, b := range c.bodies {
		if !b.IsRoot() {
			orbit := *b.Orbit
			b.Orbit = &orbit
		}
		cl.bodies[i] = b
	}
	for id, i := range c.index {
		cl.index[id] = i
	}
	return cl
}

// Body returns the body with the provided id.
func (c Catalog) Body(id int) (CelestialBody, error) {
	i, ok := c.index[id]
	if !ok {
		return CelestialBody{}, fmt.Errorf("id %d: %w", id, ErrUnknownBody)
	}
	return c.bodies[i], nil
}

// ByName returns the body from its name (case insensitive).
func (c Catalog) ByName(name string) (CelestialBody, error) {
	for _, b := range c.bodies {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return CelestialBody{}, fmt.Errorf("undefined body '%s': %w", name, ErrUnknownBody)
}

// Attractor returns the attractor of the provided body.
func (c Catalog) Attractor(body CelestialBody) (CelestialBody, error) {
	if body.IsRoot() {
		return CelestialBody{}, fmt.Errorf("%s is the root body and has no attractor", body.Name)
	}
	return c.Body(body.Orbit.Attractor)
}

// StateAtDate returns the state of the body relative to its attractor.
func (c Catalog) StateAtDate(id int, date float64) (OrbitalState, error) {
	body, err := c.Body(id)
	if err != nil {
		return OrbitalState{}, err
	}
	if body.IsRoot() {
		return OrbitalState{}, nil
	}
	attractor, err := c.Attractor(body)
	if err != nil {
		return OrbitalState{}, err
	}
	return BodyStateAtDate(body, attractor, date), nil
}

// GlobalState returns the state of the body relative to the root of the catalog.
func (c Catalog) GlobalState(id int, date float64) (OrbitalState, error) {
	var state OrbitalState
	for {
		body, err := c.Body(id)
		if err != nil {
			return OrbitalState{}, err
		}
		if body.IsRoot() {
			return state, nil
		}
		local, err := c.StateAtDate(id, date)
		if err != nil {
			return OrbitalState{}, err
		}
		state = state.Add(local)
		id = body.Orbit.Attractor
	}
}

/* Definitions */

// planet builds a planet orbiting the Sun from J2000 mean elements: a in AU, angles in degrees,
// ϖ the longitude of perihelion and L the mean longitude.
func planet(id int, name string, radius, mass, μ, soi, a, e, i, Ω, ϖ, L float64) CelestialBody {
	ω := ϖ - Ω
	if i == 0 {
		ω = ϖ
	}
	return CelestialBody{
		ID: id, Name: name, Radius: radius, Mass: mass, Mu: μ, SOI: soi,
		Orbit: &BodyOrbit{
			Attractor:          0,
			Elements:           NewOrbitalElements(a*AU, e, i*deg2rad, wrapAngle(Ω*deg2rad), wrapAngle(ω*deg2rad)),
			Epoch:              0,
			MeanAnomalyAtEpoch: wrapAngle((L - ϖ) * deg2rad),
		},
	}
}

// SolarSystem returns the Sun and the eight planets with their J2000 mean elements.
func SolarSystem() Catalog {
	c, err := NewCatalog(
		// Sun is our closest star.
		CelestialBody{ID: 0, Name: "Sun", Radius: 695700, Mass: 1.98847e30, Mu: 1.32712440017987e11, SOI: math.Inf(1)},
		planet(1, "Mercury", 2439.7, 3.3011e23, 2.2032e4, 1.12e5, 0.38709927, 0.20563593, 7.00497902, 48.33076593, 77.45779628, 252.25032350),
		// Venus is poisonous.
		planet(2, "Venus", 6051.8, 4.8675e24, 3.24858599e5, 0.616e6, 0.72333566, 0.00677672, 3.39467605, 76.67984255, 131.60246718, 181.97909950),
		// Earth is home.
		planet(3, "Earth", 6378.1363, 5.9722e24, 3.98600433e5, 924645.0, 1.00000261, 0.01671123, 0, 0, 102.93768193, 100.46457166),
		// Mars is the vacation place.
		planet(4, "Mars", 3396.19, 6.4171e23, 4.28283100e4, 576000, 1.52371034, 0.09339410, 1.84969142, 49.55953891, -23.94362959, -4.55343205),
		// Jupiter is big.
		planet(5, "Jupiter", 71492.0, 1.8982e27, 1.266865361e8, 48.2e6, 5.20288700, 0.04838624, 1.30439695, 100.47390909, 14.72847983, 34.39644051),
		// Saturn floats and that's really cool.
		planet(6, "Saturn", 60268.0, 5.6834e26, 3.7931208e7, 54.8e6, 9.53667594, 0.05386179, 2.48599187, 113.66242448, 92.59887831, 49.95424423),
		// Uranus is no joke.
		planet(7, "Uranus", 25559.0, 8.6810e25, 5.7939513e6, 51.8e6, 19.18916464, 0.04725744, 0.77263783, 74.01692503, 170.95427630, 313.23810451),
		planet(8, "Neptune", 24764.0, 1.02413e26, 6.836529e6, 86.8e6, 30.06992276, 0.00859048, 1.77004347, 131.78422574, 44.96476227, -55.12002969),
	)
	if err != nil {
		panic(fmt.Errorf("invalid solar system catalog: %w", err))
	}
	return c
}
