package mga

import (
	"fmt"
	"math/rand"
)

const (
	departureParams = 2
	legParams       = 4
)

// DepartureParams locates the departure: the date within the date bounds and the ejection ΔV
// within the configured scale of the ideal ejection ΔV. Both are within [0, 1].
type DepartureParams struct {
	Date       float64
	EjectionDV float64
}

// LegParams are the free parameters of one leg, all within [0, 1]: the leg duration within the
// leg bounds, the DSM time offset within the DSM bounds, and the two angles locating the entry
// point on the target's sphere of influence (azimuth θ over 2π and polar angle φ over π).
type LegParams struct {
	Duration  float64
	DSMOffset float64
	Theta     float64
	Phi       float64
}

// Agent is the structured form of a point of the search space.
type Agent struct {
	Departure DepartureParams
	Legs      []LegParams
}

// AgentDim returns the length of the flat form of an agent with the provided number of legs.
func AgentDim(legs int) int {
	return departureParams + legParams*legs
}

// AgentFromFlat decodes the flat form used by the optimizer.
func AgentFromFlat(x []float64) (Agent, error) {
	legs := (len(x) - departureParams) / legParams
	if legs < 1 || len(x) != AgentDim(legs) {
		return Agent{}, fmt.Errorf("agent of length %d does not encode whole legs", len(x))
	}
	a := Agent{
		Departure: DepartureParams{Date: x[0], EjectionDV: x[1]},
		Legs:      make([]LegParams, legs),
	}
	for i := range a.Legs {
		o := departureParams + i*legParams
		a.Legs[i] = LegParams{Duration: x[o], DSMOffset: x[o+1], Theta: x[o+2], Phi: x[o+3]}
	}
	return a, nil
}

// Flat encodes the agent for the optimizer.
func (a Agent) Flat() []float64 {
	x := make([]float64, 0, AgentDim(len(a.Legs)))
	x = append(x, a.Departure.Date, a.Departure.EjectionDV)
	for _, l := range a.Legs {
		x = append(x, l.Duration, l.DSMOffset, l.Theta, l.Phi)
	}
	return x
}

// clamped returns a copy of the agent with every parameter in [0, 1].
func (a Agent) clamped() Agent {
	c := Agent{
		Departure: DepartureParams{Date: clamp(a.Departure.Date, 0, 1), EjectionDV: clamp(a.Departure.EjectionDV, 0, 1)},
		Legs:      make([]LegParams, len(a.Legs)),
	}
	for i, l := range a.Legs {
		c.Legs[i] = LegParams{
			Duration:  clamp(l.Duration, 0, 1),
			DSMOffset: clamp(l.DSMOffset, 0, 1),
			Theta:     clamp(l.Theta, 0, 1),
			Phi:       clamp(l.Phi, 0, 1),
		}
	}
	return c
}

// RandomizeAgent overwrites every parameter of the flat agent with a uniform value in [0, 1].
func RandomizeAgent(x []float64, rng *rand.Rand) {
	for i := range x {
		x[i] = rng.Float64()
	}
}
