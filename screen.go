package mga

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Window is a range of dates (seconds past J2000) sampled with the provided number of points.
type Window struct {
	From, Until float64
	Points      int
}

// date returns the i-th sample of the window.
func (w Window) date(i int) float64 {
	if w.Points == 1 {
		return w.From
	}
	return lerp(w.From, w.Until, float64(i)/float64(w.Points-1))
}

// PorkchopCell is the direct Lambert transfer for one pair of departure and arrival dates.
// Infeasible cells have infinite ΔV.
type PorkchopCell struct {
	Departure     float64
	Arrival       float64
	C3            float64 // km²/s²
	VInfDeparture float64
	VInfArrival   float64
	DeltaV        float64 // sum of both hyperbolic excess velocities
}

// PorkchopScan sweeps the direct transfers between two bodies over a grid of departure and arrival
// dates. The sweep is resumable: each call to Step evaluates at most progressStep cells.
type PorkchopScan struct {
	from, to     CelestialBody
	attractor    CelestialBody
	departure    Window
	arrival      Window
	progressStep int

	cursor int
	cells  []PorkchopCell
	best   int
}

// NewPorkchopScan returns a scan between two bodies orbiting the same attractor.
func NewPorkchopScan(catalog Catalog, fromID, toID int, departure, arrival Window, progressStep int) (*PorkchopScan, error) {
	if departure.Points < 1 || arrival.Points < 1 {
		return nil, errors.New("windows need at least one point")
	}
	if departure.Until < departure.From || arrival.Until < arrival.From {
		return nil, errors.New("windows must end after they start")
	}
	if progressStep < 1 {
		return nil, errors.New("progress step must be at least 1")
	}
	from, err := catalog.Body(fromID)
	if err != nil {
		return nil, err
	}
	to, err := catalog.Body(toID)
	if err != nil {
		return nil, err
	}
	attractor, err := catalog.Attractor(from)
	if err != nil {
		return nil, err
	}
	if to.IsRoot() || to.Orbit.Attractor != attractor.ID {
		return nil, fmt.Errorf("%s and %s do not orbit the same body", from, to)
	}
	return &PorkchopScan{
		from:         from,
		to:           to,
		attractor:    attractor,
		departure:    departure,
		arrival:      arrival,
		progressStep: progressStep,
		cells:        make([]PorkchopCell, 0, departure.Points*arrival.Points),
		best:         -1,
	}, nil
}

// Len returns the number of cells of the grid.
func (p *PorkchopScan) Len() int {
	return p.departure.Points * p.arrival.Points
}

// Step evaluates the next cells of the grid, and returns whether cells remain to be
// evaluated and the fraction of the grid done.
func (p *PorkchopScan) Step() (more bool, progress float64) {
	total := p.Len()
	for n := 0; n < p.progressStep && p.cursor < total; n++ {
		cell := p.evaluate(p.cursor/p.arrival.Points, p.cursor%p.arrival.Points)
		if p.best < 0 || cell.DeltaV < p.cells[p.best].DeltaV {
			p.best = len(p.cells)
		}
		p.cells = append(p.cells, cell)
		p.cursor++
	}
	return p.cursor < total, float64(p.cursor) / float64(total)
}

func (p *PorkchopScan) evaluate(i, j int) PorkchopCell {
	cell := PorkchopCell{Departure: p.departure.date(i), Arrival: p.arrival.date(j)}
	infeasible := func() PorkchopCell {
		cell.C3, cell.VInfDeparture, cell.VInfArrival, cell.DeltaV = math.NaN(), math.NaN(), math.NaN(), math.Inf(1)
		return cell
	}
	tof := cell.Arrival - cell.Departure
	if tof <= 0 {
		return infeasible()
	}
	dep := BodyStateAtDate(p.from, p.attractor, cell.Departure)
	arr := BodyStateAtDate(p.to, p.attractor, cell.Arrival)
	vi, vf, err := Lambert(dep.Pos, arr.Pos, tof, p.attractor)
	if err != nil || vecHasNaN(vi) || vecHasNaN(vf) {
		return infeasible()
	}
	cell.VInfDeparture = r3.Norm(r3.Sub(vi, dep.Vel))
	cell.VInfArrival = r3.Norm(r3.Sub(vf, arr.Vel))
	cell.C3 = cell.VInfDeparture * cell.VInfDeparture
	cell.DeltaV = cell.VInfDeparture + cell.VInfArrival
	return cell
}

// Cells returns the cells evaluated so far, departure major.
func (p *PorkchopScan) Cells() []PorkchopCell {
	return append([]PorkchopCell(nil), p.cells...)
}

// Best returns the cheapest cell evaluated so far, if any is feasible.
func (p *PorkchopScan) Best() (PorkchopCell, bool) {
	if p.best < 0 || math.IsInf(p.cells[p.best].DeltaV, 1) {
		return PorkchopCell{}, false
	}
	return p.cells[p.best], true
}
