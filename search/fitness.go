package search

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/mga"
)

// inclinationPenalty scales the penalty on the arrival inclination.
const inclinationPenalty = 0.1

// Fitness shapes the total ΔV of a trajectory into the fitness minimized by the optimizer: highly
// inclined arrivals are penalized, and the circularization ΔV is added when the trajectory itself
// does not include the insertion burn.
func Fitness(deltaV, finalInclination, circularization float64, insertion bool) float64 {
	f := deltaV + deltaV*math.Abs(finalInclination)*inclinationPenalty
	if !insertion {
		f += circularization
	}
	return f
}

// bestTrajectory is the best trajectory computed by a worker.
type bestTrajectory struct {
	fitness float64
	deltaV  float64
	steps   []mga.TrajectoryStep
	agent   []float64
}

// fitness computes the trajectory of the agent at the provided population index. Infeasible agents
// are replaced by random agents up to MaxAttempts times, after which ErrInfeasible is returned.
func (w *Worker) fitness(index int, agent []float64) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < w.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			mga.RandomizeAgent(agent, w.rng)
			w.retries++
		}
		calc, err := mga.NewTrajectoryCalculator(w.catalog, w.config, w.search.Sequence, w.rng)
		if err != nil {
			return 0, err
		}
		if err := calc.SetParameters(w.search.DepartureAltitude, w.search.DateMin, w.search.DateMax, agent); err != nil {
			return 0, err
		}
		calc.Compute()
		w.evaluations++
		if !calc.Success {
			lastErr = calc.Failure()
			continue
		}
		copy(agent, calc.Agent())
		fit := Fitness(calc.TotalDeltaV, calc.FinalInclination(), calc.CircularizationDeltaV(), w.config.Insertion)
		w.trialDeltaVs[index-w.evolver.ChunkStart()] = calc.TotalDeltaV
		if fit < w.best.fitness {
			w.best = bestTrajectory{
				fitness: fit,
				deltaV:  calc.TotalDeltaV,
				steps:   cloneSteps(calc.Steps),
				agent:   cloneFloats(agent),
			}
		}
		return fit, nil
	}
	return 0, fmt.Errorf("%w for agent %d after %d attempts: %v", ErrInfeasible, index, w.config.MaxAttempts, lastErr)
}
