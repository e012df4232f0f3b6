// Package evolution implements the rand/1/bin differential evolution over one chunk of a population.
// Agents are vectors in [0, 1]^d and lower fitnesses are better.
package evolution

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// donors is the number of agents combined to build a trial agent.
const donors = 3

// FitnessFunc evaluates the agent at the provided population index. It may modify the agent
// (e.g. to write back a resampled parameter); the modified agent is the one kept.
type FitnessFunc func(index int, agent []float64) (float64, error)

// Evolver holds the chunk [ChunkStart, ChunkEnd) of a population.
type Evolver struct {
	dim        int
	chunkStart int
	chunkEnd   int
	fitness    FitnessFunc
	rng        *rand.Rand

	// Population and Fitnesses are the current chunk, indexed from ChunkStart.
	Population [][]float64
	Fitnesses  []float64
	// Improved flags the agents replaced by their trial during the last generation.
	Improved []bool

	indices []int // scratch permutation used to pick donors
}

// NewEvolver returns an evolver of the chunk [chunkStart, chunkEnd) for agents of dimension dim.
func NewEvolver(dim, chunkStart, chunkEnd int, fitness FitnessFunc, rng *rand.Rand) *Evolver {
	if dim < 1 || chunkStart < 0 || chunkEnd <= chunkStart {
		panic(fmt.Errorf("invalid chunk [%d, %d) of dimension %d", chunkStart, chunkEnd, dim))
	}
	return &Evolver{dim: dim, chunkStart: chunkStart, chunkEnd: chunkEnd, fitness: fitness, rng: rng}
}

// ChunkStart returns the first population index of the chunk.
func (e *Evolver) ChunkStart() int { return e.chunkStart }

// ChunkEnd returns the population index after the chunk.
func (e *Evolver) ChunkEnd() int { return e.chunkEnd }

// Size returns the number of agents of the chunk.
func (e *Evolver) Size() int { return e.chunkEnd - e.chunkStart }

// CreateChunk fills the chunk with random agents and evaluates them.
func (e *Evolver) CreateChunk() error {
	n := e.Size()
	e.Population = make([][]float64, n)
	e.Fitnesses = make([]float64, n)
	e.Improved = make([]bool, n)
	for k := range e.Population {
		agent := make([]float64, e.dim)
		for i := range agent {
			agent[i] = e.rng.Float64()
		}
		fit, err := e.fitness(e.chunkStart+k, agent)
		if err != nil {
			return err
		}
		e.Population[k] = agent
		e.Fitnesses[k] = fit
	}
	return nil
}

// EvolveChunk computes the next generation of the chunk from the whole current population and its
// fitnesses, which are only read. Each agent of the chunk is replaced by its trial agent only if the
// trial is strictly better.
func (e *Evolver) EvolveChunk(population [][]float64, fitnesses []float64, cr, f float64) error {
	if len(population) != len(fitnesses) {
		panic(fmt.Errorf("population of %d agents but %d fitnesses", len(population), len(fitnesses)))
	}
	if len(population) < e.chunkEnd || len(population) < donors+1 {
		panic(fmt.Errorf("population of %d agents too small for chunk [%d, %d)", len(population), e.chunkStart, e.chunkEnd))
	}
	n := e.Size()
	next := make([][]float64, n)
	nextFit := make([]float64, n)
	improved := make([]bool, n)
	for j := e.chunkStart; j < e.chunkEnd; j++ {
		x := population[j]
		if len(x) != e.dim {
			panic(fmt.Errorf("agent %d has dimension %d instead of %d", j, len(x), e.dim))
		}
		a, b, c := e.pickDonors(len(population), j)
		y := make([]float64, e.dim)
		R := e.rng.Intn(e.dim)
		for i := range y {
			if i == R || e.rng.Float64() < cr {
				y[i] = clamp(population[a][i] + f*(population[b][i]-population[c][i]))
			} else {
				y[i] = x[i]
			}
		}
		fy, err := e.fitness(j, y)
		if err != nil {
			return err
		}
		k := j - e.chunkStart
		if fy < fitnesses[j] {
			next[k], nextFit[k], improved[k] = y, fy, true
		} else {
			next[k], nextFit[k] = append([]float64(nil), x...), fitnesses[j]
		}
	}
	e.Population, e.Fitnesses, e.Improved = next, nextFit, improved
	return nil
}

// pickDonors returns three distinct indices of [0, n), all different from j. The agent j is first
// swapped to the front of the permutation, then a partial Fisher-Yates shuffle draws the donors
// from the rest, and finally every swap is undone so that the permutation is the identity again.
func (e *Evolver) pickDonors(n, j int) (a, b, c int) {
	if len(e.indices) != n {
		e.indices = make([]int, n)
		for i := range e.indices {
			e.indices[i] = i
		}
	}
	var swaps [donors + 1][2]int
	swap := func(s, p, q int) {
		e.indices[p], e.indices[q] = e.indices[q], e.indices[p]
		swaps[s] = [2]int{p, q}
	}
	swap(0, 0, j)
	for k := 1; k <= donors; k++ {
		swap(k, k, k+e.rng.Intn(n-k))
	}
	a, b, c = e.indices[1], e.indices[2], e.indices[3]
	for s := donors; s >= 0; s-- {
		p, q := swaps[s][0], swaps[s][1]
		e.indices[p], e.indices[q] = e.indices[q], e.indices[p]
	}
	return
}

// Best returns the chunk index and fitness of the best agent of the chunk.
func (e *Evolver) Best() (int, float64) {
	if len(e.Fitnesses) == 0 {
		return -1, math.Inf(1)
	}
	i := floats.MinIdx(e.Fitnesses)
	return i, e.Fitnesses[i]
}

// CrossoverRate anneals the crossover rate from crMax at the first generation down to crMin at the
// last one, following a power law of the search progress.
func CrossoverRate(generation, maxGenerations int, crMin, crMax, exponent float64) float64 {
	if maxGenerations <= 0 {
		return crMax
	}
	t := math.Min(1, math.Max(0, float64(generation)/float64(maxGenerations)))
	return crMax - (crMax-crMin)*math.Pow(t, exponent)
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
