package search

import (
	"fmt"
)

// Chunk is the index range [Start, End) of a population.
type Chunk struct {
	Start, End int
}

// Len returns the number of agents of the chunk.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Partition splits a population of n agents into k contiguous chunks of n/k agents,
// the last chunk absorbing the remainder.
func Partition(n, k int) []Chunk {
	if n < 1 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	size := n / k
	chunks := make([]Chunk, k)
	for i := range chunks {
		chunks[i] = Chunk{Start: i * size, End: (i + 1) * size}
	}
	chunks[k-1].End = n
	return chunks
}

// chunkCount returns the number of chunks of a population of n agents: one chunk per splitThreshold
// agents, at least one and at most one per worker.
func chunkCount(n, workers, splitThreshold int) int {
	k := n / splitThreshold
	if k < 1 {
		k = 1
	}
	if k > workers {
		k = workers
	}
	return k
}

// Merge concatenates the chunk results in chunk order. The chunks must be contiguous and start at 0,
// so that the i-th merged agent is the i-th agent of the population.
func Merge(results []ChunkResult) (population [][]float64, fitnesses, deltaVs []float64, err error) {
	next := 0
	for _, r := range results {
		n := r.ChunkEnd - r.ChunkStart
		if r.ChunkStart != next || len(r.Population) != n || len(r.Fitnesses) != n || len(r.DeltaVs) != n {
			return nil, nil, nil, fmt.Errorf("%w: chunk [%d, %d) with %d agents after index %d", ErrProtocol, r.ChunkStart, r.ChunkEnd, len(r.Population), next)
		}
		population = append(population, r.Population...)
		fitnesses = append(fitnesses, r.Fitnesses...)
		deltaVs = append(deltaVs, r.DeltaVs...)
		next = r.ChunkEnd
	}
	return
}
