// Package search distributes the differential evolution of trajectories over a pool of workers.
//
// The coordinator and the workers only communicate with messages: every datum a worker needs
// (configuration, catalog, search context, population) is copied into a request, and every result
// is copied into a response. A worker handles exactly one request at a time.
package search

import (
	"errors"

	"github.com/ChristopherRabotin/mga"
)

var (
	// ErrCancelled is returned when the search was cancelled between two generations.
	ErrCancelled = errors.New("search cancelled")
	// ErrInfeasible is returned when no feasible trajectory was found for an agent after the maximum
	// number of attempts.
	ErrInfeasible = errors.New("no feasible trajectory")
	// ErrProtocol is returned on an unexpected message.
	ErrProtocol = errors.New("protocol violation")
)

// RequestLabel identifies a message sent to a worker.
type RequestLabel string

// Request labels.
const (
	LabelInitialize RequestLabel = "initialize"
	LabelPass       RequestLabel = "pass"
	LabelRun        RequestLabel = "run"
	LabelContinue   RequestLabel = "continue"
	LabelStop       RequestLabel = "stop"
)

// ResponseLabel identifies a message sent by a worker.
type ResponseLabel string

// Response labels.
const (
	LabelInitialized ResponseLabel = "initialized"
	LabelReceived    ResponseLabel = "received"
	LabelProgress    ResponseLabel = "progress"
	LabelComplete    ResponseLabel = "complete"
	LabelStopped     ResponseLabel = "stopped"
	LabelDebug       ResponseLabel = "debug"
)

// Request is a message to a worker. Only the payload matching the label is set.
type Request struct {
	Label   RequestLabel
	Init    *InitPayload
	Context *Context
	Run     *RunInput
}

// InitPayload is the static data of a worker.
type InitPayload struct {
	Config  mga.Config
	Catalog mga.Catalog
}

// Context is shared by every generation of a search.
type Context struct {
	Sequence          []int
	DateMin, DateMax  float64 // seconds past J2000
	DepartureAltitude float64 // km
}

// RunInput is either the creation of a chunk (Start), the next generation of the chunk
// (Population and Fitnesses of the whole population), or a porkchop screening (Screen).
type RunInput struct {
	Start      bool
	ChunkStart int
	ChunkEnd   int

	Population [][]float64
	Fitnesses  []float64
	CR, F      float64

	Screen *ScreenInput
}

// ScreenInput defines a porkchop screening between two bodies.
type ScreenInput struct {
	From, To  int
	Departure mga.Window
	Arrival   mga.Window
}

// Response is a message from a worker.
type Response struct {
	Label    ResponseLabel
	WorkerID int
	Progress float64
	Chunk    *ChunkResult
	Screen   *ScreenResult
	Data     interface{}
	Err      error
}

// ChunkResult is the updated chunk of a worker.
type ChunkResult struct {
	ChunkStart, ChunkEnd int
	Population           [][]float64
	Fitnesses            []float64
	DeltaVs              []float64

	// Best trajectory found by this worker so far.
	BestSteps   []mga.TrajectoryStep
	BestDeltaV  float64
	BestFitness float64
	BestAgent   []float64

	Evaluations int
	Retries     int
}

// ScreenResult is the outcome of a porkchop screening.
type ScreenResult struct {
	Cells []mga.PorkchopCell
	Best  mga.PorkchopCell
	Found bool
}

func clonePopulation(population [][]float64) [][]float64 {
	if population == nil {
		return nil
	}
	c := make([][]float64, len(population))
	for i, agent := range population {
		c[i] = append([]float64(nil), agent...)
	}
	return c
}

func cloneFloats(x []float64) []float64 {
	if x == nil {
		return nil
	}
	return append([]float64(nil), x...)
}

func cloneSteps(steps []mga.TrajectoryStep) []mga.TrajectoryStep {
	if steps == nil {
		return nil
	}
	c := make([]mga.TrajectoryStep, len(steps))
	for i, s := range steps {
		if s.Maneuver != nil {
			m := *s.Maneuver
			s.Maneuver = &m
		}
		c[i] = s
	}
	return c
}

// clone returns a deep copy of the request.
func (r Request) clone() Request {
	c := Request{Label: r.Label}
	if r.Init != nil {
		c.Init = &InitPayload{Config: r.Init.Config, Catalog: r.Init.Catalog.Clone()}
	}
	if r.Context != nil {
		ctx := *r.Context
		ctx.Sequence = append([]int(nil), r.Context.Sequence...)
		c.Context = &ctx
	}
	if r.Run != nil {
		run := *r.Run
		run.Population = clonePopulation(r.Run.Population)
		run.Fitnesses = cloneFloats(r.Run.Fitnesses)
		if r.Run.Screen != nil {
			screen := *r.Run.Screen
			run.Screen = &screen
		}
		c.Run = &run
	}
	return c
}

// clone returns a deep copy of the response.
func (r Response) clone() Response {
	c := r
	if r.Chunk != nil {
		chunk := *r.Chunk
		chunk.Population = clonePopulation(r.Chunk.Population)
		chunk.Fitnesses = cloneFloats(r.Chunk.Fitnesses)
		chunk.DeltaVs = cloneFloats(r.Chunk.DeltaVs)
		chunk.BestSteps = cloneSteps(r.Chunk.BestSteps)
		chunk.BestAgent = cloneFloats(r.Chunk.BestAgent)
		c.Chunk = &chunk
	}
	if r.Screen != nil {
		screen := *r.Screen
		screen.Cells = append([]mga.PorkchopCell(nil), r.Screen.Cells...)
		c.Screen = &screen
	}
	return c
}
