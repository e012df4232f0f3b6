package search

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ChristopherRabotin/mga"
	"github.com/ChristopherRabotin/mga/evolution"
)

// Worker owns the state of one member of the pool. It is only reachable through its requests.
type Worker struct {
	id     int
	logger log.Logger

	// Set by initialize.
	ready   bool
	config  mga.Config
	catalog mga.Catalog
	rng     *rand.Rand

	// Set by pass.
	search *Context

	// Set by run.
	evolver      *evolution.Evolver
	deltaVs      []float64 // total ΔV of each agent of the chunk
	trialDeltaVs []float64 // total ΔV of the last trajectory computed for each agent of the chunk
	best         bestTrajectory
	evaluations  int
	retries      int
	scan         *mga.PorkchopScan
}

// NewWorker returns a worker which must be initialized before anything else.
func NewWorker(id int, logger log.Logger) *Worker {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Worker{id: id, logger: log.With(logger, "subsys", "worker", "worker", id)}
}

// Serve handles the requests until the channel is closed. Every response is a deep copy.
func (w *Worker) Serve(requests <-chan Request, responses chan<- Response) {
	for req := range requests {
		resp := w.Handle(req)
		resp.WorkerID = w.id
		responses <- resp.clone()
	}
}

// Handle processes one request and returns its response.
func (w *Worker) Handle(req Request) Response {
	if !w.ready && req.Label != LabelInitialize {
		return w.violation("%s before initialize", req.Label)
	}
	switch req.Label {
	case LabelInitialize:
		return w.initialize(req.Init)
	case LabelPass:
		return w.pass(req.Context)
	case LabelRun:
		return w.run(req.Run)
	case LabelContinue:
		if w.scan == nil {
			return w.violation("continue without screening in progress")
		}
		return w.stepScreen()
	case LabelStop:
		w.scan = nil
		w.evolver = nil
		level.Debug(w.logger).Log("msg", "stopped")
		return Response{Label: LabelStopped}
	default:
		return w.violation("unknown label %q", req.Label)
	}
}

func (w *Worker) violation(format string, args ...interface{}) Response {
	err := fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
	level.Error(w.logger).Log("err", err)
	return Response{Label: LabelDebug, Err: err}
}

func (w *Worker) failure(err error) Response {
	level.Warn(w.logger).Log("err", err)
	return Response{Label: LabelDebug, Data: err.Error(), Err: err}
}

func (w *Worker) initialize(init *InitPayload) Response {
	if init == nil {
		return w.violation("initialize without payload")
	}
	if w.ready {
		return w.violation("initialized twice")
	}
	w.config = init.Config
	w.catalog = init.Catalog
	w.rng = rand.New(rand.NewSource(init.Config.Seed + int64(w.id)))
	w.ready = true
	level.Debug(w.logger).Log("msg", "initialized", "bodies", w.catalog.Len())
	return Response{Label: LabelInitialized}
}

func (w *Worker) pass(ctx *Context) Response {
	if ctx == nil {
		return w.violation("pass without context")
	}
	if _, err := mga.NewTrajectoryCalculator(w.catalog, w.config, ctx.Sequence, w.rng); err != nil {
		return w.failure(err)
	}
	w.search = ctx
	w.evolver = nil
	w.scan = nil
	w.best = bestTrajectory{fitness: math.Inf(1)}
	level.Debug(w.logger).Log("msg", "received", "sequence", fmt.Sprint(ctx.Sequence))
	return Response{Label: LabelReceived}
}

func (w *Worker) run(in *RunInput) Response {
	if in == nil {
		return w.violation("run without input")
	}
	if in.Screen != nil {
		return w.startScreen(in.Screen)
	}
	if w.search == nil {
		return w.violation("run before pass")
	}
	w.evaluations, w.retries = 0, 0
	if in.Start {
		if in.ChunkStart < 0 || in.ChunkEnd <= in.ChunkStart {
			return w.violation("invalid chunk [%d, %d)", in.ChunkStart, in.ChunkEnd)
		}
		dim := mga.AgentDim(len(w.search.Sequence) - 1)
		w.evolver = evolution.NewEvolver(dim, in.ChunkStart, in.ChunkEnd, w.fitness, w.rng)
		w.trialDeltaVs = make([]float64, w.evolver.Size())
		if err := w.evolver.CreateChunk(); err != nil {
			return w.failure(err)
		}
		w.deltaVs = cloneFloats(w.trialDeltaVs)
	} else {
		if w.evolver == nil {
			return w.violation("generation before the chunk was created")
		}
		if len(in.Population) != len(in.Fitnesses) || len(in.Population) < w.evolver.ChunkEnd() {
			return w.violation("population of %d agents and %d fitnesses for chunk [%d, %d)", len(in.Population), len(in.Fitnesses), w.evolver.ChunkStart(), w.evolver.ChunkEnd())
		}
		if err := w.evolver.EvolveChunk(in.Population, in.Fitnesses, in.CR, in.F); err != nil {
			return w.failure(err)
		}
		for k, improved := range w.evolver.Improved {
			if improved {
				w.deltaVs[k] = w.trialDeltaVs[k]
			}
		}
	}
	_, bestFit := w.evolver.Best()
	level.Debug(w.logger).Log("msg", "chunk complete", "start", w.evolver.ChunkStart(), "end", w.evolver.ChunkEnd(), "best", bestFit, "evaluations", w.evaluations, "retries", w.retries)
	return Response{Label: LabelComplete, Chunk: &ChunkResult{
		ChunkStart:  w.evolver.ChunkStart(),
		ChunkEnd:    w.evolver.ChunkEnd(),
		Population:  w.evolver.Population,
		Fitnesses:   w.evolver.Fitnesses,
		DeltaVs:     w.deltaVs,
		BestSteps:   w.best.steps,
		BestDeltaV:  w.best.deltaV,
		BestFitness: w.best.fitness,
		BestAgent:   w.best.agent,
		Evaluations: w.evaluations,
		Retries:     w.retries,
	}}
}

func (w *Worker) startScreen(in *ScreenInput) Response {
	scan, err := mga.NewPorkchopScan(w.catalog, in.From, in.To, in.Departure, in.Arrival, w.config.ProgressStep)
	if err != nil {
		return w.failure(err)
	}
	w.scan = scan
	level.Debug(w.logger).Log("msg", "screening", "from", in.From, "to", in.To, "cells", scan.Len())
	return w.stepScreen()
}

// stepScreen advances the screening by one progress step.
func (w *Worker) stepScreen() Response {
	more, progress := w.scan.Step()
	if more {
		return Response{Label: LabelProgress, Progress: progress}
	}
	best, found := w.scan.Best()
	result := &ScreenResult{Cells: w.scan.Cells(), Best: best, Found: found}
	w.scan = nil
	return Response{Label: LabelComplete, Progress: 1, Screen: result}
}
