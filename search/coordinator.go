package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChristopherRabotin/mga"
	"github.com/ChristopherRabotin/mga/evolution"
)

// GenerationSample summarizes the fitnesses of the population after a generation.
type GenerationSample struct {
	Generation int
	Mean       float64
	Best       float64
	BestDeltaV float64 // total ΔV of the best agent of the generation
}

// Result is the outcome of a search.
type Result struct {
	RunID   string
	Steps   []mga.TrajectoryStep
	DeltaV  float64
	Fitness float64
	Agent   []float64
	Samples []GenerationSample
}

// Option configures a coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger of the coordinator and of its workers.
func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics updated by the coordinator.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithGenerationHook sets a function called with the sample of every generation, from the
// goroutine running the search.
func WithGenerationHook(f func(GenerationSample)) Option {
	return func(c *Coordinator) {
		c.onGeneration = f
	}
}

// handle is the coordinator's end of a worker.
type handle struct {
	id        int
	requests  chan Request
	responses chan Response
}

// roundTrip sends a copy of the request and waits for the response. There is no timeout.
func (h *handle) roundTrip(req Request) Response {
	h.requests <- req.clone()
	return <-h.responses
}

// Coordinator shards the population over a pool of workers and runs the search one generation
// at a time. A coordinator runs one search or screening at a time.
type Coordinator struct {
	config       mga.Config
	catalog      mga.Catalog
	logger       log.Logger
	metrics      *Metrics
	onGeneration func(GenerationSample)

	workers   []*handle
	wg        sync.WaitGroup
	closeOnce sync.Once
	cancelled atomic.Bool
}

// NewCoordinator returns a coordinator of config.Workers workers, or one per CPU if unset.
// The pool never exceeds the number of CPUs.
func NewCoordinator(config mga.Config, catalog mga.Catalog, opts ...Option) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		config:  config,
		catalog: catalog,
		logger:  log.NewNopLogger(),
		metrics: NewMetrics(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With(c.logger, "subsys", "search")
	n := config.Workers
	if cpus := runtime.NumCPU(); n <= 0 || n > cpus {
		n = cpus
	}
	c.workers = make([]*handle, n)
	for i := range c.workers {
		c.workers[i] = &handle{id: i, requests: make(chan Request), responses: make(chan Response)}
	}
	return c, nil
}

// Workers returns the size of the pool.
func (c *Coordinator) Workers() int {
	return len(c.workers)
}

// Initialize starts the workers and sends them the configuration and the catalog.
func (c *Coordinator) Initialize() error {
	for _, h := range c.workers {
		w := NewWorker(h.id, c.logger)
		c.wg.Add(1)
		go func(h *handle) {
			defer c.wg.Done()
			w.Serve(h.requests, h.responses)
		}(h)
	}
	_, err := c.broadcast(c.workers, func(int) Request {
		return Request{Label: LabelInitialize, Init: &InitPayload{Config: c.config, Catalog: c.catalog}}
	}, LabelInitialized)
	if err != nil {
		return err
	}
	level.Info(c.logger).Log("msg", "workers initialized", "workers", len(c.workers))
	return nil
}

// Close stops the workers. The coordinator cannot be used afterwards.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		for _, h := range c.workers {
			close(h.requests)
		}
		c.wg.Wait()
	})
}

// Cancel requests the cancellation of the running search, or of the next one if none is running.
// The search stops at the end of the current generation.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// isCancelled latches the cancellation of the context and returns whether the search must stop.
func (c *Coordinator) isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		c.cancelled.Store(true)
	default:
	}
	return c.cancelled.Load()
}

// expect checks the response of a worker.
func expect(resp Response, label ResponseLabel) error {
	if resp.Err != nil {
		return fmt.Errorf("worker %d: %w", resp.WorkerID, resp.Err)
	}
	if resp.Label != label {
		return fmt.Errorf("%w: worker %d replied %s instead of %s", ErrProtocol, resp.WorkerID, resp.Label, label)
	}
	return nil
}

type indexedResponse struct {
	index int
	resp  Response
}

// broadcast sends one request to each worker and waits for all of their responses, returned in
// worker order.
func (c *Coordinator) broadcast(handles []*handle, request func(i int) Request, expected ResponseLabel) ([]Response, error) {
	p := pool.NewWithResults[indexedResponse]().WithErrors()
	for i, h := range handles {
		req := request(i)
		if req.Label == LabelRun {
			c.metrics.recordRun()
		}
		p.Go(func() (indexedResponse, error) {
			resp := h.roundTrip(req)
			if err := expect(resp, expected); err != nil {
				return indexedResponse{}, err
			}
			return indexedResponse{index: i, resp: resp}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	responses := make([]Response, len(handles))
	for _, r := range results {
		responses[r.index] = r.resp
	}
	return responses, nil
}

// stop aborts the work of the provided workers.
func (c *Coordinator) stop(logger log.Logger, handles []*handle) error {
	_, err := c.broadcast(handles, func(int) Request { return Request{Label: LabelStop} }, LabelStopped)
	if err != nil {
		level.Error(logger).Log("msg", "could not stop workers", "err", err)
		return errors.Join(ErrCancelled, err)
	}
	level.Info(logger).Log("msg", "cancelled")
	return ErrCancelled
}

// Search runs the differential evolution of the trajectories along the sequence of the context,
// and returns the best trajectory found. Cancelling the context, or calling Cancel, stops the search
// between two generations with ErrCancelled, including after the last one.
func (c *Coordinator) Search(ctx context.Context, in Context) (Result, error) {
	defer c.cancelled.Store(false)
	if in.DateMax < in.DateMin {
		return Result{}, fmt.Errorf("date bounds [%g, %g] are not ordered", in.DateMin, in.DateMax)
	}
	if in.DepartureAltitude < 0 {
		return Result{}, errors.New("departure altitude cannot be negative")
	}
	if _, err := mga.NewTrajectoryCalculator(c.catalog, c.config, in.Sequence, nil); err != nil {
		return Result{}, err
	}
	result := Result{RunID: uuid.NewString(), Fitness: math.Inf(1)}
	logger := log.With(c.logger, "run", result.RunID)

	dim := mga.AgentDim(len(in.Sequence) - 1)
	size := c.config.PopSizeDimScale * dim
	chunks := Partition(size, chunkCount(size, len(c.workers), c.config.SplitThreshold))
	active := c.workers[:len(chunks)]
	level.Info(logger).Log("msg", "search started", "sequence", fmt.Sprint(in.Sequence), "population", size, "chunks", len(chunks))

	if _, err := c.broadcast(active, func(int) Request {
		return Request{Label: LabelPass, Context: &in}
	}, LabelReceived); err != nil {
		return Result{}, err
	}

	var population [][]float64
	var fitnesses []float64
	for gen := 0; gen < c.config.MaxGenerations; gen++ {
		if c.isCancelled(ctx) {
			return Result{}, c.stop(logger, active)
		}
		start := time.Now()
		cr := evolution.CrossoverRate(gen, c.config.MaxGenerations, c.config.CRMin, c.config.CRMax, c.config.CRExponent)
		responses, err := c.broadcast(active, func(i int) Request {
			if gen == 0 {
				return Request{Label: LabelRun, Run: &RunInput{Start: true, ChunkStart: chunks[i].Start, ChunkEnd: chunks[i].End}}
			}
			return Request{Label: LabelRun, Run: &RunInput{Population: population, Fitnesses: fitnesses, CR: cr, F: c.config.F}}
		}, LabelComplete)
		if err != nil {
			level.Error(logger).Log("msg", "generation failed", "generation", gen, "err", err)
			return Result{}, err
		}

		results := make([]ChunkResult, len(responses))
		for i, resp := range responses {
			if resp.Chunk == nil {
				return Result{}, fmt.Errorf("%w: worker %d completed without chunk", ErrProtocol, resp.WorkerID)
			}
			results[i] = *resp.Chunk
			if resp.Chunk.BestSteps != nil && resp.Chunk.BestFitness < result.Fitness {
				result.Steps = resp.Chunk.BestSteps
				result.DeltaV = resp.Chunk.BestDeltaV
				result.Fitness = resp.Chunk.BestFitness
				result.Agent = resp.Chunk.BestAgent
			}
		}
		var deltaVs []float64
		population, fitnesses, deltaVs, err = Merge(results)
		if err != nil {
			return Result{}, err
		}

		bestIdx := floats.MinIdx(fitnesses)
		sample := GenerationSample{
			Generation: gen,
			Mean:       stat.Mean(fitnesses, nil),
			Best:       fitnesses[bestIdx],
			BestDeltaV: deltaVs[bestIdx],
		}
		result.Samples = append(result.Samples, sample)
		c.metrics.recordGeneration(time.Since(start), result.DeltaV, results)
		level.Debug(logger).Log("msg", "generation", "generation", gen, "cr", cr, "mean", sample.Mean, "best", sample.Best, "bestDeltaV", sample.BestDeltaV)
		if c.onGeneration != nil {
			c.onGeneration(sample)
		}
	}
	if c.isCancelled(ctx) {
		return Result{}, c.stop(logger, active)
	}
	level.Info(logger).Log("msg", "search complete", "deltaV", result.DeltaV, "fitness", result.Fitness, "generations", len(result.Samples))
	return result, nil
}

// Screen runs a porkchop screening on the first worker. The worker reports its progress every
// ProgressStep cells, and onProgress (if not nil) is called before the coordinator lets it continue.
// Cancellation is checked at each progress report.
func (c *Coordinator) Screen(ctx context.Context, in ScreenInput, onProgress func(progress float64)) (ScreenResult, error) {
	defer c.cancelled.Store(false)
	h := c.workers[0]
	logger := log.With(c.logger, "run", uuid.NewString())
	if c.isCancelled(ctx) {
		level.Info(logger).Log("msg", "cancelled")
		return ScreenResult{}, ErrCancelled
	}
	level.Info(logger).Log("msg", "screening started", "from", in.From, "to", in.To)
	c.metrics.recordRun()
	resp := h.roundTrip(Request{Label: LabelRun, Run: &RunInput{Screen: &in}})
	for {
		if resp.Err != nil {
			return ScreenResult{}, fmt.Errorf("worker %d: %w", resp.WorkerID, resp.Err)
		}
		switch resp.Label {
		case LabelComplete:
			if resp.Screen == nil {
				return ScreenResult{}, fmt.Errorf("%w: worker %d completed without screening result", ErrProtocol, resp.WorkerID)
			}
			level.Info(logger).Log("msg", "screening complete", "cells", len(resp.Screen.Cells), "found", resp.Screen.Found)
			return *resp.Screen, nil
		case LabelProgress:
			if onProgress != nil {
				onProgress(resp.Progress)
			}
			if c.isCancelled(ctx) {
				return ScreenResult{}, c.stop(logger, []*handle{h})
			}
			resp = h.roundTrip(Request{Label: LabelContinue})
		default:
			return ScreenResult{}, fmt.Errorf("%w: worker %d replied %s while screening", ErrProtocol, resp.WorkerID, resp.Label)
		}
	}
}
