// Package driver runs the factorial experiment: for every deployed endpoint it
// issues a fixed number of synchronous invocations per trial, times each call
// on the caller side and records one InvocationRecord per call. Failed calls
// are recorded and never retried.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	bencherrors "github.com/ingestbench/ingestbench/internal/errors"
	"github.com/ingestbench/ingestbench/internal/factors"
	"github.com/ingestbench/ingestbench/internal/handler"
	"github.com/ingestbench/ingestbench/internal/invoker"
	"github.com/ingestbench/ingestbench/internal/logging"
	"github.com/ingestbench/ingestbench/internal/observability"
	"github.com/ingestbench/ingestbench/pkg/types"
)

// Config controls a run.
type Config struct {
	// Invocations is the number of calls per trial
	Invocations int

	// Trials is the number of trials per endpoint
	Trials int

	// Parallelism caps in-flight calls within a trial (1 = sequential)
	Parallelism int

	// CallTimeout marks a call failed when exceeded (0 = none)
	CallTimeout time.Duration

	// InterCallDelay is waited between issuing consecutive calls
	InterCallDelay time.Duration

	// Budget caps the total number of calls in the run (0 = unlimited)
	Budget int

	// Region is copied into every record
	Region string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Invocations <= 0:
		return bencherrors.NewInvalidParameter(fmt.Sprintf("invocations must be positive, got %d", c.Invocations))
	case c.Trials <= 0:
		return bencherrors.NewInvalidParameter(fmt.Sprintf("trials must be positive, got %d", c.Trials))
	case c.Parallelism < 1:
		return bencherrors.NewInvalidParameter(fmt.Sprintf("parallelism must be at least 1, got %d", c.Parallelism))
	case c.Budget < 0:
		return bencherrors.NewInvalidParameter(fmt.Sprintf("budget must not be negative, got %d", c.Budget))
	case c.CallTimeout < 0 || c.InterCallDelay < 0:
		return bencherrors.NewInvalidParameter("durations must not be negative")
	}
	return nil
}

// Endpoint is a discovered function and the combination it runs.
type Endpoint struct {
	Function    invoker.Function
	Combination types.FactorCombination
	Source      factors.Source
}

// Result is the outcome of a run.
type Result struct {
	Endpoints []Endpoint
	Trials    []types.TrialResult

	// Aborted is set when cancellation or the call budget cut the run short
	Aborted bool
}

// Records returns every record of every trial in run order.
func (r *Result) Records() []types.InvocationRecord {
	var out []types.InvocationRecord
	for i := range r.Trials {
		out = append(out, r.Trials[i].Records...)
	}
	return out
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the time source used for call timing.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithRunIDs replaces the per-trial run id generator.
func WithRunIDs(fn func() string) Option {
	return func(d *Driver) { d.newRunID = fn }
}

// WithTrialCallback registers fn to receive every finished trial.
func WithTrialCallback(fn func(types.TrialResult)) Option {
	return func(d *Driver) { d.onTrial = fn }
}

// Driver issues invocations against deployed endpoints.
type Driver struct {
	api      invoker.FunctionAPI
	cfg      Config
	now      func() time.Time
	newRunID func() string
	onTrial  func(types.TrialResult)
	issued   atomic.Int64
	log      *slog.Logger
}

// New creates a driver.
func New(api invoker.FunctionAPI, cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if api == nil {
		return nil, bencherrors.NewInvalidParameter("function api is required")
	}

	d := &Driver{
		api:      api,
		cfg:      cfg,
		now:      time.Now,
		newRunID: uuid.NewString,
		log:      logging.Component("driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Discover lists the endpoints matching prefix and resolves their factors.
// Functions whose factors cannot be resolved are skipped with a warning.
func (d *Driver) Discover(ctx context.Context, prefix string) ([]Endpoint, error) {
	fns, err := d.api.ListFunctions(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var endpoints []Endpoint
	for _, fn := range fns {
		c, src, err := factors.Resolve(factors.Metadata{
			Name:        fn.Name,
			MemoryMB:    fn.MemoryMB,
			Environment: fn.Environment,
		})
		if err != nil {
			d.log.Warn("skipping function without factors", "function", fn.Name, "error", err)
			continue
		}
		endpoints = append(endpoints, Endpoint{Function: fn, Combination: c, Source: src})
	}

	if len(endpoints) == 0 {
		return nil, bencherrors.NewEndpointNotFound(fmt.Sprintf("no functions found with prefix %q", prefix), nil)
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Function.Name < endpoints[j].Function.Name
	})
	return endpoints, nil
}

// Run discovers endpoints by prefix and runs every trial against each.
func (d *Driver) Run(ctx context.Context, prefix string) (*Result, error) {
	endpoints, err := d.Discover(ctx, prefix)
	if err != nil {
		return nil, err
	}
	d.log.Info("discovered endpoints", "prefix", prefix, "count", len(endpoints))

	return d.RunEndpoints(ctx, endpoints), nil
}

// RunEndpoints runs every trial against each endpoint in order. It stops
// starting trials once one is aborted.
func (d *Driver) RunEndpoints(ctx context.Context, endpoints []Endpoint) *Result {
	result := &Result{Endpoints: endpoints}

	for _, ep := range endpoints {
		for trial := 1; trial <= d.cfg.Trials; trial++ {
			tr := d.RunTrial(ctx, ep, trial)
			result.Trials = append(result.Trials, tr)
			if tr.Aborted {
				result.Aborted = true
				d.log.Warn("run aborted", "function", ep.Function.Name, "trial", trial, "calls_issued", d.issued.Load())
				return result
			}
		}
	}
	return result
}

// RunTrial issues Invocations calls against ep under a fresh run id. Calls run
// sequentially or, with Parallelism > 1, through a bounded worker pool. Each
// call owns one result slot, so records keep invocation order.
func (d *Driver) RunTrial(ctx context.Context, ep Endpoint, trial int) types.TrialResult {
	runID := d.newRunID()
	tctx := logging.ContextWithFunction(logging.ContextWithRunID(ctx, runID), ep.Function.Name)
	log := logging.WithContext(tctx, d.log)

	log.Info("trial started", "trial", trial, "invocations", d.cfg.Invocations, "combination", ep.Combination.Key())

	payload, _ := json.Marshal(handler.Request{RunID: runID})
	stats := observability.NewTrialStats(ep.Function.Name, trial)
	slots := make([]types.InvocationRecord, d.cfg.Invocations)

	call := func(i int) {
		slots[i] = d.invoke(ctx, ep, runID, trial, i, payload)
		if slots[i].Succeeded() {
			stats.RecordSuccess(float64(*slots[i].LatencyMs))
		} else {
			stats.RecordFailure(slots[i].ErrorCode)
		}
	}

	var (
		sem     *semaphore.Weighted
		wg      sync.WaitGroup
		issued  int
		aborted bool
	)
	if d.cfg.Parallelism > 1 {
		sem = semaphore.NewWeighted(int64(d.cfg.Parallelism))
	}

	for i := 0; i < d.cfg.Invocations; i++ {
		if i > 0 && d.cfg.InterCallDelay > 0 && !sleep(ctx, d.cfg.InterCallDelay) {
			aborted = true
			break
		}
		if ctx.Err() != nil || !d.takeBudget() {
			aborted = true
			break
		}

		if sem == nil {
			call(i)
			issued++
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			aborted = true
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			call(i)
		}(i)
		issued++
	}
	wg.Wait()

	tr := types.TrialResult{
		FunctionName: ep.Function.Name,
		Combination:  ep.Combination,
		Trial:        trial,
		RunID:        runID,
		Records:      slots[:issued],
		Aborted:      aborted,
	}

	snap := stats.Snapshot()
	log.Info("trial finished", append(snap.LogArgs(), "aborted", aborted)...)

	if d.onTrial != nil {
		d.onTrial(tr)
	}
	return tr
}

// takeBudget reserves one call from the run budget.
func (d *Driver) takeBudget() bool {
	n := d.issued.Add(1)
	return d.cfg.Budget == 0 || n <= int64(d.cfg.Budget)
}

// invoke performs one call. The call is detached from ctx cancellation so an
// in-flight response is still recorded; only CallTimeout bounds it.
func (d *Driver) invoke(ctx context.Context, ep Endpoint, runID string, trial, i int, payload []byte) types.InvocationRecord {
	callCtx := context.WithoutCancel(ctx)
	if d.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.cfg.CallTimeout)
		defer cancel()
	}

	start := d.now()
	out, err := d.api.Invoke(callCtx, ep.Function.Name, payload)
	elapsed := d.now().Sub(start)

	base := baseRecord(ep, d.cfg.Region, runID, trial, i)
	startMs := start.UnixMilli()
	rec, terr := base.WithTiming(types.Timing{StartMs: startMs, EndMs: startMs + elapsed.Milliseconds()})
	if terr != nil {
		// clock went backwards; keep the start and record the call as failed
		base.TsStartMs, base.TsEndMs = startMs, startMs
		return base.WithFailure(terr, bencherrors.CodeUnexpected, false)
	}

	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		if bencherrors.GetCategory(err) == "" {
			err = invoker.Classify(err)
		}
		return rec.WithFailure(err, bencherrors.GetCode(err), false)
	}

	var resp response
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return rec.WithFailure(
			bencherrors.NewInvocationError(bencherrors.CodeInvocationFailure, "undecodable response", err),
			bencherrors.CodeInvocationFailure, false)
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "function reported ok=false"
		}
		return rec.WithFailure(
			bencherrors.NewInvocationError(bencherrors.CodeFunctionError, msg, nil),
			bencherrors.CodeFunctionError, false)
	}

	rec.S3Bucket = resp.S3Bucket
	rec.S3Key = resp.S3Key
	rec.ObjectBytes = resp.ObjectBytes
	rec.EventsGenerated = resp.EventsGenerated
	rec.MultipartParts = resp.MultipartParts
	rec.ColdStart = resp.ColdStart
	return rec
}

// response is the handler response plus the error field older deployments
// return alongside ok=false.
type response struct {
	handler.Response
	Error string `json:"error"`
}

func baseRecord(ep Endpoint, region, runID string, trial, i int) types.InvocationRecord {
	c := ep.Combination
	rec := types.InvocationRecord{
		Workload:            c.Workload,
		RunID:               runID,
		FunctionName:        ep.Function.Name,
		Region:              region,
		MemoryMB:            c.MemoryMB,
		ReservedConcurrency: c.Concurrency,
		Trial:               trial,
		Invocation:          i + 1,
		Source:              types.SourceDriver,
	}
	if c.Workload == types.WorkloadBatch {
		rec.MultipartPartMB = c.Secondary
	} else {
		rec.BatchEvents = c.Secondary
	}
	return rec
}

// sleep waits for d and reports whether it completed before ctx was done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
