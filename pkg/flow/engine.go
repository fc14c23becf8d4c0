package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/ironflow/pkg/errors"
)

// EnvMaxConcurrentTasks overrides the default worker-pool size when set to a
// positive integer. A caller-supplied override takes precedence over it.
const EnvMaxConcurrentTasks = "IRONFLOW_MAX_CONCURRENT_TASKS"

// Engine drives one flow at a time to a terminal status. Steps are scheduled
// in topological phases; within a phase, workers run in parallel bounded by a
// counting semaphore. Every state transition is written through the
// StateStore. An Engine is safe to reuse for sequential runs; concurrent runs
// should use independent Engine values so the concurrency bound stays
// per-run.
type Engine struct {
	registry      *Registry
	store         StateStore
	maxConcurrent int
	logger        *slog.Logger
}

// NewEngine creates an engine over a node registry and a state store.
// The worker-pool size defaults to IRONFLOW_MAX_CONCURRENT_TASKS when set,
// else the host CPU count.
func NewEngine(registry *Registry, store StateStore) *Engine {
	return &Engine{
		registry:      registry,
		store:         store,
		maxConcurrent: resolveMaxConcurrent(0),
		logger:        slog.Default(),
	}
}

// WithLogger sets a custom logger for the engine.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithMaxConcurrent overrides the worker-pool size. Non-positive values are
// ignored.
func (e *Engine) WithMaxConcurrent(n int) *Engine {
	if n > 0 {
		e.maxConcurrent = n
	}
	return e
}

// resolveMaxConcurrent applies the concurrency precedence: caller override,
// then environment, then host CPU count.
func resolveMaxConcurrent(override int) int {
	if override > 0 {
		return override
	}
	if v := os.Getenv(EnvMaxConcurrentTasks); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// runState tracks the per-run bookkeeping the phase loop and workers share.
// The three name sets implement the disposition rules: completed feeds route
// visibility, failed feeds skip propagation, errorHandled marks handler steps
// that already ran.
type runState struct {
	mu           sync.Mutex
	completed    map[string]bool
	failed       map[string]bool
	errorHandled map[string]bool
}

func newRunState() *runState {
	return &runState{
		completed:    make(map[string]bool),
		failed:       make(map[string]bool),
		errorHandled: make(map[string]bool),
	}
}

func (s *runState) markCompleted(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.completed[n] = true
	}
}

func (s *runState) markFailed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[name] = true
}

func (s *runState) markErrorHandled(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandled[name] = true
}

func (s *runState) isFailed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[name]
}

func (s *runState) isErrorHandled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorHandled[name]
}

func (s *runState) anyFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed) > 0
}

// Run executes a validated flow with the given initial context and returns
// the terminal run record. The flow is re-validated before any store write;
// validation failures fail fast without touching the store.
//
// Cancellation of ctx stops scheduling at the next phase boundary and
// finalizes the run as stalled; workers already in flight observe the
// cancellation through their own attempt context.
func (e *Engine) Run(ctx context.Context, f *Flow, initial map[string]any) (*RunInfo, error) {
	if errs := Validate(f); len(errs) > 0 {
		return nil, &errors.ValidationError{
			Field:   "flow",
			Message: fmt.Sprintf("flow %q is invalid: %s", f.Name, strings.Join(errs, "; ")),
		}
	}

	phases, err := BuildPhases(f)
	if err != nil {
		// Unreachable after Validate; kept as a scheduling precondition.
		return nil, errors.Wrap(err, "building execution phases")
	}

	runID := uuid.NewString()
	logger := e.logger.With(slog.String("run_id", runID), slog.String("flow", f.Name))
	errorOnly := errorOnlySet(f)

	if err := e.store.InitRun(ctx, runID, f.Name, initial); err != nil {
		return nil, errors.Wrap(err, "initializing run")
	}
	if err := e.store.SetRunStatus(ctx, runID, RunRunning); err != nil {
		return nil, errors.Wrap(err, "marking run running")
	}
	for i := range f.Steps {
		step := &f.Steps[i]
		task := &TaskState{Name: step.Name, NodeType: step.NodeType, Status: TaskPending}
		if err := e.store.UpsertTask(ctx, runID, task); err != nil {
			return nil, errors.Wrapf(err, "initializing task %s", step.Name)
		}
	}

	shared := NewContext(initial)
	sem := make(chan struct{}, e.maxConcurrent)
	state := newRunState()

	logger.Info("run started",
		slog.Int("steps", len(f.Steps)),
		slog.Int("phases", len(phases)),
		slog.Int("max_concurrent", e.maxConcurrent))

	interrupted := false

phaseLoop:
	for phaseIdx, phase := range phases {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		var wg sync.WaitGroup
		for _, step := range phase {
			switch e.disposition(ctx, runID, step, errorOnly, state, shared) {
			case dispositionBypass:
				continue
			case dispositionRun:
			}

			wg.Add(1)
			go func(step *Step) {
				defer wg.Done()
				e.runStep(ctx, runID, f, step, shared, sem, state, logger)
			}(step)
		}
		wg.Wait()

		if ctx.Err() != nil {
			interrupted = true
			if phaseIdx < len(phases)-1 {
				logger.Warn("run interrupted", slog.Int("phase", phaseIdx))
			}
			break phaseLoop
		}
	}

	// Final writes survive cancellation so an interrupted run is still
	// recorded.
	finalCtx := context.WithoutCancel(ctx)

	status := RunSuccess
	switch {
	case interrupted:
		status = RunStalled
	case state.anyFailed():
		status = RunFailed
	}

	if err := e.store.UpdateContext(finalCtx, runID, shared.Snapshot()); err != nil {
		logger.Error("persisting final context", slog.Any("error", err))
	}
	if err := e.store.SetRunStatus(finalCtx, runID, status); err != nil {
		return nil, errors.Wrap(err, "persisting final status")
	}

	logger.Info("run finished", slog.String("status", string(status)))

	info, err := e.store.GetRunInfo(finalCtx, runID)
	if err != nil {
		return nil, errors.Wrap(err, "reading final run record")
	}
	return info, nil
}

type disposition int

const (
	dispositionRun disposition = iota
	dispositionBypass
)

// disposition applies the phase-loop rules in order: error-only steps never
// schedule normally, a failed dependency skips the step and propagates, an
// unmatched route skips the step without propagating.
func (e *Engine) disposition(ctx context.Context, runID string, step *Step, errorOnly map[string]bool, state *runState, shared *Context) disposition {
	if errorOnly[step.Name] {
		if state.isErrorHandled(step.Name) {
			state.markCompleted(step.Name)
		}
		return dispositionBypass
	}

	for _, dep := range step.Dependencies {
		if state.isFailed(dep) {
			e.persistTask(ctx, runID, &TaskState{
				Name:     step.Name,
				NodeType: step.NodeType,
				Status:   TaskSkipped,
				Error:    fmt.Sprintf("dependency %q failed", dep),
			})
			state.markFailed(step.Name)
			return dispositionBypass
		}
	}

	if step.Route != "" && !e.routeMatches(step, shared) {
		e.persistTask(ctx, runID, &TaskState{
			Name:     step.Name,
			NodeType: step.NodeType,
			Status:   TaskSkipped,
			Error:    fmt.Sprintf("no dependency routed to %q", step.Route),
		})
		state.markCompleted(step.Name)
		return dispositionBypass
	}

	return dispositionRun
}

// routeMatches reports whether any of the step's dependencies wrote a
// _route_<dep> key equal to the step's route.
func (e *Engine) routeMatches(step *Step, shared *Context) bool {
	for _, dep := range step.Dependencies {
		if v, ok := shared.Get(RouteKey(dep)); ok {
			if route, ok := v.(string); ok && route == step.Route {
				return true
			}
		}
	}
	return false
}

// runStep is the per-step worker body: it holds one semaphore permit for the
// whole step (handler included), runs the attempt loop, and applies the
// failure post-processing rules.
func (e *Engine) runStep(ctx context.Context, runID string, f *Flow, step *Step, shared *Context, sem chan struct{}, state *runState, logger *slog.Logger) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		state.markFailed(step.Name)
		return
	}

	err := e.executeAttempts(ctx, runID, step, shared, logger)
	if err == nil {
		state.markCompleted(step.Name)
		return
	}

	if step.OnError == "" {
		state.markFailed(step.Name)
		return
	}

	handler := f.Step(step.OnError)
	if handler == nil {
		// Validate guarantees the target exists; guard anyway.
		state.markFailed(step.Name)
		return
	}

	logger.Info("running error handler",
		slog.String("step", step.Name),
		slog.String("handler", handler.Name))

	shared.Merge(map[string]any{
		KeyErrorMessage:  err.Error(),
		KeyErrorStep:     step.Name,
		KeyErrorNodeType: step.NodeType,
	})

	// One level deep: the handler's own on_error is never consulted.
	if herr := e.executeAttempts(ctx, runID, handler, shared, logger); herr != nil {
		logger.Warn("error handler failed",
			slog.String("step", step.Name),
			slog.String("handler", handler.Name),
			slog.Any("error", herr))
		state.markFailed(step.Name)
		return
	}

	state.markCompleted(step.Name, handler.Name)
	state.markErrorHandled(handler.Name)
}

// executeAttempts runs a step's retry loop: up to max_retries+1 attempts with
// exponential backoff, each attempt bounded by timeout_s when set. The last
// attempt's wrapped error is what persists on the task record.
func (e *Engine) executeAttempts(ctx context.Context, runID string, step *Step, shared *Context, logger *slog.Logger) error {
	node, ok := e.registry.Lookup(step.NodeType)
	if !ok {
		err := &errors.NodeError{
			Step:     step.Name,
			NodeType: step.NodeType,
			Attempts: 1,
			Cause:    fmt.Errorf("unknown node type %q", step.NodeType),
		}
		now := time.Now().UTC()
		e.persistTask(ctx, runID, &TaskState{
			Name:     step.Name,
			NodeType: step.NodeType,
			Status:   TaskFailed,
			Attempt:  1,
			Started:  &now,
			Finished: &now,
			Error:    err.Error(),
		})
		return err
	}

	maxAttempts := step.MaxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now().UTC()
		e.persistTask(ctx, runID, &TaskState{
			Name:     step.Name,
			NodeType: step.NodeType,
			Status:   TaskRunning,
			Attempt:  attempt,
			Started:  &started,
		})

		snapshot := shared.Snapshot()
		output, err := e.invoke(ctx, node, step, snapshot)
		finished := time.Now().UTC()

		if err == nil {
			shared.Merge(output)
			e.persistTask(ctx, runID, &TaskState{
				Name:     step.Name,
				NodeType: step.NodeType,
				Status:   TaskSuccess,
				Attempt:  attempt,
				Started:  &started,
				Finished: &finished,
				Output:   output,
			})
			logger.Debug("step succeeded",
				slog.String("step", step.Name),
				slog.Int("attempt", attempt),
				slog.Int64("duration_ms", finished.Sub(started).Milliseconds()))
			return nil
		}

		lastErr = &errors.NodeError{
			Step:     step.Name,
			NodeType: step.NodeType,
			Attempts: attempt,
			Cause:    err,
		}
		e.persistTask(ctx, runID, &TaskState{
			Name:     step.Name,
			NodeType: step.NodeType,
			Status:   TaskFailed,
			Attempt:  attempt,
			Started:  &started,
			Finished: &finished,
			Error:    lastErr.Error(),
		})

		if attempt == maxAttempts {
			break
		}

		backoff := backoffDelay(step.Retry.BackoffSeconds, attempt)
		logger.Debug("step failed, retrying",
			slog.String("step", step.Name),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// backoffDelay computes the delay before retry number attempt+1:
// backoff_s doubled after every failed attempt.
func backoffDelay(base float64, attempt int) time.Duration {
	seconds := base * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// invoke calls the node, racing it against the step's timeout when one is
// set. A timed-out invocation is abandoned: its goroutine may run to
// completion but its result is discarded.
func (e *Engine) invoke(ctx context.Context, node Node, step *Step, snapshot map[string]any) (map[string]any, error) {
	if step.TimeoutSeconds <= 0 {
		return node.Execute(ctx, Values(step.Config), Values(snapshot))
	}

	timeout := time.Duration(step.TimeoutSeconds * float64(time.Second))
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type invokeResult struct {
		output map[string]any
		err    error
	}
	resultCh := make(chan invokeResult, 1)

	go func() {
		output, err := node.Execute(attemptCtx, Values(step.Config), Values(snapshot))
		resultCh <- invokeResult{output: output, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.TimeoutError{
			Operation: fmt.Sprintf("step %s", step.Name),
			Duration:  timeout,
			Cause:     attemptCtx.Err(),
		}
	}
}

// persistTask writes a task transition, logging rather than failing the run
// when the store write errors: state is persisted for observability, and a
// broken store should not change scheduling outcomes mid-run.
func (e *Engine) persistTask(ctx context.Context, runID string, task *TaskState) {
	if err := e.store.UpsertTask(context.WithoutCancel(ctx), runID, task); err != nil {
		e.logger.Error("persisting task state",
			slog.String("run_id", runID),
			slog.String("step", task.Name),
			slog.Any("error", err))
	}
}
