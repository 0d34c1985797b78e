package macro

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/acs-auto/internal/stop"
)

// Interpreter prepares the sandbox that executes step code.
type Interpreter interface {
	// NewSession creates a sandbox bound to ec. Variables a step sets are
	// visible to later steps of the same session.
	NewSession(ctx context.Context, ec *ExecutionContext) (Session, error)
}

// Session executes the steps of one run.
type Session interface {
	Exec(ctx context.Context, step Step) error
	Close()
}

// RunListener is notified when runs start and finish.
// Implementations must not block; they are called on the worker goroutine.
type RunListener interface {
	RunStarted(run *Run)
	RunFinished(run *Run)
}

// RunnerDeps holds the collaborators of a Runner.
type RunnerDeps struct {
	Interpreter Interpreter
	Stop        *stop.Signal

	// Handles are seeded into every execution context, typically
	// VarACS and VarDataset.
	Handles map[string]any

	// Runs persists finished runs. May be nil.
	Runs      RunRepository
	Listeners []RunListener
	Logger    Logger
}

// RunRequest describes one macro execution.
type RunRequest struct {
	Category Category
	Macro    Macro
	Source   string

	// Extra is merged into the execution context after the handles and may
	// shadow them.
	Extra map[string]any

	// Finally is called after the run finished, whatever the outcome.
	Finally func(run *Run)
}

// Runner executes macros on a worker goroutine, one at a time.
//
// A second Run while a worker is alive is refused with ErrBusy; nothing is
// queued. The stop signal is checked between steps and a step that fails is
// recorded and skipped over.
type Runner struct {
	interp    Interpreter
	stop      *stop.Signal
	handles   map[string]any
	runs      RunRepository
	listeners []RunListener
	logger    Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *Run
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a runner. Interpreter and Stop are required.
func NewRunner(deps RunnerDeps) (*Runner, error) {
	if deps.Interpreter == nil {
		return nil, fmt.Errorf("macro: runner requires an interpreter")
	}
	if deps.Stop == nil {
		return nil, fmt.Errorf("macro: runner requires a stop signal")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		interp:    deps.Interpreter,
		stop:      deps.Stop,
		handles:   deps.Handles,
		runs:      deps.Runs,
		listeners: deps.Listeners,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Run starts req on the worker goroutine and returns the initial record.
// It does not block on the run itself.
//
// Returns ErrBusy if a run is in progress.
func (r *Runner) Run(req RunRequest) (*Run, error) {
	r.mu.Lock()
	if r.done != nil {
		busyWith := r.current.MacroName
		r.mu.Unlock()
		r.logger.Warn("busy", "running", busyWith, "requested", req.Macro.Name)
		return nil, ErrBusy
	}

	run := &Run{
		ID:         uuid.NewString(),
		Category:   req.Category,
		MacroName:  req.Macro.Name,
		Source:     req.Source,
		Status:     RunRunning,
		StepsTotal: len(req.Macro.Steps),
		Results:    []string{},
		StartedAt:  r.now().UTC(),
	}
	r.current = run
	done := make(chan struct{})
	r.done = done
	snapshot := run.Clone()
	r.wg.Add(1)
	r.mu.Unlock()

	go r.work(run, req, done)
	return snapshot, nil
}

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done != nil
}

// Current returns a copy of the run in progress or the last finished run,
// or nil if nothing has run yet.
func (r *Runner) Current() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Wait blocks until the run in progress finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the worker context and waits for the worker to exit.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) work(run *Run, req RunRequest, done chan struct{}) {
	defer r.wg.Done()

	ec := NewExecutionContext()
	for name, v := range r.handles {
		ec.Set(name, v)
	}
	ec.Set(VarLogger, r.logger)
	ec.Set(VarScriptStop, false)
	ec.Merge(req.Extra)

	defer r.finish(run, req, ec, done)

	r.logger.Info("running macro", "category", req.Category, "macro", req.Macro.Name, "source", req.Source)
	for _, l := range r.listeners {
		l.RunStarted(run.Clone())
	}

	sess, err := r.interp.NewSession(r.ctx, ec)
	if err != nil {
		r.logger.Error("preparing sandbox", "error", err)
		ec.AddResult(fmt.Sprintf("sandbox error: %v", err))
		r.setStatus(run, RunFailed)
		return
	}
	defer sess.Close()

	status := RunCompleted
	for i, step := range req.Macro.Steps {
		if r.stop.IsSet() {
			r.logger.Warn("macro stopped by user", "macro", req.Macro.Name, "step", step.Name)
			ec.AddResult("stopped by user")
			status = RunStopped
			break
		}
		if ec.ScriptStop() {
			r.logger.Info("macro ended by script_stop", "macro", req.Macro.Name)
			status = RunStepAborted
			break
		}

		r.logger.Debug("step", "index", i, "name", step.Name)
		if err := r.execStep(sess, step); err != nil {
			msg := fmt.Sprintf("step %q failed: %v", step.Name, err)
			r.logger.Error(msg)
			ec.AddResult(msg)
			r.mu.Lock()
			run.StepsFailed++
			run.Failures = append(run.Failures, StepFailure{StepIndex: i, StepName: step.Name, Error: err.Error()})
			r.mu.Unlock()
			continue
		}
		r.mu.Lock()
		run.StepsCompleted++
		r.mu.Unlock()
	}
	r.setStatus(run, status)
}

// execStep runs one step, converting a panic into an error.
func (r *Runner) execStep(sess Session, step Step) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sess.Exec(r.ctx, step)
}

func (r *Runner) setStatus(run *Run, status RunStatus) {
	r.mu.Lock()
	run.Status = status
	r.mu.Unlock()
}

// finish records the outcome, notifies listeners, runs the request's
// finalizer and releases the single-flight slot. It runs even if the worker
// panicked outside a step.
func (r *Runner) finish(run *Run, req RunRequest, ec *ExecutionContext, done chan struct{}) {
	if p := recover(); p != nil {
		r.logger.Error("macro runner panic", "panic", p)
		ec.AddResult(fmt.Sprintf("runner error: %v", p))
		r.setStatus(run, RunFailed)
	}
	defer func() {
		r.mu.Lock()
		r.done = nil
		r.mu.Unlock()
		close(done)
	}()

	completed := r.now().UTC()
	r.mu.Lock()
	run.Results = ec.Results()
	if run.Status == RunRunning {
		run.Status = RunCompleted
	}
	run.CompletedAt = &completed
	ms := int(completed.Sub(run.StartedAt).Milliseconds())
	run.DurationMS = &ms
	final := run.Clone()
	r.mu.Unlock()

	if joined := strings.Join(final.Results, " | "); joined != "" {
		r.logger.Info("macro results", "macro", final.MacroName, "results", joined)
	}
	r.logger.Info("macro finished",
		"macro", final.MacroName,
		"status", final.Status,
		"completed", final.StepsCompleted,
		"failed", final.StepsFailed,
		"duration_ms", ms,
	)

	if r.runs != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
		if err := r.runs.CreateRun(ctx, final); err != nil {
			r.logger.Error("failed to record run", "error", err)
		}
		cancel()
	}
	for _, l := range r.listeners {
		r.safely("run listener", func() { l.RunFinished(final.Clone()) })
	}
	if req.Finally != nil {
		r.safely("run finalizer", func() { req.Finally(final.Clone()) })
	}
}

// safely runs fn, logging instead of propagating a panic.
func (r *Runner) safely(what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(what+" panic", "panic", p)
		}
	}()
	fn()
}
