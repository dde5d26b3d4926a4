package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vidsub/internal/logging"
	"vidsub/internal/services"
	"vidsub/internal/workflow"
)

// ErrBusy is returned when a step is requested while another is running.
var ErrBusy = errors.New("another step is already running")

// Env is what an Action sees while it runs.
type Env struct {
	Store  *workflow.Store
	Logger *slog.Logger
	// Report forwards step progress (0-100) with an optional detail line.
	Report func(percent float64, detail string)
}

// Action performs the work of one workflow step.
type Action interface {
	Step() workflow.Step
	Execute(ctx context.Context, env Env) error
}

// ProgressFunc receives progress for the running step.
type ProgressFunc func(step workflow.Step, percent float64, detail string)

// Runner executes step actions against a store.
type Runner struct {
	store      *workflow.Store
	logger     *slog.Logger
	actions    map[workflow.Step]Action
	onProgress ProgressFunc
}

// NewRunner returns a runner for the given actions. A later action for the
// same step replaces an earlier one.
func NewRunner(store *workflow.Store, logger *slog.Logger, actions ...Action) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "stageexec"),
		actions: make(map[workflow.Step]Action, len(actions)),
	}
	for _, action := range actions {
		if action != nil {
			r.actions[action.Step()] = action
		}
	}
	return r
}

// OnProgress sets the progress callback.
func (r *Runner) OnProgress(fn ProgressFunc) {
	r.onProgress = fn
}

// Has reports whether an action is registered for step.
func (r *Runner) Has(step workflow.Step) bool {
	_, ok := r.actions[step]
	return ok
}

// Run executes the action for step and marks the step complete on success.
// The dev step is never marked complete.
func (r *Runner) Run(ctx context.Context, step workflow.Step) error {
	action, ok := r.actions[step]
	if !ok {
		return services.Wrap(services.ErrValidation, step.String(), "run", "no action registered for this step", nil)
	}
	if !r.store.TryBeginProcessing() {
		return ErrBusy
	}
	defer r.store.SetProcessing(false)

	requestID := uuid.NewString()
	ctx = services.WithRequestID(services.WithStep(ctx, step.String()), requestID)
	logger := logging.WithContext(ctx, r.logger)

	start := time.Now()
	logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))
	err := action.Execute(ctx, Env{
		Store:  r.store,
		Logger: logger,
		Report: func(percent float64, detail string) {
			if r.onProgress != nil {
				r.onProgress(step, percent, detail)
			}
		},
	})
	if err != nil {
		if services.Classify(err) == services.OutcomeCancelled {
			logger.Info("step cancelled",
				logging.String(logging.FieldEventType, "step_cancelled"),
				logging.Duration("step_duration", time.Since(start)),
			)
			return err
		}
		logging.ErrorWithContext(logger, "step failed", "step_failed",
			logging.String("outcome", string(services.Classify(err))),
			logging.String("error_message", services.Details(err)),
			logging.Duration("step_duration", time.Since(start)),
			logging.Error(err),
		)
		return fmt.Errorf("%s: %w", step, err)
	}

	if step != workflow.StepDev {
		r.store.CompleteStep(step)
	}
	logger.Info("step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("step_duration", time.Since(start)),
	)
	return nil
}

// RunThrough runs the current step and then advances step by step until last
// has run. The dev step continues at the first pipeline step. It stops at the
// first failure or when the store refuses to proceed.
func (r *Runner) RunThrough(ctx context.Context, last workflow.Step) error {
	for {
		current := r.store.CurrentStep()
		if err := r.Run(ctx, current); err != nil {
			return err
		}
		if current >= last {
			return nil
		}
		if current == workflow.StepDev {
			if !r.store.JumpToStep(workflow.FirstStep) {
				return services.Wrap(services.ErrValidation, current.String(), "proceed",
					"first step not accessible", nil)
			}
			continue
		}
		if _, ok := r.store.ProceedToNext(); !ok {
			return services.Wrap(services.ErrValidation, current.String(), "proceed",
				"step output missing; cannot continue", nil)
		}
	}
}

// Health returns readiness for every registered action in step order.
func (r *Runner) Health(ctx context.Context) []Health {
	var out []Health
	for _, step := range workflow.Steps() {
		action, ok := r.actions[step]
		if !ok {
			continue
		}
		if checker, ok := action.(HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
			continue
		}
		out = append(out, Healthy(step.String()))
	}
	return out
}
