// Package runner executes deployment plans against a chain.Deployer.
//
// A plan is interpreted one step at a time. Each step waits for the
// previous step's receipt; the first failure marks the run failed and
// skips every remaining step. Nothing already published is undone.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/core/deployment"
	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/shell/chain"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrMissingArtifact = errors.New("no artifact for unit")
	ErrNoPlaceholder   = errors.New("unit has no placeholder for library")
	ErrUnresolvedRef   = errors.New("reference has no recorded address")
)

// StepError reports the step at which a run stopped.
type StepError struct {
	Index int
	Step  deployment.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Runner
// =============================================================================

// Config holds runner dependencies. Store and Metrics are optional.
type Config struct {
	Artifacts artifact.Set
	Store     store.Store
	Metrics   *Metrics
	Logger    *slog.Logger
	Network   string
}

// Runner interprets deployment plans.
type Runner struct {
	artifacts artifact.Set
	store     store.Store
	metrics   *Metrics
	logger    *slog.Logger
	network   string
}

// New creates a Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		artifacts: cfg.Artifacts,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		logger:    logger,
		network:   cfg.Network,
	}
}

// Preflight checks that plan is valid and that every unit it touches has an
// artifact exposing the methods the plan calls. Links are applied to a copy
// of the bytecode so that a link without a placeholder, or a publish that
// would leave placeholders unresolved, is rejected before anything is sent.
// It has no side effects.
func (r *Runner) Preflight(plan deployment.Plan) error {
	if err := deployment.Validate(plan); err != nil {
		return err
	}

	linked := make(map[string]string) // unit -> bytecode after the links so far
	for i, s := range plan.Steps {
		var units []string
		switch s.Kind {
		case deployment.StepLink:
			units = []string{s.Unit, s.Into}
		default:
			units = []string{s.Unit}
		}
		for _, u := range units {
			if _, ok := r.artifacts[u]; !ok {
				return &StepError{Index: i, Step: s, Err: fmt.Errorf("%w: %s", ErrMissingArtifact, u)}
			}
		}

		switch s.Kind {
		case deployment.StepLink:
			target := r.artifacts[s.Into]
			code, ok := linked[s.Into]
			if !ok {
				code = target.Bytecode
			}
			code, n := artifact.Link(code, s.Unit, target.Libraries, domain.Address{})
			if n == 0 {
				return &StepError{Index: i, Step: s, Err: fmt.Errorf("%w: %s has no placeholder for %s", ErrNoPlaceholder, s.Into, s.Unit)}
			}
			linked[s.Into] = code

		case deployment.StepPublish:
			a := r.artifacts[s.Unit]
			if code, ok := linked[s.Unit]; ok {
				a = a.WithBytecode(code)
			}
			if _, err := a.Code(); err != nil {
				return &StepError{Index: i, Step: s, Err: err}
			}
			if want := len(a.ABI.Constructor.Inputs); want != len(s.Args) {
				return &StepError{Index: i, Step: s, Err: artifact.NewArtifactError(a.Name, "constructor",
					fmt.Sprintf("expected %d arguments, got %d", want, len(s.Args)), artifact.ErrArgumentCount)}
			}

		case deployment.StepAuthorize, deployment.StepCall:
			a := r.artifacts[s.Unit]
			m, ok := a.ABI.Methods[s.Method]
			if !ok {
				return &StepError{Index: i, Step: s, Err: artifact.NewArtifactError(a.Name, s.Method, "not in ABI", artifact.ErrMethodNotFound)}
			}
			if n := len(s.CallArgs()); n != len(m.Inputs) {
				return &StepError{Index: i, Step: s, Err: artifact.NewArtifactError(a.Name, s.Method,
					fmt.Sprintf("expected %d arguments, got %d", len(m.Inputs), n), artifact.ErrArgumentCount)}
			}
		}
	}
	return nil
}

// Run executes plan with deployer and returns the resulting run.
//
// Plans that fail Preflight return a nil run and touch nothing. Otherwise
// the run is persisted as it progresses; on failure it is returned together
// with a *StepError, keeping the records of the steps that succeeded.
func (r *Runner) Run(ctx context.Context, plan deployment.Plan, deployer chain.Deployer) (*domain.Run, error) {
	if err := r.Preflight(plan); err != nil {
		return nil, err
	}

	run := domain.NewRun(plan.Name, r.network)
	if r.store != nil {
		if err := r.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	logger := r.logger.With("run_id", run.ID, "plan", plan.Name)

	if err := run.Transition(domain.RunRunning); err != nil {
		return run, err
	}
	if err := r.saveRun(ctx, run); err != nil {
		return run, err
	}
	logger.Info("run started", "steps", len(plan.Steps), "network", r.network)

	ex := &execution{
		Runner:   r,
		run:      run,
		deployer: deployer,
		code:     make(map[string]string),
		logger:   logger,
	}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return run, r.fail(ctx, run, i, step, err, logger)
		}

		start := time.Now()
		err := ex.execute(ctx, i, step)
		r.metrics.recordStep(string(step.Kind), err, time.Since(start))
		if err != nil {
			return run, r.fail(ctx, run, i, step, err, logger)
		}
	}

	if err := run.Transition(domain.RunSucceeded); err != nil {
		return run, err
	}
	if err := r.saveRun(ctx, run); err != nil {
		return run, err
	}
	r.metrics.recordRun(plan.Name, string(domain.RunSucceeded))
	logger.Info("run succeeded", "records", len(run.Records), "grants", len(run.Grants))
	return run, nil
}

func (r *Runner) fail(ctx context.Context, run *domain.Run, i int, step deployment.Step, cause error, logger *slog.Logger) error {
	stepErr := &StepError{Index: i, Step: step, Err: cause}

	if err := run.Fail(i, stepErr.Error()); err != nil {
		logger.Error("failed to mark run failed", "error", err)
	}
	// ctx may already be canceled; the failure is still recorded.
	if err := r.saveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to persist failed run", "error", err)
	}
	r.metrics.recordRun(run.Plan, string(domain.RunFailed))

	logger.Error("run failed", "step", i, "action", step.String(), "error", cause)
	return stepErr
}

func (r *Runner) saveRun(ctx context.Context, run *domain.Run) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}
