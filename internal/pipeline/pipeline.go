package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/imagecrawl/internal/model"
)

// Step is one stage of a run.
type Step interface {
	// Do executes the step. Per-item failures are recorded in run and do
	// not produce an error; an error means the run cannot continue.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step's name for logging and the run record.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing later steps after a failure.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for step execution.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to run later steps after one fails.
// Cancellation always stops the pipeline.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger {
	return p.logger
}

// Execute runs the steps in order and sets run.FinishedAt when it returns.
//
// Design decision: Cancellation is checked between steps; within a step the
// step itself honors ctx and hands back partial results. A cancelled run is
// marked Interrupted rather than failed.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	defer func() { run.FinishedAt = time.Now() }()
	p.logger.Debug("running pipeline", "seed", run.Seed, "steps", p.StepNames())

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			run.Interrupted = true
			return err
		}

		p.logger.Info("executing step", "step", step.Name(), "seed", run.Seed)

		err := step.Do(ctx, run)
		run.PerformedSteps = append(run.PerformedSteps, step.Name())
		if err == nil {
			p.logger.Debug("step completed", "step", step.Name(), "seed", run.Seed)
			continue
		}

		run.ErrorMessage = err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("step interrupted", "step", step.Name(), "seed", run.Seed)
			run.Interrupted = true
			return err
		}

		p.logger.Error("step failed", "step", step.Name(), "seed", run.Seed, "error", err)
		if !p.continueOnError {
			return err
		}
	}
	return nil
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
