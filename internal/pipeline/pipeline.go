package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/linkprobe/internal/model"
)

// Step is one stage of the work done for a start URL.
//
// Design decision: an interface rather than a function type, so that steps
// carry their own configuration and have a name to log.
type Step interface {
	// Do runs the step. Non-critical problems are recorded in the report
	// and nil is returned.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline runs steps in the order they were added.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after one fails. The error
// is still recorded in the report.
//
// Design decision: the default is to stop, because a failed crawl leaves
// nothing for the following steps to work on.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New returns an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step against report.
//
// Cancellation is checked between steps; a step that is already running is
// expected to stop on its own and leave partial results in the report. When
// the context is done before a step starts, the report is marked cancelled
// and the context error is returned.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"url", report.StartURL,
				"reason", err,
			)
			report.Cancelled = true
			return err
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", report.StartURL,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"url", report.StartURL,
				"error", err,
			)
			report.AddError(fmt.Errorf("%s: %w", step.Name(), err))
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"url", report.StartURL,
		)
	}
	return nil
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
