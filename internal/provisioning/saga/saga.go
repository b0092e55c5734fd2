// Package saga runs an ordered list of steps and, when one fails, undoes the
// failed step and every completed one in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is one unit of forward progress. Undo also runs when Do itself failed,
// since a remote call can take effect and still report an error, so it must
// succeed when there is nothing to remove. Undo may be nil when a later
// step's compensation already removes what Do created.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Residue names a compensation that failed and what it left behind.
type Residue struct {
	Step string
	Err  error
}

func (r Residue) String() string {
	return fmt.Sprintf("%s: %v", r.Step, r.Err)
}

// Failure reports the step that stopped the saga, its error, and any
// compensation that could not be completed.
type Failure struct {
	Step    string
	Err     error
	Residue []Residue
}

func (f *Failure) Error() string {
	if len(f.Residue) == 0 {
		return fmt.Sprintf("step %s: %v", f.Step, f.Err)
	}
	return fmt.Sprintf("step %s: %v (%d compensation failures)", f.Step, f.Err, len(f.Residue))
}

func (f *Failure) Unwrap() error { return f.Err }

type Runner struct {
	stepTimeout time.Duration
	tracer      trace.Tracer
	logger      *slog.Logger
}

type Option func(*Runner)

// WithStepTimeout bounds each Do and each Undo. Default 30s.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.stepTimeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{stepTimeout: 30 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("taskhub/provisioning")
	}
	return r
}

// Execute runs steps in order. It stops before the next step once ctx is
// done, but a step that has started runs to completion under its own
// timeout, detached from ctx. Compensation is detached the same way and
// covers the failing step.
func (r *Runner) Execute(ctx context.Context, name string, steps []Step) *Failure {
	ctx, span := r.tracer.Start(ctx, "saga."+name)
	defer span.End()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, span, step.Name, err, steps[:i])
		}
		if err := r.run(ctx, "do", step.Name, step.Do); err != nil {
			return r.fail(ctx, span, step.Name, err, steps[:i+1])
		}
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, span trace.Span, step string, err error, touched []Step) *Failure {
	span.RecordError(err)
	span.SetStatus(codes.Error, "step "+step+" failed")
	r.logger.WarnContext(ctx, "saga step failed, compensating",
		"step", step,
		"error", err,
		"compensating", len(touched),
	)

	failure := &Failure{Step: step, Err: err}
	for i := len(touched) - 1; i >= 0; i-- {
		s := touched[i]
		if s.Undo == nil {
			continue
		}
		if uerr := r.run(ctx, "undo", s.Name, s.Undo); uerr != nil {
			r.logger.ErrorContext(ctx, "compensation failed",
				"step", s.Name,
				"error", uerr,
			)
			failure.Residue = append(failure.Residue, Residue{Step: s.Name, Err: uerr})
		}
	}
	span.SetAttributes(attribute.Int("saga.residue", len(failure.Residue)))
	return failure
}

func (r *Runner) run(parent context.Context, phase, step string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.stepTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, phase+"."+step, trace.WithAttributes(attribute.String("saga.step", step)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step %s panicked: %v", step, p)
		}
	}()
	err = fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("step %s timed out after %s: %w", step, r.stepTimeout, err)
	}
	return err
}
