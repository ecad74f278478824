package pipeline

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

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/phoenix-bypass/internal/pipeline"

// Resolver looks up modules and binds their options.
// *bypass.Registry and *bypass.Catalog both satisfy it.
type Resolver interface {
	Resolve(category, name string) (bypass.Module, error)
	Bind(category, name string, raw map[string]any) (map[string]any, error)
}

// snapshotter is implemented by resolvers that can pin one registry for the
// duration of a run.
type snapshotter interface {
	Snapshot() *bypass.Registry
}

// Executor applies bypass modules to artifacts.
type Executor struct {
	resolver Resolver
	observer ports.ExecutionObserver
	tracer   trace.Tracer
	logger   *slog.Logger
}

// ExecutorConfig configures an executor.
type ExecutorConfig struct {
	Resolver Resolver
	// Observer is optional.
	Observer ports.ExecutionObserver
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
	Logger *slog.Logger
}

// NewExecutor creates an executor from configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		resolver: cfg.Resolver,
		observer: cfg.Observer,
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs every step of c in position order. The returned artifact is
// the output of the last step, or a as given when the chain is empty.
func (e *Executor) Execute(ctx context.Context, c *domain.Chain, a *domain.Artifact) (*domain.Artifact, error) {
	ctx, span := e.tracer.Start(ctx, "bypass.chain", trace.WithAttributes(
		attribute.String("chain.id", c.ID),
		attribute.String("chain.name", c.Name),
		attribute.Int("chain.steps", len(c.Steps)),
	))
	defer span.End()

	resolver := e.pin()
	current := a
	for i, step := range c.Steps {
		next, err := e.runStep(ctx, resolver, step.Category, step.Name, step.Options, current)
		if err != nil {
			stepErr := &domain.StepError{
				ChainID:  c.ID,
				Position: i + 1,
				Category: step.Category,
				Name:     step.Name,
				Err:      err,
			}
			e.logger.Warn("bypass chain aborted",
				slog.String("chain_id", c.ID),
				slog.Int("position", i+1),
				slog.String("bypass", step.Ref()),
				slog.String("error", err.Error()))
			span.RecordError(stepErr)
			span.SetStatus(codes.Error, "step failed")
			e.observeRun("chain", stepErr)
			return nil, stepErr
		}
		current = next
	}

	e.observeRun("chain", nil)
	return current, nil
}

// ExecuteOne binds options for a single module and applies it to a. Nil
// options bind to the schema defaults. Binding failures are returned as-is;
// transformation failures wrap domain.ErrBypassExecution.
func (e *Executor) ExecuteOne(ctx context.Context, category, name string, options map[string]any, a *domain.Artifact) (*domain.Artifact, error) {
	resolver := e.pin()
	bound, err := resolver.Bind(category, name, options)
	if err != nil {
		return nil, err
	}

	out, err := e.runStep(ctx, resolver, category, name, bound, a)
	if err != nil {
		err = fmt.Errorf("%s/%s: %w", category, name, err)
		e.observeRun("single", err)
		return nil, err
	}
	e.observeRun("single", nil)
	return out, nil
}

// runStep resolves and applies one module. Options are the values stored at
// add-time; they are not validated again here.
func (e *Executor) runStep(ctx context.Context, r Resolver, category, name string, opts map[string]any, a *domain.Artifact) (*domain.Artifact, error) {
	ctx, span := e.tracer.Start(ctx, "bypass.step", trace.WithAttributes(
		attribute.String("bypass.category", category),
		attribute.String("bypass.name", name),
	))
	defer span.End()

	start := time.Now()
	out, err := e.transform(ctx, r, category, name, opts, a)
	if e.observer != nil {
		e.observer.ObserveStep(category, name, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (e *Executor) transform(ctx context.Context, r Resolver, category, name string, opts map[string]any, a *domain.Artifact) (out *domain.Artifact, err error) {
	m, err := r.Resolve(category, name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.ExecutionFailure(err)
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = nil, domain.ExecutionFailure(fmt.Errorf("panic: %v", p))
		}
	}()

	out, err = m.Transform(ctx, a, bypass.Options(opts))
	switch {
	case err != nil:
		return nil, domain.ExecutionFailure(err)
	case out == nil:
		return nil, domain.ExecutionFailure(errors.New("module returned no artifact"))
	}
	return out, nil
}

func (e *Executor) pin() Resolver {
	if s, ok := e.resolver.(snapshotter); ok {
		return s.Snapshot()
	}
	return e.resolver
}

func (e *Executor) observeRun(kind string, err error) {
	if e.observer != nil {
		e.observer.ObserveRun(kind, err)
	}
}

// Ensure Executor implements the interface.
var _ ports.ChainExecutor = (*Executor)(nil)
