// Package ports defines the core interfaces of the bypass service.
// This file contains the chain execution interfaces.
package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// ChainExecutor runs bypass chains and single modules over an artifact.
type ChainExecutor interface {
	// Execute applies every step of c in position order. An empty chain
	// returns the input unchanged.
	Execute(ctx context.Context, c *domain.Chain, a *domain.Artifact) (*domain.Artifact, error)
	// ExecuteOne binds options for a single module and applies it.
	ExecuteOne(ctx context.Context, category, name string, options map[string]any, a *domain.Artifact) (*domain.Artifact, error)
}

// ExecutionObserver receives per-step outcomes, typically for metrics.
type ExecutionObserver interface {
	ObserveStep(category, name string, d time.Duration, err error)
	ObserveRun(kind string, err error)
}
