package ports

import (
	"context"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// ChainStore persists bypass chains. Implementations return independent
// copies: mutating a returned chain never affects stored state until it is
// written back with UpdateChain.
type ChainStore interface {
	// CreateChain assigns an ID and timestamps when absent.
	CreateChain(ctx context.Context, c *domain.Chain) error
	GetChain(ctx context.Context, id string) (*domain.Chain, error)
	GetChainByName(ctx context.Context, name string) (*domain.Chain, error)
	ListChains(ctx context.Context, opts ChainListOptions) ([]*domain.Chain, error)
	// UpdateChain replaces the stored chain, steps included, as one write.
	UpdateChain(ctx context.Context, c *domain.Chain) error
	// UpdateChainFunc reads the chain, applies fn and writes the result
	// atomically with respect to other updates of the same chain. An error
	// from fn is returned unchanged and nothing is written. fn must not call
	// back into the store.
	UpdateChainFunc(ctx context.Context, id string, fn func(*domain.Chain) error) (*domain.Chain, error)
	DeleteChain(ctx context.Context, id string) error
}

// ChainListOptions filters chain listings.
type ChainListOptions struct {
	// Operation restricts the listing to chains visible in that operation
	// (its own chains plus global ones). Empty lists every chain.
	Operation string
}

// StagerStore persists stager records.
type StagerStore interface {
	CreateStager(ctx context.Context, s *domain.Stager) error
	GetStager(ctx context.Context, id string) (*domain.Stager, error)
	ListStagers(ctx context.Context) ([]*domain.Stager, error)
	DeleteStager(ctx context.Context, id string) error
}

// OperationStore persists operations and tracks the current one.
type OperationStore interface {
	CreateOperation(ctx context.Context, op *domain.Operation) error
	GetOperation(ctx context.Context, id string) (*domain.Operation, error)
	ListOperations(ctx context.Context) ([]*domain.Operation, error)
	// CurrentOperation returns nil without error when none is current.
	CurrentOperation(ctx context.Context) (*domain.Operation, error)
	SetCurrentOperation(ctx context.Context, id string) error
}

// AuditStore persists audit entries.
type AuditStore interface {
	AppendLogEntry(ctx context.Context, e *domain.LogEntry) error
	// ListLogEntries returns the newest entries first; limit <= 0 means all.
	ListLogEntries(ctx context.Context, limit int) ([]*domain.LogEntry, error)
}

// StorageProvider manages all storage operations.
// Implementations: memory, SQLite (default on disk), PostgreSQL.
type StorageProvider interface {
	ChainStore
	StagerStore
	OperationStore
	AuditStore

	Close() error
}
