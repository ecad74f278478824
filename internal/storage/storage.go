package storage

import (
	corestorage "github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// Re-export storage interfaces and types from core/ports so implementations
// only import this package.
type (
	ChainStore       = corestorage.ChainStore
	StagerStore      = corestorage.StagerStore
	OperationStore   = corestorage.OperationStore
	AuditStore       = corestorage.AuditStore
	Provider         = corestorage.StorageProvider
	ChainListOptions = corestorage.ChainListOptions
)
