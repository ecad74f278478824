// Package bypassd provides the public API for embedding the bypass service.
// This is the stable API for external consumers.
package bypassd

import (
	"github.com/tjfontaine/phoenix-bypass/internal/runtime"
)

// App is the main entry point for running the bypass service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options.
// Example:
//
//	app, err := bypassd.New(
//	    bypassd.WithFileConfig("config.yaml"),
//	    bypassd.WithSQLite("./data/bypassd.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig

	// Authentication
	WithAPIKeyAuth = runtime.WithAPIKeyAuth

	// Storage
	WithMemoryStorage = runtime.WithMemoryStorage
	WithSQLite        = runtime.WithSQLite
	WithPostgres      = runtime.WithPostgres

	// Advanced options
	WithLogger          = runtime.WithLogger
	WithListener        = runtime.WithListener
	WithMetrics         = runtime.WithMetrics
	WithConfigProvider  = runtime.WithConfigProvider
	WithAuthProvider    = runtime.WithAuthProvider
	WithStorageProvider = runtime.WithStorageProvider
	WithAuditLogger     = runtime.WithAuditLogger
)
