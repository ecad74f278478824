package runtime

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/tjfontaine/phoenix-bypass/internal/adapters/auth/apikey"
	"github.com/tjfontaine/phoenix-bypass/internal/adapters/config/file"
	"github.com/tjfontaine/phoenix-bypass/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
	"github.com/tjfontaine/phoenix-bypass/internal/metrics"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
	"github.com/tjfontaine/phoenix-bypass/internal/storage/memory"
	"github.com/tjfontaine/phoenix-bypass/internal/storage/sqldb"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfig uses a fixed, already loaded configuration. Nothing is
// watched, so Reload must be called explicitly.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		a.config = &staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithAPIKeyAuth uses API key-based authentication (default unless
// auth.disabled is set).
func WithAPIKeyAuth() Option {
	return func(a *App) error {
		if a.config == nil {
			return fmt.Errorf("config provider must be set before auth provider")
		}
		provider, err := apikey.NewProvider(a.config)
		if err != nil {
			return fmt.Errorf("create apikey auth provider: %w", err)
		}
		a.auth = provider
		return nil
	}
}

// WithAuthProvider sets a custom auth provider.
func WithAuthProvider(provider ports.AuthProvider) Option {
	return func(a *App) error {
		a.auth = provider
		return nil
	}
}

// WithMemoryStorage keeps all records in process memory.
func WithMemoryStorage() Option {
	return func(a *App) error {
		a.storage = memory.New()
		return nil
	}
}

// WithSQLite uses SQLite storage (default for single-instance deployments).
func WithSQLite(path string) Option {
	return func(a *App) error {
		store, err := sqlite.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		a.storage = store
		return nil
	}
}

// WithPostgres uses PostgreSQL storage.
// Recommended when several instances share one set of chains.
func WithPostgres(dsn string) Option {
	return func(a *App) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		a.storage = store
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(a *App) error {
		a.storage = provider
		return nil
	}
}

// WithAuditLogger sets a custom audit logger. By default entries are
// written straight to storage.
func WithAuditLogger(audit ports.AuditLogger) Option {
	return func(a *App) error {
		a.audit = audit
		return nil
	}
}

// WithMetrics sets the metrics collector, so an embedding application can
// expose it from its own registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) error {
		a.metrics = m
		return nil
	}
}

// WithListener serves on ln instead of listening on the configured port.
func WithListener(ln net.Listener) Option {
	return func(a *App) error {
		a.listener = ln
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
