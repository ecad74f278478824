package ports

import (
	"context"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default), static.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// AuthProvider maps an API key to the acting user.
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (*AuthContext, error)
}

// AuthContext contains authenticated request context.
type AuthContext struct {
	User string
}

// AuditLogger records the outcome of mutations and executions. Logging is
// best effort: implementations never fail the caller's operation.
type AuditLogger interface {
	Log(ctx context.Context, status domain.Status, endpoint, description, actor string)
}

// PayloadGenerator turns a stager record into an artifact.
// Failures are reported as *domain.GenerationError.
type PayloadGenerator interface {
	Generate(ctx context.Context, s *domain.Stager) (*domain.Artifact, error)
}
