package runtime

import (
	"context"
	"fmt"

	"github.com/tjfontaine/phoenix-bypass/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
	"github.com/tjfontaine/phoenix-bypass/internal/storage/memory"
	"github.com/tjfontaine/phoenix-bypass/internal/storage/sqldb"
)

// openStorage builds the provider named by cfg.Type.
func openStorage(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.NewProvider(cfg.SQLite.Path)
	case "postgres":
		return sqldb.NewPostgres(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// staticConfig serves one configuration for the life of the process.
type staticConfig struct {
	cfg *config.Config
}

func (s *staticConfig) Load(context.Context) (*config.Config, error) {
	return s.cfg, nil
}

func (s *staticConfig) Watch(context.Context, func(*config.Config)) error {
	return nil
}

func (s *staticConfig) Close() error { return nil }

var _ ports.ConfigProvider = (*staticConfig)(nil)
