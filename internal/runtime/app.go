// Package runtime provides the App struct and lifecycle management for the
// bypass service.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/multierr"

	"github.com/tjfontaine/phoenix-bypass/internal/adapters/audit/direct"
	"github.com/tjfontaine/phoenix-bypass/internal/adapters/auth/apikey"
	"github.com/tjfontaine/phoenix-bypass/internal/api/controlplane"
	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/chainfile"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
	"github.com/tjfontaine/phoenix-bypass/internal/metrics"
	"github.com/tjfontaine/phoenix-bypass/internal/pipeline"
	"github.com/tjfontaine/phoenix-bypass/internal/pkg/config"
	"github.com/tjfontaine/phoenix-bypass/internal/registration"
	"github.com/tjfontaine/phoenix-bypass/internal/server"
	"github.com/tjfontaine/phoenix-bypass/internal/stager"
	"github.com/tjfontaine/phoenix-bypass/internal/telemetry"
)

// SeedActor is recorded in the audit log for chains imported at start-up.
const SeedActor = "seed"

// App wires configuration, storage, the module catalog and the HTTP API.
// It can be embedded in larger applications or run standalone.
type App struct {
	// Dependencies (injected via options)
	config  ports.ConfigProvider
	auth    ports.AuthProvider
	storage ports.StorageProvider
	audit   ports.AuditLogger
	metrics *metrics.Metrics
	logger  *slog.Logger

	listener net.Listener

	// Built by Start
	catalog        *bypass.Catalog
	service        *pipeline.Service
	server         *server.Server
	tracerShutdown telemetry.ShutdownFunc

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates an App with the given options. Storage and authentication
// default to what the loaded configuration asks for.
func New(opts ...Option) (*App, error) {
	app := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if app.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfig)")
	}
	if app.metrics == nil {
		app.metrics = metrics.NewMetrics()
	}
	return app, nil
}

// Start loads configuration, builds every component and starts serving.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	cfg, err := a.config.Load(a.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.storage == nil {
		if a.storage, err = openStorage(cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.logger.Info("storage opened", slog.String("type", cfg.Storage.Type))
	}

	if err := a.initAuth(cfg); err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	if a.tracerShutdown, err = telemetry.InitTracer(cfg.Telemetry, nil, a.logger); err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	if err := a.initService(cfg); err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	if cfg.Chains.SeedFile != "" {
		if _, err := chainfile.ImportFile(a.ctx, a.service, cfg.Chains.SeedFile, SeedActor, a.logger); err != nil {
			return fmt.Errorf("seed chains: %w", err)
		}
	}

	if err := a.startServer(cfg); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	go a.watchConfig()

	a.logger.Info("bypass service started",
		slog.Int("port", cfg.Server.Port),
		slog.Int("modules", a.catalog.Snapshot().Len()),
		slog.Bool("auth", a.auth != nil))

	return nil
}

// Shutdown gracefully stops the App. Every component is closed even when an
// earlier one fails; the failures are combined.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down bypass service")

	if a.cancel != nil {
		a.cancel()
	}

	var err error
	if a.server != nil {
		err = multierr.Append(err, wrap("shutdown server", a.server.Shutdown(ctx)))
	}
	if a.tracerShutdown != nil {
		err = multierr.Append(err, wrap("shutdown tracer", a.tracerShutdown(ctx)))
	}
	if a.storage != nil {
		err = multierr.Append(err, wrap("close storage", a.storage.Close()))
	}
	if a.config != nil {
		err = multierr.Append(err, wrap("close config", a.config.Close()))
	}

	for _, e := range multierr.Errors(err) {
		a.logger.Error("shutdown step failed", slog.String("error", e.Error()))
	}
	if err == nil {
		a.logger.Info("bypass service shutdown complete")
	}
	return err
}

// Service returns the pipeline facade. It is nil before Start.
func (a *App) Service() *pipeline.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.service
}

// Handler returns the HTTP handler. It is nil before Start.
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Catalog returns the module catalog. It is nil before Start.
func (a *App) Catalog() *bypass.Catalog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalog
}

// watchConfig watches for config changes and reloads.
func (a *App) watchConfig() {
	onChange := func(newCfg *config.Config) {
		a.logger.Info("config changed, reloading")
		if err := a.Reload(newCfg); err != nil {
			a.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := a.config.Watch(a.ctx, onChange); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("config watch failed", slog.String("error", err.Error()))
	}
}

// Reload applies the parts of cfg that can change at run time: the set of
// disabled modules and the API users. Server and storage settings need a
// restart.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.catalog == nil {
		return errors.New("app not started")
	}

	r := registration.NewRegistry(cfg.Bypasses.Disabled, a.logger)
	a.catalog.Swap(r)
	a.metrics.SetModules(r.Len())

	if reloader, ok := a.auth.(interface{ ReloadFromConfig(*config.Config) error }); ok {
		if err := reloader.ReloadFromConfig(cfg); err != nil {
			return fmt.Errorf("reload auth: %w", err)
		}
	}

	a.logger.Info("reload complete", slog.Int("modules", r.Len()))
	return nil
}

func (a *App) initAuth(cfg *config.Config) error {
	if a.auth != nil {
		return nil
	}
	if cfg.Auth.Disabled {
		a.logger.Warn("authentication disabled, requests act as anonymous")
		return nil
	}
	provider, err := apikey.NewProvider(a.config)
	if err != nil {
		return err
	}
	if len(cfg.Auth.Users) == 0 {
		a.logger.Warn("no API users configured, every protected request will be rejected")
	}
	a.auth = provider
	return nil
}

func (a *App) initService(cfg *config.Config) error {
	registry := registration.NewRegistry(cfg.Bypasses.Disabled, a.logger)
	a.catalog = bypass.NewCatalog(registry)
	a.metrics.SetModules(registry.Len())

	if a.audit == nil {
		audit, err := direct.NewLogger(a.storage, a.logger)
		if err != nil {
			return fmt.Errorf("create audit logger: %w", err)
		}
		a.audit = audit
	}

	executor := pipeline.NewExecutor(pipeline.ExecutorConfig{
		Resolver: a.catalog,
		Observer: a.metrics,
		Logger:   a.logger,
	})

	svc, err := pipeline.NewService(pipeline.ServiceConfig{
		Catalog:   a.catalog,
		Executor:  executor,
		Store:     a.storage,
		Generator: stager.NewGenerator(),
		Audit:     a.audit,
		Mutations: a.metrics,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	a.service = svc
	return nil
}

func (a *App) startServer(cfg *config.Config) error {
	srv := server.New(server.Options{
		Port:        cfg.Server.Port,
		Logger:      a.logger,
		Auth:        a.auth,
		Timeout:     cfg.Server.RequestTimeout,
		Requests:    a.metrics,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	api := controlplane.NewServer(controlplane.Config{
		Service: a.service,
		Formats: stager.Formats,
		Logger:  a.logger,
	})

	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	srv.Router.Handle("/metrics", a.metrics.Handler())
	api.PublicRoutes(srv.Router)
	srv.Protected(func(r chi.Router) {
		r.Mount("/", api)
	})

	a.server = srv
	if a.listener != nil {
		return srv.Serve(a.listener)
	}
	return srv.Start()
}

func wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", step, err)
}
