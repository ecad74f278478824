package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// AuditEndpoint is the endpoint recorded on every audit entry written by the
// service.
const AuditEndpoint = "bypasses"

// Catalog is the read side of the module registry used by the service.
type Catalog interface {
	Resolver
	Describe(category, name string) (bypass.Descriptor, error)
	List(category string) map[string][]string
	ListFull(category string) map[string][]bypass.Descriptor
	Categories() []string
}

// MutationObserver counts chain mutations, typically for metrics.
type MutationObserver interface {
	ObserveMutation(op string, err error)
}

// Service is the facade in front of the executor, the stager generator and
// persistence. Every chain mutation is applied inside one UpdateChainFunc
// call, so concurrent mutations of a chain serialize in the store, and is
// audited after it commits.
type Service struct {
	catalog   Catalog
	executor  ports.ChainExecutor
	store     ports.StorageProvider
	generator ports.PayloadGenerator
	audit     ports.AuditLogger
	mutations MutationObserver
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceConfig configures a Service. Catalog, Executor, Store and Generator
// are required.
type ServiceConfig struct {
	Catalog   Catalog
	Executor  ports.ChainExecutor
	Store     ports.StorageProvider
	Generator ports.PayloadGenerator
	Audit     ports.AuditLogger
	Mutations MutationObserver
	Logger    *slog.Logger
}

// NewService creates a facade from configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("pipeline: catalog is required")
	case cfg.Executor == nil:
		return nil, errors.New("pipeline: executor is required")
	case cfg.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case cfg.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	}
	s := &Service{
		catalog:   cfg.Catalog,
		executor:  cfg.Executor,
		store:     cfg.Store,
		generator: cfg.Generator,
		audit:     cfg.Audit,
		mutations: cfg.Mutations,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if s.audit == nil {
		s.audit = nopAudit{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Catalog returns the module catalog backing the service.
func (s *Service) Catalog() Catalog { return s.catalog }

// ListBypasses returns module names, or full descriptors when full is set,
// grouped by category.
func (s *Service) ListBypasses(category string, full bool) any {
	if full {
		return s.catalog.ListFull(category)
	}
	return s.catalog.List(category)
}

// DescribeBypass returns one module's descriptor.
func (s *Service) DescribeBypass(category, name string) (bypass.Descriptor, error) {
	return s.catalog.Describe(category, name)
}

// RunBypass generates the stager's payload and applies a single module to it.
func (s *Service) RunBypass(ctx context.Context, category, name, stagerID string, options map[string]any, actor string) (*domain.Artifact, error) {
	if _, err := s.catalog.Resolve(category, name); err != nil {
		return nil, err
	}
	artifact, err := s.generate(ctx, stagerID)
	if err != nil {
		return nil, err
	}
	out, err := s.executor.ExecuteOne(ctx, category, name, options, artifact)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, domain.StatusSuccess, AuditEndpoint,
		fmt.Sprintf("Bypass %s/%s executed on stager %s.", category, name, stagerID), actor)
	return out, nil
}

// RunChain generates the stager's payload and runs the chain over it.
func (s *Service) RunChain(ctx context.Context, chainID, stagerID, actor string) (*domain.Artifact, error) {
	c, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	artifact, err := s.generate(ctx, stagerID)
	if err != nil {
		return nil, err
	}
	out, err := s.executor.Execute(ctx, c, artifact)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, domain.StatusSuccess, AuditEndpoint,
		fmt.Sprintf("Chain '%s' executed on stager %s.", c.Name, stagerID), actor)
	return out, nil
}

func (s *Service) generate(ctx context.Context, stagerID string) (*domain.Artifact, error) {
	if strings.TrimSpace(stagerID) == "" {
		return nil, &domain.OptionError{Field: "stager", Reason: "required"}
	}
	st, err := s.store.GetStager(ctx, stagerID)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(ctx, st)
}

// ListChains returns the chains visible in the current operation. With all
// set, or when no operation is current, every chain is returned.
func (s *Service) ListChains(ctx context.Context, all bool) ([]*domain.Chain, error) {
	var opts ports.ChainListOptions
	if !all {
		op, err := s.store.CurrentOperation(ctx)
		if err != nil {
			return nil, fmt.Errorf("current operation: %w", err)
		}
		if op != nil {
			opts.Operation = op.ID
		}
	}
	return s.store.ListChains(ctx, opts)
}

// GetChain returns a chain by ID.
func (s *Service) GetChain(ctx context.Context, id string) (*domain.Chain, error) {
	return s.store.GetChain(ctx, id)
}

// CreateChain validates and stores a new chain. Names are unique.
func (s *Service) CreateChain(ctx context.Context, req domain.ChainRequest, actor string) (*domain.Chain, error) {
	c, err := domain.NewChain(s.catalog, req)
	if err != nil {
		s.observe("create", err)
		return nil, err
	}
	if existing, err := s.store.GetChainByName(ctx, c.Name); err == nil && existing != nil {
		err := &domain.OptionError{Field: "name", Reason: fmt.Sprintf("chain %q already exists", c.Name)}
		s.observe("create", err)
		return nil, err
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.store.CreateChain(ctx, c); err != nil {
		s.observe("create", err)
		return nil, fmt.Errorf("create chain: %w", err)
	}
	s.observe("create", nil)
	s.audit.Log(ctx, domain.StatusSuccess, AuditEndpoint, fmt.Sprintf("Chain '%s' added.", c.Name), actor)
	return c, nil
}

// DeleteChain removes a chain.
func (s *Service) DeleteChain(ctx context.Context, id, actor string) error {
	c, err := s.store.GetChain(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteChain(ctx, id); err != nil {
		s.observe("delete", err)
		return fmt.Errorf("delete chain: %w", err)
	}
	s.observe("delete", nil)
	s.audit.Log(ctx, domain.StatusSuccess, AuditEndpoint, fmt.Sprintf("Chain '%s' removed.", c.Name), actor)
	return nil
}

// EditChain applies a partial update of chain-level fields. A new name must
// be free and a new operation must exist.
func (s *Service) EditChain(ctx context.Context, id string, patch map[string]any, actor string) (*domain.Chain, error) {
	if err := s.checkEdit(ctx, id, patch); err != nil {
		s.observe("edit", err)
		return nil, err
	}
	return s.mutate(ctx, "edit", id, actor, func(c *domain.Chain) (string, error) {
		if err := c.Edit(patch); err != nil {
			return "", err
		}
		return fmt.Sprintf("Chain '%s' edited.", c.Name), nil
	})
}

// checkEdit runs the store lookups an edit depends on. They happen before
// the update transaction because the mutation callback must not call back
// into the store; the store's unique name constraint still catches a name
// taken in between.
func (s *Service) checkEdit(ctx context.Context, id string, patch map[string]any) error {
	if name, ok := patch["name"].(string); ok && strings.TrimSpace(name) != "" {
		other, err := s.store.GetChainByName(ctx, strings.TrimSpace(name))
		switch {
		case err == nil && other.ID != id:
			return &domain.OptionError{Field: "name", Reason: fmt.Sprintf("chain %q already exists", other.Name)}
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("look up chain name: %w", err)
		}
	}
	if op, ok := patch["operation"].(string); ok && strings.TrimSpace(op) != "" {
		_, err := s.store.GetOperation(ctx, strings.TrimSpace(op))
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.OptionError{Field: "operation", Reason: fmt.Sprintf("operation %q does not exist", op)}
		}
		if err != nil {
			return fmt.Errorf("look up operation: %w", err)
		}
	}
	return nil
}

// AddBypass binds and appends a step. It returns the updated chain.
func (s *Service) AddBypass(ctx context.Context, id, category, name string, options map[string]any, actor string) (*domain.Chain, error) {
	return s.mutate(ctx, "add", id, actor, func(c *domain.Chain) (string, error) {
		if _, err := c.AddBypass(s.catalog, category, name, options); err != nil {
			return "", err
		}
		return fmt.Sprintf("Bypass %s/%s added to chain '%s'.", category, name, c.Name), nil
	})
}

// RemoveBypass deletes the step at a 1-based position.
func (s *Service) RemoveBypass(ctx context.Context, id string, pos int, actor string) (*domain.Chain, error) {
	return s.mutate(ctx, "remove", id, actor, func(c *domain.Chain) (string, error) {
		if err := c.RemoveBypass(pos); err != nil {
			return "", err
		}
		return fmt.Sprintf("Bypass %d removed from chain '%s'.", pos, c.Name), nil
	})
}

// MoveBypass moves the step at from so that it ends up at to (both 1-based).
func (s *Service) MoveBypass(ctx context.Context, id string, from, to int, actor string) (*domain.Chain, error) {
	return s.mutate(ctx, "move", id, actor, func(c *domain.Chain) (string, error) {
		if err := c.MoveBypass(from, to); err != nil {
			return "", err
		}
		return fmt.Sprintf("Bypass moved from %d to %d in chain '%s'.", from, to, c.Name), nil
	})
}

// ClearBypasses removes every step of a chain.
func (s *Service) ClearBypasses(ctx context.Context, id, actor string) (*domain.Chain, error) {
	return s.mutate(ctx, "clear", id, actor, func(c *domain.Chain) (string, error) {
		c.Clear()
		return fmt.Sprintf("Bypasses cleared from chain '%s'.", c.Name), nil
	})
}

// mutate applies fn to the chain inside the store's update transaction.
// A failing fn leaves the stored chain untouched and its error is returned
// as is.
func (s *Service) mutate(ctx context.Context, op, id, actor string, fn func(*domain.Chain) (string, error)) (*domain.Chain, error) {
	var msg string
	var fnErr error
	c, err := s.store.UpdateChainFunc(ctx, id, func(c *domain.Chain) error {
		msg, fnErr = fn(c)
		if fnErr != nil {
			return fnErr
		}
		c.UpdatedAt = s.now().UTC()
		return nil
	})
	switch {
	case fnErr != nil:
		s.observe(op, fnErr)
		return nil, fnErr
	case errors.Is(err, domain.ErrNotFound):
		return nil, err
	case err != nil:
		s.observe(op, err)
		return nil, fmt.Errorf("update chain: %w", err)
	}
	s.observe(op, nil)
	s.audit.Log(ctx, domain.StatusSuccess, AuditEndpoint, msg, actor)
	return c, nil
}

func (s *Service) observe(op string, err error) {
	if s.mutations != nil {
		s.mutations.ObserveMutation(op, err)
	}
}

// StagerRequest is the body of a stager creation request.
type StagerRequest struct {
	Name      string         `json:"name"`
	Format    string         `json:"format"`
	Compiled  bool           `json:"compiled"`
	Template  string         `json:"template"`
	Options   map[string]any `json:"options,omitempty"`
	Operation *string        `json:"operation,omitempty"`
}

// CreateStager stores a stager record. The template is checked by
// generating it once.
func (s *Service) CreateStager(ctx context.Context, req StagerRequest, actor string) (*domain.Stager, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.OptionError{Field: "name", Reason: "required"}
	}
	if req.Format == "" {
		req.Format = "txt"
	}
	st := &domain.Stager{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Format:    req.Format,
		Compiled:  req.Compiled,
		Template:  req.Template,
		Options:   req.Options,
		Operation: req.Operation,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.generator.Generate(ctx, st); err != nil {
		return nil, &domain.OptionError{Field: "template", Reason: err.Error()}
	}
	if err := s.store.CreateStager(ctx, st); err != nil {
		return nil, fmt.Errorf("create stager: %w", err)
	}
	s.audit.Log(ctx, domain.StatusSuccess, "stagers", fmt.Sprintf("Stager '%s' added.", st.Name), actor)
	return st, nil
}

func (s *Service) GetStager(ctx context.Context, id string) (*domain.Stager, error) {
	return s.store.GetStager(ctx, id)
}

func (s *Service) ListStagers(ctx context.Context) ([]*domain.Stager, error) {
	return s.store.ListStagers(ctx)
}

// DeleteStager removes a stager record.
func (s *Service) DeleteStager(ctx context.Context, id, actor string) error {
	st, err := s.store.GetStager(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStager(ctx, id); err != nil {
		return fmt.Errorf("delete stager: %w", err)
	}
	s.audit.Log(ctx, domain.StatusSuccess, "stagers", fmt.Sprintf("Stager '%s' removed.", st.Name), actor)
	return nil
}

// CreateOperation stores a new operation. It does not become current.
func (s *Service) CreateOperation(ctx context.Context, name, actor string) (*domain.Operation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.OptionError{Field: "name", Reason: "required"}
	}
	op := &domain.Operation{ID: uuid.NewString(), Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.CreateOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}
	s.audit.Log(ctx, domain.StatusSuccess, "operations", fmt.Sprintf("Operation '%s' added.", op.Name), actor)
	return op, nil
}

func (s *Service) ListOperations(ctx context.Context) ([]*domain.Operation, error) {
	return s.store.ListOperations(ctx)
}

// ActivateOperation makes id the current operation.
func (s *Service) ActivateOperation(ctx context.Context, id, actor string) error {
	if err := s.store.SetCurrentOperation(ctx, id); err != nil {
		return err
	}
	s.audit.Log(ctx, domain.StatusInfo, "operations", fmt.Sprintf("Operation %s activated.", id), actor)
	return nil
}

// ListLogs returns the newest audit entries first.
func (s *Service) ListLogs(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	return s.store.ListLogEntries(ctx, limit)
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, domain.Status, string, string, string) {}
