package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/storage"
)

// Store is an in-memory implementation of storage.Provider. Values are
// copied on the way in and on the way out.
type Store struct {
	mu         sync.RWMutex
	chains     map[string]*domain.Chain
	stagers    map[string]*domain.Stager
	operations map[string]*domain.Operation
	current    string
	logs       []*domain.LogEntry
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		chains:     make(map[string]*domain.Chain),
		stagers:    make(map[string]*domain.Stager),
		operations: make(map[string]*domain.Operation),
	}
}

func (s *Store) CreateChain(ctx context.Context, c *domain.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.chains[c.ID]; exists {
		return fmt.Errorf("chain %s already exists", c.ID)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	s.chains[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetChain(ctx context.Context, id string) (*domain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chains[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "chain", ID: id}
	}
	return c.Clone(), nil
}

func (s *Store) GetChainByName(ctx context.Context, name string) (*domain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chains {
		if c.Name == name {
			return c.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "chain", ID: name}
}

func (s *Store) ListChains(ctx context.Context, opts storage.ChainListOptions) ([]*domain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Chain, 0, len(s.chains))
	for _, c := range s.chains {
		if opts.Operation != "" && !c.VisibleIn(opts.Operation) {
			continue
		}
		result = append(result, c.Clone())
	}
	slices.SortFunc(result, func(a, b *domain.Chain) int {
		if d := a.CreatedAt.Compare(b.CreatedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) UpdateChain(ctx context.Context, c *domain.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[c.ID]; !ok {
		return &domain.NotFoundError{Kind: "chain", ID: c.ID}
	}
	if err := s.nameTaken(c); err != nil {
		return err
	}
	s.chains[c.ID] = c.Clone()
	return nil
}

// UpdateChainFunc applies fn to a copy of the chain and stores the result,
// holding the store lock throughout so concurrent updates serialize.
func (s *Store) UpdateChainFunc(ctx context.Context, id string, fn func(*domain.Chain) error) (*domain.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.chains[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "chain", ID: id}
	}
	c := stored.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.nameTaken(c); err != nil {
		return nil, err
	}
	s.chains[id] = c.Clone()
	return c, nil
}

// nameTaken mirrors the unique name constraint of the SQL store.
// Callers hold s.mu.
func (s *Store) nameTaken(c *domain.Chain) error {
	for id, other := range s.chains {
		if id != c.ID && other.Name == c.Name {
			return &domain.OptionError{Field: "name", Reason: fmt.Sprintf("chain %q already exists", c.Name)}
		}
	}
	return nil
}

func (s *Store) DeleteChain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[id]; !ok {
		return &domain.NotFoundError{Kind: "chain", ID: id}
	}
	delete(s.chains, id)
	return nil
}

func (s *Store) CreateStager(ctx context.Context, st *domain.Stager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if _, exists := s.stagers[st.ID]; exists {
		return fmt.Errorf("stager %s already exists", st.ID)
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.stagers[st.ID] = cloneStager(st)
	return nil
}

func (s *Store) GetStager(ctx context.Context, id string) (*domain.Stager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stagers[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "stager", ID: id}
	}
	return cloneStager(st), nil
}

func (s *Store) ListStagers(ctx context.Context) ([]*domain.Stager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Stager, 0, len(s.stagers))
	for _, st := range s.stagers {
		result = append(result, cloneStager(st))
	}
	slices.SortFunc(result, func(a, b *domain.Stager) int {
		if d := a.CreatedAt.Compare(b.CreatedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) DeleteStager(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stagers[id]; !ok {
		return &domain.NotFoundError{Kind: "stager", ID: id}
	}
	delete(s.stagers, id)
	return nil
}

func (s *Store) CreateOperation(ctx context.Context, op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if _, exists := s.operations[op.ID]; exists {
		return fmt.Errorf("operation %s already exists", op.ID)
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	cp := *op
	cp.Current = false
	s.operations[op.ID] = &cp
	return nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "operation", ID: id}
	}
	cp := *op
	cp.Current = op.ID == s.current
	return &cp, nil
}

func (s *Store) ListOperations(ctx context.Context) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Operation, 0, len(s.operations))
	for _, op := range s.operations {
		cp := *op
		cp.Current = op.ID == s.current
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *domain.Operation) int {
		if d := a.CreatedAt.Compare(b.CreatedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CurrentOperation(ctx context.Context) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil, nil
	}
	op, ok := s.operations[s.current]
	if !ok {
		return nil, nil
	}
	cp := *op
	cp.Current = true
	return &cp, nil
}

func (s *Store) SetCurrentOperation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.operations[id]; !ok {
		return &domain.NotFoundError{Kind: "operation", ID: id}
	}
	s.current = id
	return nil
}

func (s *Store) AppendLogEntry(ctx context.Context, e *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *Store) ListLogEntries(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]*domain.LogEntry, 0, n)
	for i := len(s.logs) - 1; i >= 0 && len(result) < n; i-- {
		cp := *s.logs[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}

func cloneStager(st *domain.Stager) *domain.Stager {
	cp := *st
	cp.Options = maps.Clone(st.Options)
	if st.Operation != nil {
		op := *st.Operation
		cp.Operation = &op
	}
	return &cp
}

// Ensure Store implements storage.Provider
var _ storage.Provider = (*Store)(nil)
