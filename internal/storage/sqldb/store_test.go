package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/storage"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	store, err := NewSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestSQLDBStore_ChainRoundTrip(t *testing.T) {
	store := newTestStore(t, "memdb1")
	ctx := context.Background()

	c := &domain.Chain{
		Name:        "evasive",
		Description: "hex then gzip",
		Operation:   strPtr("op1"),
		Steps: []domain.Step{
			{Category: "encoding", Name: "hex", Options: map[string]any{"uppercase": true}},
			{Category: "compression", Name: "gzip", Options: map[string]any{"level": 9, "armor": "base64"}},
		},
	}
	if err := store.CreateChain(ctx, c); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}

	got, err := store.GetChain(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChain() error = %v", err)
	}
	if got.Name != "evasive" || got.Description != "hex then gzip" {
		t.Errorf("chain = %+v", got)
	}
	if got.Operation == nil || *got.Operation != "op1" {
		t.Errorf("Operation = %v, want op1", got.Operation)
	}
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	if got.Steps[1].Ref() != "compression/gzip" {
		t.Errorf("step 2 = %s", got.Steps[1].Ref())
	}
	if got.Steps[1].Options["level"] != json.Number("9") {
		t.Errorf("level = %#v, want json.Number 9", got.Steps[1].Options["level"])
	}
	if got.Steps[0].Options["uppercase"] != true {
		t.Errorf("uppercase = %#v", got.Steps[0].Options["uppercase"])
	}
}

func TestSQLDBStore_UpdateChain(t *testing.T) {
	store := newTestStore(t, "memdb2")
	ctx := context.Background()

	c := &domain.Chain{Name: "one", Steps: []domain.Step{{Category: "encoding", Name: "hex"}}}
	if err := store.CreateChain(ctx, c); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}

	c.Name = "renamed"
	c.Operation = nil
	c.Clear()
	c.UpdatedAt = time.Now().UTC()
	if err := store.UpdateChain(ctx, c); err != nil {
		t.Fatalf("UpdateChain() error = %v", err)
	}

	got, err := store.GetChainByName(ctx, "renamed")
	if err != nil {
		t.Fatalf("GetChainByName() error = %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("Len() = %d, want 0", got.Len())
	}

	missing := &domain.Chain{ID: "nope", Name: "x"}
	if err := store.UpdateChain(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateChain(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_DeleteChain(t *testing.T) {
	store := newTestStore(t, "memdb3")
	ctx := context.Background()

	c := &domain.Chain{Name: "doomed"}
	if err := store.CreateChain(ctx, c); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}
	if err := store.DeleteChain(ctx, c.ID); err != nil {
		t.Fatalf("DeleteChain() error = %v", err)
	}
	if _, err := store.GetChain(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetChain() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteChain(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteChain() twice error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_ListChainsByOperation(t *testing.T) {
	store := newTestStore(t, "memdb4")
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, c := range []*domain.Chain{
		{ID: "a-global", Name: "global"},
		{ID: "b-op1", Name: "first", Operation: strPtr("op1")},
		{ID: "c-op2", Name: "second", Operation: strPtr("op2")},
	} {
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateChain(ctx, c); err != nil {
			t.Fatalf("CreateChain() error = %v", err)
		}
	}

	all, err := store.ListChains(ctx, storage.ChainListOptions{})
	if err != nil {
		t.Fatalf("ListChains() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListChains() returned %d, want 3", len(all))
	}

	scoped, err := store.ListChains(ctx, storage.ChainListOptions{Operation: "op1"})
	if err != nil {
		t.Fatalf("ListChains(op1) error = %v", err)
	}
	if len(scoped) != 2 || scoped[0].ID != "a-global" || scoped[1].ID != "b-op1" {
		t.Errorf("ListChains(op1) = %v", scoped)
	}
}

func TestSQLDBStore_Stagers(t *testing.T) {
	store := newTestStore(t, "memdb5")
	ctx := context.Background()

	st := &domain.Stager{
		Name:     "ps",
		Format:   "ps1",
		Compiled: true,
		Template: "{{ .Name }}",
		Options:  map[string]any{"sleep": 5},
	}
	if err := store.CreateStager(ctx, st); err != nil {
		t.Fatalf("CreateStager() error = %v", err)
	}

	got, err := store.GetStager(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetStager() error = %v", err)
	}
	if !got.Compiled || got.Format != "ps1" || got.Template != "{{ .Name }}" {
		t.Errorf("stager = %+v", got)
	}
	if got.Options["sleep"] != json.Number("5") {
		t.Errorf("sleep = %#v", got.Options["sleep"])
	}

	list, err := store.ListStagers(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("ListStagers() = %v, %v", list, err)
	}
	if err := store.DeleteStager(ctx, st.ID); err != nil {
		t.Fatalf("DeleteStager() error = %v", err)
	}
	if _, err := store.GetStager(ctx, st.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetStager() error = %v, want ErrNotFound", err)
	}
}

func TestSQLDBStore_CurrentOperation(t *testing.T) {
	store := newTestStore(t, "memdb6")
	ctx := context.Background()

	cur, err := store.CurrentOperation(ctx)
	if err != nil || cur != nil {
		t.Fatalf("CurrentOperation() = %v, %v; want nil, nil", cur, err)
	}

	first := &domain.Operation{Name: "first"}
	second := &domain.Operation{Name: "second"}
	for _, op := range []*domain.Operation{first, second} {
		if err := store.CreateOperation(ctx, op); err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
	}

	if err := store.SetCurrentOperation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetCurrentOperation(missing) error = %v, want ErrNotFound", err)
	}
	if err := store.SetCurrentOperation(ctx, first.ID); err != nil {
		t.Fatalf("SetCurrentOperation() error = %v", err)
	}
	// The second call exercises the upsert path.
	if err := store.SetCurrentOperation(ctx, second.ID); err != nil {
		t.Fatalf("SetCurrentOperation() error = %v", err)
	}

	cur, err = store.CurrentOperation(ctx)
	if err != nil {
		t.Fatalf("CurrentOperation() error = %v", err)
	}
	if cur == nil || cur.ID != second.ID || !cur.Current {
		t.Errorf("CurrentOperation() = %+v, want %s", cur, second.ID)
	}

	ops, err := store.ListOperations(ctx)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ListOperations() returned %d", len(ops))
	}
	for _, op := range ops {
		if op.Current != (op.ID == second.ID) {
			t.Errorf("operation %s Current = %v", op.Name, op.Current)
		}
	}
}

func TestSQLDBStore_LogEntries(t *testing.T) {
	store := newTestStore(t, "memdb7")
	ctx := context.Background()

	for _, d := range []string{"first", "second", "third"} {
		e := &domain.LogEntry{Status: domain.StatusSuccess, Endpoint: "bypasses", Description: d, Actor: "alice"}
		if err := store.AppendLogEntry(ctx, e); err != nil {
			t.Fatalf("AppendLogEntry() error = %v", err)
		}
	}

	entries, err := store.ListLogEntries(ctx, 2)
	if err != nil {
		t.Fatalf("ListLogEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListLogEntries(2) returned %d", len(entries))
	}
	if entries[0].Description != "third" || entries[1].Description != "second" {
		t.Errorf("unexpected order: %s, %s", entries[0].Description, entries[1].Description)
	}
	if entries[0].Status != domain.StatusSuccess || entries[0].Actor != "alice" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestSQLDBStore_DuplicateChainName(t *testing.T) {
	store := newTestStore(t, "memdb_dupname")
	ctx := context.Background()

	if err := store.CreateChain(ctx, &domain.Chain{Name: "taken"}); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}
	err := store.CreateChain(ctx, &domain.Chain{Name: "taken"})
	var optErr *domain.OptionError
	if !errors.As(err, &optErr) || optErr.Field != "name" {
		t.Fatalf("CreateChain() duplicate error = %v, want name OptionError", err)
	}
	if domain.Classify(err) != domain.ClassCaller {
		t.Errorf("Classify() = %v, want caller", domain.Classify(err))
	}

	other := &domain.Chain{Name: "other"}
	if err := store.CreateChain(ctx, other); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}
	other.Name = "taken"
	if err := store.UpdateChain(ctx, other); !errors.As(err, &optErr) {
		t.Errorf("UpdateChain() rename error = %v, want name OptionError", err)
	}
}

func TestSQLDBStore_GetOperation(t *testing.T) {
	store := newTestStore(t, "memdb_getop")
	ctx := context.Background()

	op := &domain.Operation{Name: "red"}
	if err := store.CreateOperation(ctx, op); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if _, err := store.GetOperation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOperation(missing) error = %v, want ErrNotFound", err)
	}
	if err := store.SetCurrentOperation(ctx, op.ID); err != nil {
		t.Fatalf("SetCurrentOperation() error = %v", err)
	}
	got, err := store.GetOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if got.Name != "red" || !got.Current {
		t.Errorf("GetOperation() = %+v", got)
	}
}

func TestSQLDBStore_UpdateChainFunc(t *testing.T) {
	store := newTestStore(t, "memdb_updatefunc")
	ctx := context.Background()

	c := &domain.Chain{Name: "one", Steps: []domain.Step{{Category: "encoding", Name: "hex"}}}
	if err := store.CreateChain(ctx, c); err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}

	if _, err := store.UpdateChainFunc(ctx, "missing", func(*domain.Chain) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateChainFunc(missing) error = %v, want ErrNotFound", err)
	}

	boom := errors.New("boom")
	_, err := store.UpdateChainFunc(ctx, c.ID, func(c *domain.Chain) error {
		c.Steps = nil
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("UpdateChainFunc() error = %v, want callback error", err)
	}
	if got, _ := store.GetChain(ctx, c.ID); len(got.Steps) != 1 {
		t.Errorf("failed callback left %d steps", len(got.Steps))
	}

	got, err := store.UpdateChainFunc(ctx, c.ID, func(c *domain.Chain) error {
		c.ID = "ignored"
		c.Steps = append(c.Steps, domain.Step{Category: "encoding", Name: "base64"})
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateChainFunc() error = %v", err)
	}
	if got.ID != c.ID || len(got.Steps) != 2 {
		t.Errorf("UpdateChainFunc() = %+v", got)
	}
	stored, _ := store.GetChain(ctx, c.ID)
	if len(stored.Steps) != 2 || stored.Steps[1].Name != "base64" {
		t.Errorf("stored steps = %+v", stored.Steps)
	}
}
