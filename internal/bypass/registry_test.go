package bypass

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

func identity(_ context.Context, a *domain.Artifact, _ Options) (*domain.Artifact, error) {
	return a.Clone(), nil
}

func newTestModule(category, name string, opts ...Option) Func {
	return Func{
		Desc: Descriptor{Category: category, Name: name, Description: name + " module", Schema: Schema{Options: opts}},
		Fn:   identity,
	}
}

type panickyModule struct{}

func (panickyModule) Describe() Descriptor { panic("broken descriptor") }
func (panickyModule) Transform(context.Context, *domain.Artifact, Options) (*domain.Artifact, error) {
	return nil, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, m := range []Module{
		newTestModule("encoding", "hex"),
		newTestModule("encoding", "base64"),
		newTestModule("compression", "gzip", Option{Name: "level", Type: TypeInt, Default: 6}),
	} {
		if err := r.Register(m); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}
	return r
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name string
		m    Module
		want string
	}{
		{"nil", nil, "nil module"},
		{"empty category", newTestModule("", "x"), "required"},
		{"empty name", newTestModule("x", ""), "required"},
		{"slash", newTestModule("a/b", "x"), "must not contain"},
		{"duplicate", newTestModule("encoding", "hex"), "already registered"},
		{"reserved category", newTestModule("chains", "x"), "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.m)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Register() error = %v, want containing %q", err, tt.want)
			}
		})
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	r.MustRegister(newTestModule("encoding", "hex"))
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry(t)

	m, err := r.Resolve("encoding", "hex")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if m.Describe().Name != "hex" {
		t.Errorf("resolved %q, want hex", m.Describe().Name)
	}

	_, err = r.Resolve("encoding", "rot13")
	var nf *domain.ModuleNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *domain.ModuleNotFoundError, got %v", err)
	}
	if nf.Category != "encoding" || nf.Name != "rot13" {
		t.Errorf("unexpected error fields: %+v", nf)
	}
	if _, err := r.Resolve("net", "hex"); !errors.Is(err, domain.ErrModuleNotFound) {
		t.Errorf("unknown category: expected ErrModuleNotFound, got %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := newTestRegistry(t)

	all := r.List("")
	if len(all) != 2 {
		t.Fatalf("expected 2 categories, got %v", all)
	}
	if got := strings.Join(all["encoding"], ","); got != "base64,hex" {
		t.Errorf("encoding = %q, want sorted base64,hex", got)
	}

	one := r.List("compression")
	if len(one) != 1 || len(one["compression"]) != 1 {
		t.Errorf("List(compression) = %v", one)
	}
	if got := r.List("missing"); len(got) != 0 {
		t.Errorf("List(missing) = %v, want empty", got)
	}
}

func TestRegistry_ListFullSkipsBrokenDescriptors(t *testing.T) {
	r := newTestRegistry(t)
	// Bypass Register, which would itself call Describe.
	r.modules["encoding"]["broken"] = panickyModule{}

	full := r.ListFull("encoding")
	if len(full["encoding"]) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(full["encoding"]))
	}
	for _, d := range full["encoding"] {
		if d.Name == "broken" {
			t.Error("broken module should be skipped")
		}
	}
	if names := r.List("encoding")["encoding"]; len(names) != 3 {
		t.Errorf("shallow listing should still include all names, got %v", names)
	}
}

func TestRegistry_Bind(t *testing.T) {
	r := newTestRegistry(t)

	opts, err := r.Bind("compression", "gzip", nil)
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if opts["level"] != 6 {
		t.Errorf("level = %v, want default 6", opts["level"])
	}

	if _, err := r.Bind("compression", "gzip", map[string]any{"level": "x"}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	if _, err := r.Bind("compression", "brotli", nil); !errors.Is(err, domain.ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestRegistry_Without(t *testing.T) {
	r := newTestRegistry(t)
	trimmed := r.Without([]string{"encoding/hex", "net/unknown"})

	if trimmed.Len() != 2 {
		t.Errorf("Len() = %d, want 2", trimmed.Len())
	}
	if _, err := trimmed.Resolve("encoding", "hex"); err == nil {
		t.Error("disabled module should not resolve")
	}
	if _, err := r.Resolve("encoding", "hex"); err != nil {
		t.Error("original registry must be unchanged")
	}
}

func TestRegistry_Has(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		ref  string
		want bool
	}{
		{"encoding/hex", true},
		{"compression/gzip", true},
		{"encoding/nope", false},
		{"encoding", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := r.Has(tt.ref); got != tt.want {
			t.Errorf("Has(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
