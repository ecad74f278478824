package stager

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

func TestGenerator_RendersTemplate(t *testing.T) {
	g := NewGenerator()
	op := "op1"
	st := &domain.Stager{
		ID:        "s1",
		Name:      "http stager",
		Format:    "ps1",
		Template:  `$u = "{{ .Options.url }}"; # {{ .Operation }} {{ upper .Format }}`,
		Options:   map[string]any{"url": "http://10.0.0.1"},
		Operation: &op,
	}

	a, err := g.Generate(context.Background(), st)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got, want := string(a.Content), `$u = "http://10.0.0.1"; # op1 PS1`; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
	if a.Name != "http_stager.ps1" {
		t.Errorf("name = %q", a.Name)
	}
	if a.Compiled {
		t.Error("expected text artifact")
	}
	if a.Metadata["stager"] != "s1" {
		t.Errorf("metadata = %v", a.Metadata)
	}
}

func TestGenerator_Compiled(t *testing.T) {
	g := NewGenerator()
	bin := []byte{0x4d, 0x5a, 0x00, 0xff}
	st := &domain.Stager{
		ID:       "s2",
		Name:     "loader",
		Format:   "exe",
		Compiled: true,
		Template: base64.StdEncoding.EncodeToString(bin) + "\n",
	}

	a, err := g.Generate(context.Background(), st)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !a.Compiled || string(a.Content) != string(bin) {
		t.Errorf("artifact = %+v", a)
	}
}

func TestGenerator_Errors(t *testing.T) {
	g := NewGenerator()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		st   *domain.Stager
	}{
		{"empty template", context.Background(), &domain.Stager{ID: "a", Template: "  "}},
		{"parse error", context.Background(), &domain.Stager{ID: "b", Template: "{{ .Name "}},
		{"missing option", context.Background(), &domain.Stager{ID: "c", Template: "{{ .Options.nope }}"}},
		{"compiled not base64", context.Background(), &domain.Stager{ID: "d", Compiled: true, Template: "not base64!"}},
		{"cancelled", cancelled, &domain.Stager{ID: "e", Template: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(tt.ctx, tt.st)
			if !errors.Is(err, domain.ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
			var ge *domain.GenerationError
			if !errors.As(err, &ge) || ge.StagerID != tt.st.ID {
				t.Errorf("expected GenerationError for %s, got %v", tt.st.ID, err)
			}
			if domain.Classify(err) != domain.ClassExecution {
				t.Errorf("Classify() = %v", domain.Classify(err))
			}
		})
	}
}
