package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// appendModule appends its "suffix" option to the artifact content.
func appendModule(category, name string) bypass.Func {
	return bypass.Func{
		Desc: bypass.Descriptor{
			Category: category,
			Name:     name,
			Schema: bypass.Schema{Options: []bypass.Option{
				{Name: "suffix", Type: bypass.TypeString, Default: "+" + name},
			}},
		},
		Fn: func(_ context.Context, a *domain.Artifact, opts bypass.Options) (*domain.Artifact, error) {
			out := a.Clone()
			out.Content = append(out.Content, opts.String("suffix")...)
			return out, nil
		},
	}
}

func failingModule(category, name string) bypass.Func {
	return bypass.Func{
		Desc: bypass.Descriptor{Category: category, Name: name},
		Fn: func(context.Context, *domain.Artifact, bypass.Options) (*domain.Artifact, error) {
			return nil, errors.New("boom")
		},
	}
}

func nilModule(category, name string) bypass.Func {
	return bypass.Func{
		Desc: bypass.Descriptor{Category: category, Name: name},
		Fn: func(context.Context, *domain.Artifact, bypass.Options) (*domain.Artifact, error) {
			return nil, nil
		},
	}
}

func panicModule(category, name string) bypass.Func {
	return bypass.Func{
		Desc: bypass.Descriptor{Category: category, Name: name},
		Fn: func(context.Context, *domain.Artifact, bypass.Options) (*domain.Artifact, error) {
			panic("kaboom")
		},
	}
}

func testRegistry() *bypass.Registry {
	r := bypass.NewRegistry()
	r.MustRegister(appendModule("enc", "a"))
	r.MustRegister(appendModule("enc", "b"))
	r.MustRegister(failingModule("enc", "fail"))
	r.MustRegister(nilModule("enc", "nil"))
	r.MustRegister(panicModule("enc", "panic"))
	return r
}

type recordingObserver struct {
	steps []string
	runs  []string
}

func (o *recordingObserver) ObserveStep(category, name string, _ time.Duration, err error) {
	o.steps = append(o.steps, category+"/"+name+":"+outcome(err))
}

func (o *recordingObserver) ObserveRun(kind string, err error) {
	o.runs = append(o.runs, kind+":"+outcome(err))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func chainOf(steps ...domain.Step) *domain.Chain {
	return &domain.Chain{ID: "c1", Name: "test", Steps: steps}
}

func TestExecutor_Execute_Empty(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Resolver: testRegistry()})
	in := &domain.Artifact{Content: []byte("x")}

	out, err := e.Execute(context.Background(), chainOf(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in {
		t.Error("expected the input artifact when the chain is empty")
	}
}

func TestExecutor_Execute_Order(t *testing.T) {
	obs := &recordingObserver{}
	e := NewExecutor(ExecutorConfig{Resolver: testRegistry(), Observer: obs})

	c := chainOf(
		domain.Step{Category: "enc", Name: "b", Options: map[string]any{"suffix": "-2"}},
		domain.Step{Category: "enc", Name: "a", Options: map[string]any{"suffix": "-1"}},
	)
	out, err := e.Execute(context.Background(), c, &domain.Artifact{Content: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Content) != "x-2-1" {
		t.Errorf("content = %q, want x-2-1", out.Content)
	}
	if strings.Join(obs.steps, ",") != "enc/b:ok,enc/a:ok" {
		t.Errorf("observed steps = %v", obs.steps)
	}
	if strings.Join(obs.runs, ",") != "chain:ok" {
		t.Errorf("observed runs = %v", obs.runs)
	}
}

func TestExecutor_Execute_StoredOptionsNotRevalidated(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Resolver: testRegistry()})

	// An option the current schema would reject still reaches the module.
	c := chainOf(domain.Step{Category: "enc", Name: "a", Options: map[string]any{"suffix": "!", "legacy": 1}})
	out, err := e.Execute(context.Background(), c, &domain.Artifact{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Content) != "!" {
		t.Errorf("content = %q", out.Content)
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name     string
		failing  domain.Step
		wantKind error
	}{
		{"module error", domain.Step{Category: "enc", Name: "fail"}, domain.ErrBypassExecution},
		{"nil artifact", domain.Step{Category: "enc", Name: "nil"}, domain.ErrBypassExecution},
		{"panic", domain.Step{Category: "enc", Name: "panic"}, domain.ErrBypassExecution},
		{"module removed", domain.Step{Category: "net", Name: "unknownmod"}, domain.ErrModuleNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			e := NewExecutor(ExecutorConfig{Resolver: testRegistry(), Observer: obs})
			c := chainOf(
				domain.Step{Category: "enc", Name: "a"},
				tt.failing,
				domain.Step{Category: "enc", Name: "b"},
			)

			out, err := e.Execute(context.Background(), c, &domain.Artifact{})
			if out != nil {
				t.Error("expected no partial artifact")
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
			var se *domain.StepError
			if !errors.As(err, &se) {
				t.Fatalf("expected *domain.StepError, got %T", err)
			}
			if se.ChainID != "c1" || se.Position != 2 || se.Category != tt.failing.Category || se.Name != tt.failing.Name {
				t.Errorf("step error = %+v", se)
			}
			if len(obs.steps) != 2 {
				t.Errorf("expected execution to stop after step 2, observed %v", obs.steps)
			}
			if strings.Join(obs.runs, ",") != "chain:error" {
				t.Errorf("observed runs = %v", obs.runs)
			}
		})
	}
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Resolver: testRegistry()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, chainOf(domain.Step{Category: "enc", Name: "a"}), &domain.Artifact{})
	if !errors.Is(err, domain.ErrBypassExecution) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation wrapped as execution failure, got %v", err)
	}
}

func TestExecutor_ExecuteOne(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Resolver: testRegistry()})

	out, err := e.ExecuteOne(context.Background(), "enc", "a", nil, &domain.Artifact{Content: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Content) != "x+a" {
		t.Errorf("content = %q, want default suffix applied", out.Content)
	}

	if _, err := e.ExecuteOne(context.Background(), "enc", "a", map[string]any{"bogus": 1}, &domain.Artifact{}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	if _, err := e.ExecuteOne(context.Background(), "enc", "zzz", nil, &domain.Artifact{}); !errors.Is(err, domain.ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}
	_, err = e.ExecuteOne(context.Background(), "enc", "fail", nil, &domain.Artifact{})
	if !errors.Is(err, domain.ErrBypassExecution) || !strings.Contains(err.Error(), "enc/fail") {
		t.Errorf("expected execution failure naming enc/fail, got %v", err)
	}
}

func TestExecutor_UsesCatalogSnapshot(t *testing.T) {
	reg := testRegistry()
	cat := bypass.NewCatalog(reg)
	e := NewExecutor(ExecutorConfig{Resolver: cat})

	cat.Swap(reg.Without([]string{"enc/a"}))
	_, err := e.Execute(context.Background(), chainOf(domain.Step{Category: "enc", Name: "a"}), &domain.Artifact{})
	if !errors.Is(err, domain.ErrModuleNotFound) {
		t.Errorf("expected disabled module to be unresolvable, got %v", err)
	}
}
