// Package bypass provides the registry of bypass modules and the option
// schemas used to bind a module into a chain step.
//
// # Adding a Module
//
// Bundled modules are registered once at start-up by package builtin:
//
//	r.MustRegister(bypass.Func{
//	    Desc: bypass.Descriptor{
//	        Category: "encoding",
//	        Name:     "hex",
//	        Schema:   bypass.Schema{Options: []bypass.Option{...}},
//	    },
//	    Fn: encodeHex,
//	})
//
// A Registry is never mutated after it has been handed to a Catalog; reloads
// build a new Registry and swap it in atomically.
package bypass

import (
	"context"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// Descriptor is the presentable description of a module.
type Descriptor struct {
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Authors     []string `json:"authors,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Schema      Schema   `json:"options"`
}

// Ref returns "category/name".
func (d Descriptor) Ref() string {
	return d.Category + "/" + d.Name
}

// Module is a pluggable transformation of a payload artifact.
type Module interface {
	// Describe returns the module's identity and option schema.
	Describe() Descriptor
	// Transform maps an artifact and validated options to a new artifact.
	// Implementations must not modify the input artifact.
	Transform(ctx context.Context, a *domain.Artifact, opts Options) (*domain.Artifact, error)
}

// TransformFunc is the signature of a stateless module transformation.
type TransformFunc func(ctx context.Context, a *domain.Artifact, opts Options) (*domain.Artifact, error)

// Func adapts a descriptor and a TransformFunc into a Module.
type Func struct {
	Desc Descriptor
	Fn   TransformFunc
}

func (f Func) Describe() Descriptor { return f.Desc }

func (f Func) Transform(ctx context.Context, a *domain.Artifact, opts Options) (*domain.Artifact, error) {
	return f.Fn(ctx, a, opts)
}
