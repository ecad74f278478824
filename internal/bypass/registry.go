package bypass

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// Registry indexes modules by category and name.
//
// A Registry is populated during start-up and treated as immutable once it
// is shared; concurrent readers need no synchronization. Register must not
// be called after that point.
type Registry struct {
	modules map[string]map[string]Module
}

// Ensure Registry can bind options for chains.
var _ domain.OptionBinder = (*Registry)(nil)

// reservedCategories collide with fixed segments of the HTTP API.
var reservedCategories = []string{"chains", "run"}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]Module)}
}

// Register adds a module under its descriptor's category and name.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return fmt.Errorf("bypass: nil module")
	}
	d := m.Describe()
	if d.Category == "" || d.Name == "" {
		return fmt.Errorf("bypass: category and name required (got %q/%q)", d.Category, d.Name)
	}
	if strings.Contains(d.Category, "/") || strings.Contains(d.Name, "/") {
		return fmt.Errorf("bypass: %s: category and name must not contain '/'", d.Ref())
	}
	if slices.Contains(reservedCategories, d.Category) {
		return fmt.Errorf("bypass: %s: category %q is reserved", d.Ref(), d.Category)
	}
	byName, ok := r.modules[d.Category]
	if !ok {
		byName = make(map[string]Module)
		r.modules[d.Category] = byName
	}
	if _, dup := byName[d.Name]; dup {
		return fmt.Errorf("bypass: %s already registered", d.Ref())
	}
	byName[d.Name] = m
	return nil
}

// MustRegister is Register for start-up code; it panics on error.
func (r *Registry) MustRegister(m Module) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Resolve returns the module registered under (category, name).
func (r *Registry) Resolve(category, name string) (Module, error) {
	if m, ok := r.modules[category][name]; ok {
		return m, nil
	}
	return nil, &domain.ModuleNotFoundError{Category: category, Name: name}
}

// Describe returns the descriptor of a registered module.
func (r *Registry) Describe(category, name string) (Descriptor, error) {
	m, err := r.Resolve(category, name)
	if err != nil {
		return Descriptor{}, err
	}
	return describe(m)
}

// Bind resolves the module and validates raw options against its schema.
func (r *Registry) Bind(category, name string, raw map[string]any) (map[string]any, error) {
	d, err := r.Describe(category, name)
	if err != nil {
		return nil, err
	}
	return d.Schema.ValidateAll(d.Ref(), raw)
}

// Categories returns the registered categories in sorted order.
func (r *Registry) Categories() []string {
	return sortedKeys(r.modules)
}

// List returns module names per category, sorted. An empty category lists
// everything; an unknown category yields an empty map.
func (r *Registry) List(category string) map[string][]string {
	out := make(map[string][]string)
	for cat, byName := range r.modules {
		if category != "" && cat != category {
			continue
		}
		out[cat] = sortedKeys(byName)
	}
	return out
}

// ListFull is List with every descriptor materialized. Modules whose
// descriptor cannot be produced are skipped rather than failing the listing.
func (r *Registry) ListFull(category string) map[string][]Descriptor {
	out := make(map[string][]Descriptor)
	for cat, names := range r.List(category) {
		descs := make([]Descriptor, 0, len(names))
		for _, name := range names {
			d, err := r.Describe(cat, name)
			if err != nil {
				continue
			}
			descs = append(descs, d)
		}
		out[cat] = descs
	}
	return out
}

// Has reports whether a "category/name" reference is registered.
func (r *Registry) Has(ref string) bool {
	category, name, ok := strings.Cut(ref, "/")
	if !ok {
		return false
	}
	_, found := r.modules[category][name]
	return found
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	n := 0
	for _, byName := range r.modules {
		n += len(byName)
	}
	return n
}

// Without returns a new registry containing every module except those whose
// "category/name" reference is listed. Unknown references are ignored.
func (r *Registry) Without(refs []string) *Registry {
	skip := make(map[string]bool, len(refs))
	for _, ref := range refs {
		skip[ref] = true
	}
	out := NewRegistry()
	for cat, byName := range r.modules {
		for name, m := range byName {
			if skip[cat+"/"+name] {
				continue
			}
			if _, ok := out.modules[cat]; !ok {
				out.modules[cat] = make(map[string]Module)
			}
			out.modules[cat][name] = m
		}
	}
	return out
}

// describe guards against modules whose Describe panics.
func describe(m Module) (d Descriptor, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("bypass: describe failed: %v", p)
		}
	}()
	return m.Describe(), nil
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
