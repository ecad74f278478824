package bypass

import (
	"sync/atomic"
)

// Catalog is the process-wide handle on the current Registry. Readers load a
// snapshot without locking; Swap replaces the whole registry at once, so a
// reader never observes a partially rebuilt index.
type Catalog struct {
	current atomic.Pointer[Registry]
}

// NewCatalog publishes r as the initial snapshot.
func NewCatalog(r *Registry) *Catalog {
	c := &Catalog{}
	c.current.Store(r)
	return c
}

// Snapshot returns the registry in effect at the time of the call.
func (c *Catalog) Snapshot() *Registry {
	return c.current.Load()
}

// Swap publishes r and returns the previous registry.
func (c *Catalog) Swap(r *Registry) *Registry {
	return c.current.Swap(r)
}

func (c *Catalog) Resolve(category, name string) (Module, error) {
	return c.Snapshot().Resolve(category, name)
}

func (c *Catalog) Describe(category, name string) (Descriptor, error) {
	return c.Snapshot().Describe(category, name)
}

func (c *Catalog) Bind(category, name string, raw map[string]any) (map[string]any, error) {
	return c.Snapshot().Bind(category, name, raw)
}

func (c *Catalog) List(category string) map[string][]string {
	return c.Snapshot().List(category)
}

func (c *Catalog) ListFull(category string) map[string][]Descriptor {
	return c.Snapshot().ListFull(category)
}

func (c *Catalog) Categories() []string {
	return c.Snapshot().Categories()
}
