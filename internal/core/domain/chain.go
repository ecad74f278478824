package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Step is one bound module invocation inside a chain. It has no identity of
// its own: it is addressed by its 1-based position in Chain.Steps.
type Step struct {
	Category string         `json:"category"`
	Name     string         `json:"name"`
	Options  map[string]any `json:"options"`
}

// Ref returns the "category/name" reference of the step's module.
func (s Step) Ref() string {
	return s.Category + "/" + s.Name
}

// Chain is an ordered, mutable sequence of steps scoped to an operation.
// A nil Operation makes the chain global.
type Chain struct {
	ID          string
	Name        string
	Description string
	Operation   *string
	Steps       []Step
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OptionBinder resolves a module and validates raw options against its schema.
// It fails with a *ModuleNotFoundError or an *OptionError.
type OptionBinder interface {
	Bind(category, name string, raw map[string]any) (map[string]any, error)
}

// StepRequest is the unvalidated form of a step, as received from callers.
type StepRequest struct {
	Category string         `json:"category" yaml:"category"`
	Name     string         `json:"name" yaml:"name"`
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// ChainRequest is the body of a chain construction request.
type ChainRequest struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Operation   *string       `json:"operation,omitempty" yaml:"operation,omitempty"`
	Bypasses    []StepRequest `json:"bypasses,omitempty" yaml:"bypasses,omitempty"`
}

// Position is a caller-facing, 1-based step position.
type Position int

// index converts p to a 0-based slice index over a sequence of length n.
// This is the only place positions are translated.
func (p Position) index(n int) (int, error) {
	if p < 1 || int(p) > n {
		return 0, &RangeError{Position: int(p), Len: n}
	}
	return int(p) - 1, nil
}

// NewChain builds a chain from a request, binding every initial step.
// Either every step binds or no chain is returned.
func NewChain(b OptionBinder, req ChainRequest) (*Chain, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &OptionError{Field: "name", Reason: "required"}
	}
	c := &Chain{
		Name:        name,
		Description: req.Description,
		Operation:   normalizeOperation(req.Operation),
	}
	for i, s := range req.Bypasses {
		if _, err := c.AddBypass(b, s.Category, s.Name, s.Options); err != nil {
			return nil, fmt.Errorf("bypass %d: %w", i+1, err)
		}
	}
	return c, nil
}

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.Steps) }

// Step returns the step at a 1-based position.
func (c *Chain) Step(pos int) (Step, error) {
	i, err := Position(pos).index(len(c.Steps))
	if err != nil {
		return Step{}, err
	}
	return c.Steps[i], nil
}

// AddBypass binds options for the module and appends a step at the end.
// It returns the new step's 1-based position. On error the chain is unchanged.
func (c *Chain) AddBypass(b OptionBinder, category, name string, raw map[string]any) (int, error) {
	opts, err := b.Bind(category, name, raw)
	if err != nil {
		return 0, err
	}
	c.Steps = append(c.Steps, Step{Category: category, Name: name, Options: opts})
	return len(c.Steps), nil
}

// RemoveBypass deletes the step at pos; later steps shift down by one.
func (c *Chain) RemoveBypass(pos int) error {
	i, err := Position(pos).index(len(c.Steps))
	if err != nil {
		return err
	}
	c.Steps = slices.Delete(c.Steps, i, i+1)
	return nil
}

// MoveBypass extracts the step at from and reinserts it so that it ends up at
// position to. Both positions are validated against the current length; to is
// applied to the sequence as it exists after the extraction.
func (c *Chain) MoveBypass(from, to int) error {
	n := len(c.Steps)
	src, err := Position(from).index(n)
	if err != nil {
		return err
	}
	dst, err := Position(to).index(n)
	if err != nil {
		return err
	}
	step := c.Steps[src]
	c.Steps = slices.Delete(c.Steps, src, src+1)
	c.Steps = slices.Insert(c.Steps, dst, step)
	return nil
}

// Clear removes every step.
func (c *Chain) Clear() {
	c.Steps = nil
}

// Edit applies a partial update of chain-level fields. Recognised keys are
// "name", "description" and "operation" (null or "" makes the chain global).
// The step sequence is never touched. On error nothing is applied.
func (c *Chain) Edit(patch map[string]any) error {
	next := *c
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := patch[k]
		switch k {
		case "name":
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return &OptionError{Field: k, Reason: "must be a non-empty string"}
			}
			next.Name = strings.TrimSpace(s)
		case "description":
			s, ok := v.(string)
			if !ok && v != nil {
				return &OptionError{Field: k, Reason: "must be a string"}
			}
			next.Description = s
		case "operation":
			switch op := v.(type) {
			case nil:
				next.Operation = nil
			case string:
				next.Operation = normalizeOperation(&op)
			default:
				return &OptionError{Field: k, Reason: "must be a string or null"}
			}
		default:
			return &OptionError{Field: k, Reason: "unknown field"}
		}
	}
	*c = next
	return nil
}

// VisibleIn reports whether the chain is visible from the given operation.
// Global chains are visible everywhere.
func (c *Chain) VisibleIn(operationID string) bool {
	return c.Operation == nil || *c.Operation == operationID
}

// Clone returns an independent copy, including each step's option map.
func (c *Chain) Clone() *Chain {
	if c == nil {
		return nil
	}
	out := *c
	if c.Operation != nil {
		op := *c.Operation
		out.Operation = &op
	}
	if c.Steps != nil {
		out.Steps = make([]Step, len(c.Steps))
		for i, s := range c.Steps {
			s.Options = maps.Clone(s.Options)
			out.Steps[i] = s
		}
	}
	return &out
}

func normalizeOperation(op *string) *string {
	if op == nil {
		return nil
	}
	v := strings.TrimSpace(*op)
	if v == "" {
		return nil
	}
	return &v
}
