// Package domain provides the core types of the bypass pipeline: payload
// artifacts, chains and their steps, persisted records and the error taxonomy.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every typed error below unwraps to exactly one of them,
// so callers can branch with errors.Is without knowing the concrete type.
var (
	ErrModuleNotFound  = errors.New("bypass not found")
	ErrInvalidOption   = errors.New("invalid option")
	ErrOutOfRange      = errors.New("position out of range")
	ErrBypassExecution = errors.New("bypass execution failed")
	ErrGeneration      = errors.New("payload generation failed")
	ErrNotFound        = errors.New("not found")
)

// ModuleNotFoundError is returned when a (category, name) pair does not
// resolve in the module registry.
type ModuleNotFoundError struct {
	Category string
	Name     string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("bypass %s/%s not found", e.Category, e.Name)
}

func (e *ModuleNotFoundError) Unwrap() error { return ErrModuleNotFound }

// OptionError reports a single field that failed schema validation.
type OptionError struct {
	// Module is "category/name" when the field belongs to a module schema,
	// empty for chain-level fields.
	Module string
	Field  string
	Reason string
}

func (e *OptionError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("invalid option %q for %s: %s", e.Field, e.Module, e.Reason)
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

func (e *OptionError) Unwrap() error { return ErrInvalidOption }

// RangeError is returned by structural chain mutations addressed at a
// position that does not exist. Position is always the caller's 1-based value.
type RangeError struct {
	Position int
	Len      int
}

func (e *RangeError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("position %d out of range: chain is empty", e.Position)
	}
	return fmt.Sprintf("position %d out of range: valid positions are 1..%d", e.Position, e.Len)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// StepError identifies the chain step at which an execution aborted.
// Err is either a *ModuleNotFoundError or an error wrapping ErrBypassExecution.
type StepError struct {
	ChainID  string
	Position int
	Category string
	Name     string
	Err      error
}

func (e *StepError) Error() string {
	if e.ChainID != "" {
		return fmt.Sprintf("chain %s step %d (%s/%s): %v", e.ChainID, e.Position, e.Category, e.Name, e.Err)
	}
	return fmt.Sprintf("step %d (%s/%s): %v", e.Position, e.Category, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExecutionFailure wraps a module's own error so that it matches ErrBypassExecution
// while keeping the original cause reachable.
func ExecutionFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrBypassExecution, err)
}

// GenerationError is returned when a stager cannot produce an artifact.
type GenerationError struct {
	StagerID string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("stager %s: %v: %v", e.StagerID, ErrGeneration, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// NotFoundError is returned by the persistence boundary for unknown ids.
type NotFoundError struct {
	Kind string // "chain", "stager", "operation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Class partitions errors by who is at fault.
type Class string

const (
	// ClassCaller covers bad references, bad options, bad positions and unknown ids.
	ClassCaller Class = "caller"
	// ClassExecution covers module and stager failures.
	ClassExecution Class = "execution"
	// ClassInternal is everything else (storage failures, bugs).
	ClassInternal Class = "internal"
)

// Classify returns the class of err. Execution-time failures win over caller
// errors so that a step that failed inside a module is never reported as the
// caller's fault.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBypassExecution), errors.Is(err, ErrGeneration):
		return ClassExecution
	case errors.Is(err, ErrModuleNotFound), errors.Is(err, ErrInvalidOption),
		errors.Is(err, ErrOutOfRange), errors.Is(err, ErrNotFound):
		return ClassCaller
	default:
		return ClassInternal
	}
}
