package bypass

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

// ValidateAll checks raw against the schema and returns the normalized option
// mapping: defaults filled in, scalar inputs coerced to the declared types.
// module is the "category/name" reference used in error messages. raw is never
// modified. The first failing field is reported as a *domain.OptionError.
func (s Schema) ValidateAll(module string, raw map[string]any) (Options, error) {
	out := make(Options, len(s.Options))
	declared := make(map[string]struct{}, len(s.Options))

	for _, opt := range s.Options {
		declared[opt.Name] = struct{}{}

		v, present := raw[opt.Name]
		if !present || v == nil {
			if opt.Default == nil {
				if opt.Required {
					return nil, &domain.OptionError{Module: module, Field: opt.Name, Reason: "required"}
				}
				continue
			}
			v = opt.Default
		}

		coerced, err := opt.coerce(v)
		if err != nil {
			return nil, &domain.OptionError{Module: module, Field: opt.Name, Reason: err.Error()}
		}
		out[opt.Name] = coerced
	}

	for _, k := range sortedKeys(raw) {
		if _, ok := declared[k]; ok {
			continue
		}
		if !s.AllowExtra {
			return nil, &domain.OptionError{Module: module, Field: k, Reason: "unknown option"}
		}
		out[k] = raw[k]
	}

	return out, nil
}

// coerce converts v to the option's declared type where the conversion is
// unambiguous.
func (o Option) coerce(v any) (any, error) {
	switch o.Type {
	case TypeString, "":
		switch s := v.(type) {
		case string:
			return s, nil
		case bool, int, int64, float64:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)

	case TypeInt:
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		if (o.Min != nil && n < *o.Min) || (o.Max != nil && n > *o.Max) {
			return nil, fmt.Errorf("must be %s, got %d", o.rangeText(), n)
		}
		return n, nil

	case TypeBool:
		if s, ok := v.(string); ok {
			v = strings.ToLower(strings.TrimSpace(s))
		}
		b, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %v", v)
		}
		return b, nil

	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s, got %v", strings.Join(o.Choices, ", "), v)
		}
		s = strings.TrimSpace(s)
		if !slices.Contains(o.Choices, s) {
			return nil, fmt.Errorf("expected one of %s, got %q", strings.Join(o.Choices, ", "), s)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported option type %q", o.Type)
	}
}

func (o Option) rangeText() string {
	switch {
	case o.Min != nil && o.Max != nil:
		return fmt.Sprintf("between %d and %d", *o.Min, *o.Max)
	case o.Min != nil:
		return fmt.Sprintf("at least %d", *o.Min)
	default:
		return fmt.Sprintf("at most %d", *o.Max)
	}
}
