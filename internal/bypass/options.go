package bypass

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// OptionType is the declared type of a module option.
type OptionType string

const (
	TypeString OptionType = "string"
	TypeInt    OptionType = "int"
	TypeBool   OptionType = "bool"
	TypeEnum   OptionType = "enum"
)

// Option declares one named field of a module's option schema.
type Option struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        OptionType `json:"type"`
	Required    bool       `json:"required"`
	Default     any        `json:"default,omitempty"`
	Choices     []string   `json:"choices,omitempty"`
	// Min and Max bound TypeInt options when set.
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Bound returns a pointer to n for Option.Min and Option.Max.
func Bound(n int) *int { return &n }

// Schema is the full option set of a module.
type Schema struct {
	Options []Option `json:"options"`
	// AllowExtra accepts undeclared fields and stores them unchanged.
	AllowExtra bool `json:"allow_extra,omitempty"`
}

// Options is a validated option mapping. The getters tolerate the numeric
// representations produced by JSON round-trips, so options persisted at
// add-time keep working without being validated again.
type Options map[string]any

// String returns the named option as a string, or "" if absent.
func (o Options) String(name string) string {
	switch v := o[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the named option as an int, or 0 if absent or not numeric.
func (o Options) Int(name string) int {
	n, _ := toInt(o[name])
	return n
}

// Bool returns the named option as a bool, or false if absent.
func (o Options) Bool(name string) bool {
	b, _ := toBool(o[name])
	return b
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		// -math.MinInt is the first float64 past the int range.
		if n != math.Trunc(n) || n < math.MinInt || n >= -math.MinInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return toInt(i)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(b)
		if err != nil {
			return false, false
		}
		return p, true
	default:
		return false, false
	}
}
