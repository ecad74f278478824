package bypass

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

func testSchema() Schema {
	return Schema{Options: []Option{
		{Name: "key", Type: TypeString, Required: true},
		{Name: "rounds", Type: TypeInt, Default: 1},
		{Name: "verbose", Type: TypeBool, Default: false},
		{Name: "mode", Type: TypeEnum, Choices: []string{"fast", "slow"}, Default: "fast"},
		{Name: "comment", Type: TypeString},
	}}
}

func TestValidateAll_FillsDefaults(t *testing.T) {
	got, err := testSchema().ValidateAll("enc/test", map[string]any{"key": "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String("key") != "abc" {
		t.Errorf("key = %q, want abc", got.String("key"))
	}
	if got["rounds"] != 1 {
		t.Errorf("rounds = %v, want 1", got["rounds"])
	}
	if got["verbose"] != false {
		t.Errorf("verbose = %v, want false", got["verbose"])
	}
	if got["mode"] != "fast" {
		t.Errorf("mode = %v, want fast", got["mode"])
	}
	if _, ok := got["comment"]; ok {
		t.Error("optional field without default should be omitted")
	}
}

func TestValidateAll_Coercion(t *testing.T) {
	raw := map[string]any{
		"key":     "k",
		"rounds":  " 3 ",
		"verbose": "TRUE",
		"mode":    "slow",
	}
	got, err := testSchema().ValidateAll("enc/test", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["rounds"] != 3 {
		t.Errorf("rounds = %#v, want 3", got["rounds"])
	}
	if got["verbose"] != true {
		t.Errorf("verbose = %#v, want true", got["verbose"])
	}
	if raw["rounds"] != " 3 " {
		t.Error("input map was modified")
	}
}

func TestValidateAll_JSONNumbers(t *testing.T) {
	got, err := testSchema().ValidateAll("enc/test", map[string]any{"key": "k", "rounds": float64(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["rounds"] != 4 {
		t.Errorf("rounds = %#v, want 4", got["rounds"])
	}

	got, err = testSchema().ValidateAll("enc/test", map[string]any{"key": "k", "rounds": json.Number("7")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["rounds"] != 7 {
		t.Errorf("rounds = %#v, want 7", got["rounds"])
	}
}

func TestValidateAll_NilTreatedAsAbsent(t *testing.T) {
	got, err := testSchema().ValidateAll("enc/test", map[string]any{"key": "k", "rounds": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["rounds"] != 1 {
		t.Errorf("rounds = %#v, want default 1", got["rounds"])
	}
}

func TestValidateAll_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		field string
	}{
		{"missing required", map[string]any{}, "key"},
		{"nil required", map[string]any{"key": nil}, "key"},
		{"fractional int", map[string]any{"key": "k", "rounds": 1.5}, "rounds"},
		{"non-numeric int", map[string]any{"key": "k", "rounds": "many"}, "rounds"},
		{"int overflow", map[string]any{"key": "k", "rounds": 1e20}, "rounds"},
		{"int underflow", map[string]any{"key": "k", "rounds": -1e20}, "rounds"},
		{"int at 2^63", map[string]any{"key": "k", "rounds": float64(1 << 63)}, "rounds"},
		{"int infinite", map[string]any{"key": "k", "rounds": math.Inf(1)}, "rounds"},
		{"int NaN", map[string]any{"key": "k", "rounds": math.NaN()}, "rounds"},
		{"int json overflow", map[string]any{"key": "k", "rounds": json.Number("99999999999999999999")}, "rounds"},
		{"bad bool", map[string]any{"key": "k", "verbose": "maybe"}, "verbose"},
		{"enum not in choices", map[string]any{"key": "k", "mode": "medium"}, "mode"},
		{"enum wrong type", map[string]any{"key": "k", "mode": 3}, "mode"},
		{"string wrong type", map[string]any{"key": []any{"a"}}, "key"},
		{"unknown field", map[string]any{"key": "k", "zzz": 1}, "zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testSchema().ValidateAll("enc/test", tt.raw)
			if !errors.Is(err, domain.ErrInvalidOption) {
				t.Fatalf("expected ErrInvalidOption, got %v", err)
			}
			var oe *domain.OptionError
			if !errors.As(err, &oe) {
				t.Fatalf("expected *domain.OptionError, got %T", err)
			}
			if oe.Field != tt.field {
				t.Errorf("field = %q, want %q", oe.Field, tt.field)
			}
			if oe.Module != "enc/test" {
				t.Errorf("module = %q, want enc/test", oe.Module)
			}
		})
	}
}

func TestValidateAll_IntRange(t *testing.T) {
	schema := Schema{Options: []Option{
		{Name: "level", Type: TypeInt, Default: -1, Min: Bound(-1), Max: Bound(9)},
		{Name: "floor", Type: TypeInt, Min: Bound(2)},
		{Name: "ceiling", Type: TypeInt, Max: Bound(5)},
	}}

	tests := []struct {
		name   string
		raw    map[string]any
		field  string
		reason string
	}{
		{"below min", map[string]any{"level": -2}, "level", "must be between -1 and 9, got -2"},
		{"above max", map[string]any{"level": float64(10)}, "level", "must be between -1 and 9, got 10"},
		{"string above max", map[string]any{"level": "42"}, "level", "must be between -1 and 9, got 42"},
		{"min only", map[string]any{"floor": 1}, "floor", "must be at least 2, got 1"},
		{"max only", map[string]any{"ceiling": 6}, "ceiling", "must be at most 5, got 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.ValidateAll("compression/test", tt.raw)
			var oe *domain.OptionError
			if !errors.As(err, &oe) {
				t.Fatalf("expected *domain.OptionError, got %v", err)
			}
			if oe.Field != tt.field || oe.Reason != tt.reason {
				t.Errorf("error = %s/%q, want %s/%q", oe.Field, oe.Reason, tt.field, tt.reason)
			}
		})
	}

	got, err := schema.ValidateAll("compression/test", map[string]any{"level": 9, "floor": 2, "ceiling": 5})
	if err != nil {
		t.Fatalf("bounds are inclusive, got error: %v", err)
	}
	if got["level"] != 9 || got["floor"] != 2 || got["ceiling"] != 5 {
		t.Errorf("ValidateAll() = %v", got)
	}
	if got, _ := schema.ValidateAll("compression/test", nil); got["level"] != -1 {
		t.Errorf("default level = %v, want -1", got["level"])
	}
}

func TestValidateAll_UnknownReportedInSortedOrder(t *testing.T) {
	_, err := testSchema().ValidateAll("enc/test", map[string]any{"key": "k", "zeta": 1, "alpha": 2})
	var oe *domain.OptionError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *domain.OptionError, got %v", err)
	}
	if oe.Field != "alpha" {
		t.Errorf("field = %q, want alpha", oe.Field)
	}
}

func TestValidateAll_AllowExtra(t *testing.T) {
	s := testSchema()
	s.AllowExtra = true
	got, err := s.ValidateAll("enc/test", map[string]any{"key": "k", "extra": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["extra"] != "x" {
		t.Errorf("extra = %v, want x", got["extra"])
	}
}

func TestValidateAll_EmptySchema(t *testing.T) {
	got, err := Schema{}.ValidateAll("enc/none", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty options, got %v", got)
	}
}

func TestOptions_Getters(t *testing.T) {
	o := Options{"s": "x", "n": float64(5), "i64": int64(6), "b": "true", "num": 9}
	if o.String("s") != "x" || o.String("missing") != "" || o.String("num") != "9" {
		t.Error("String getter mismatch")
	}
	if o.Int("n") != 5 || o.Int("i64") != 6 || o.Int("missing") != 0 {
		t.Error("Int getter mismatch")
	}
	if !o.Bool("b") || o.Bool("missing") {
		t.Error("Bool getter mismatch")
	}
}
