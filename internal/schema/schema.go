package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind distinguishes numeric from categorical fields
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// Numeric is a continuous field with inclusive bounds
type Numeric struct {
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Default float64 `yaml:"default" json:"default"`
	Integer bool    `yaml:"integer" json:"integer"`
}

// Categorical is a two-option choice. Positive is the option encoded as 1.
type Categorical struct {
	Options  []string `yaml:"options" json:"options"`
	Positive string   `yaml:"positive" json:"positive"`
	Default  string   `yaml:"default" json:"default"`
}

// FieldSpec describes one input feature
type FieldSpec struct {
	Name        string       `yaml:"name" json:"name"`
	Label       string       `yaml:"label" json:"label"`
	Numeric     *Numeric     `yaml:"numeric,omitempty" json:"numeric,omitempty"`
	Categorical *Categorical `yaml:"categorical,omitempty" json:"categorical,omitempty"`
}

// Values maps field names to user-selected values: float64 for numeric
// fields, string for categorical fields.
type Values map[string]any

// ValidationError reports a value rejected at the input boundary
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Kind returns the field kind
func (f FieldSpec) Kind() Kind {
	if f.Numeric != nil {
		return KindNumeric
	}
	return KindCategorical
}

// Default returns the field's default value
func (f FieldSpec) Default() any {
	if f.Numeric != nil {
		return f.Numeric.Default
	}
	return f.Categorical.Default
}

// Step returns the HTML input step for numeric fields
func (f FieldSpec) Step() string {
	if f.Numeric != nil && f.Numeric.Integer {
		return "1"
	}
	return "any"
}

// Validate checks a typed value against the field constraint.
// Out-of-range numbers are rejected, never clamped.
func (f FieldSpec) Validate(value any) error {
	switch f.Kind() {
	case KindNumeric:
		v, ok := value.(float64)
		if !ok {
			return &ValidationError{Field: f.Name, Reason: fmt.Sprintf("expected a number, got %T", value)}
		}
		return f.Numeric.check(f.Name, v)
	default:
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Field: f.Name, Reason: fmt.Sprintf("expected one of %s, got %T", f.Categorical.quoted(), value)}
		}
		if !f.Categorical.Has(s) {
			return &ValidationError{Field: f.Name, Reason: fmt.Sprintf("%q is not one of %s", s, f.Categorical.quoted())}
		}
		return nil
	}
}

// Parse converts a raw form string into a typed value and validates it
func (f FieldSpec) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if f.Kind() == KindCategorical {
		if err := f.Validate(raw); err != nil {
			return nil, err
		}
		return raw, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{Field: f.Name, Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	if err := f.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (n *Numeric) check(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: name, Reason: "value must be finite"}
	}
	if v < n.Min || v > n.Max {
		return &ValidationError{Field: name, Reason: fmt.Sprintf("%s is outside [%s, %s]", formatNumber(v), formatNumber(n.Min), formatNumber(n.Max))}
	}
	if n.Integer && v != math.Trunc(v) {
		return &ValidationError{Field: name, Reason: fmt.Sprintf("%s is not a whole number", formatNumber(v))}
	}
	return nil
}

// Has reports whether s is one of the declared options
func (c *Categorical) Has(s string) bool {
	for _, o := range c.Options {
		if o == s {
			return true
		}
	}
	return false
}

// Bit returns 1 for the positive option and 0 otherwise
func (c *Categorical) Bit(s string) float64 {
	if s == c.Positive {
		return 1
	}
	return 0
}

func (c *Categorical) quoted() string {
	q := make([]string, len(c.Options))
	for i, o := range c.Options {
		q[i] = strconv.Quote(o)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
