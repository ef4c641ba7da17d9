package schema

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Catalogue is the ordered, validated list of input fields. It is immutable
// after construction and safe for concurrent use.
type Catalogue struct {
	fields []FieldSpec
	index  map[string]int
	order  []string
}

type catalogueFile struct {
	Fields []FieldSpec `yaml:"fields"`
}

// Default returns the embedded catalogue. It panics if the embedded document
// is invalid, which is a build defect.
func Default() *Catalogue {
	c, err := Parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded catalogue is invalid: %v", err))
	}
	return c
}

// Load reads and validates a catalogue from a YAML file
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalogue document
func Parse(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue: %w", err)
	}
	return New(file.Fields)
}

// New validates fields and builds a catalogue
func New(fields []FieldSpec) (*Catalogue, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("catalogue has no fields")
	}

	c := &Catalogue{
		fields: make([]FieldSpec, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(c.fields, fields)

	for i := range c.fields {
		f := &c.fields[i]
		if err := normalize(f); err != nil {
			return nil, err
		}
		if _, dup := c.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		c.index[f.Name] = i
	}

	for _, f := range c.fields {
		if f.Kind() == KindNumeric {
			c.order = append(c.order, f.Name)
		}
	}
	for _, f := range c.fields {
		if f.Kind() == KindCategorical {
			c.order = append(c.order, f.Name)
		}
	}

	return c, nil
}

func normalize(f *FieldSpec) error {
	if f.Name == "" {
		return fmt.Errorf("field with empty name")
	}
	if f.Label == "" {
		f.Label = f.Name
	}
	if (f.Numeric == nil) == (f.Categorical == nil) {
		return fmt.Errorf("field %q must be exactly one of numeric or categorical", f.Name)
	}

	if n := f.Numeric; n != nil {
		if math.IsNaN(n.Min) || math.IsNaN(n.Max) || n.Min > n.Max {
			return fmt.Errorf("field %q: invalid bounds [%v, %v]", f.Name, n.Min, n.Max)
		}
		if err := n.check(f.Name, n.Default); err != nil {
			return fmt.Errorf("default: %w", err)
		}
		return nil
	}

	cat := f.Categorical
	if len(cat.Options) != 2 {
		return fmt.Errorf("field %q: categorical fields need exactly two options, got %d", f.Name, len(cat.Options))
	}
	if cat.Options[0] == cat.Options[1] {
		return fmt.Errorf("field %q: options must be distinct", f.Name)
	}
	if !cat.Has(cat.Positive) {
		return fmt.Errorf("field %q: positive label %q is not an option", f.Name, cat.Positive)
	}
	if cat.Default == "" {
		cat.Default = cat.Options[0]
	}
	if !cat.Has(cat.Default) {
		return fmt.Errorf("field %q: default %q is not an option", f.Name, cat.Default)
	}
	return nil
}

// Fields returns the fields in declaration (form) order
func (c *Catalogue) Fields() []FieldSpec {
	out := make([]FieldSpec, len(c.fields))
	copy(out, c.fields)
	return out
}

// Field looks up a field by name
func (c *Catalogue) Field(name string) (FieldSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return c.fields[i], true
}

// Len returns the number of fields, which is also the feature vector length
func (c *Catalogue) Len() int {
	return len(c.fields)
}

// FeatureNames returns field names in feature vector order: numeric fields
// first, then categorical fields, each in declaration order.
func (c *Catalogue) FeatureNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Defaults returns a fully populated set of default values
func (c *Catalogue) Defaults() Values {
	v := make(Values, len(c.fields))
	for _, f := range c.fields {
		v[f.Name] = f.Default()
	}
	return v
}

// Validate checks every declared field is present and valid. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func (c *Catalogue) Validate(values Values) error {
	for name := range values {
		if _, ok := c.index[name]; !ok {
			return &ValidationError{Field: name, Reason: "unknown field"}
		}
	}
	for _, f := range c.fields {
		v, ok := values[f.Name]
		if !ok {
			return &ValidationError{Field: f.Name, Reason: "missing value"}
		}
		if err := f.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

// ParseForm converts raw form strings into typed, validated values. Every
// declared field must be present.
func (c *Catalogue) ParseForm(form map[string]string) (Values, error) {
	values := make(Values, len(c.fields))
	for _, f := range c.fields {
		raw, ok := form[f.Name]
		if !ok {
			return nil, &ValidationError{Field: f.Name, Reason: "missing value"}
		}
		v, err := f.Parse(raw)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

// Coerce converts loosely typed values (decoded JSON or YAML) into the typed
// form expected by Validate: numbers become float64, strings stay strings.
func Coerce(raw map[string]any) Values {
	values := make(Values, len(raw))
	for name, v := range raw {
		switch n := v.(type) {
		case int:
			values[name] = float64(n)
		case int64:
			values[name] = float64(n)
		case float32:
			values[name] = float64(n)
		default:
			values[name] = v
		}
	}
	return values
}
