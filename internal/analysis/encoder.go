package analysis

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// Encoder turns user values into the model's feature vector
type Encoder struct {
	catalogue *schema.Catalogue
	fields    []schema.FieldSpec
}

// NewEncoder creates an encoder for the catalogue's vector order
func NewEncoder(c *schema.Catalogue) *Encoder {
	names := c.FeatureNames()
	fields := make([]schema.FieldSpec, len(names))
	for i, name := range names {
		fields[i], _ = c.Field(name)
	}
	return &Encoder{catalogue: c, fields: fields}
}

// FeatureNames returns the vector order
func (e *Encoder) FeatureNames() []string {
	return e.catalogue.FeatureNames()
}

// Encode is pure: the same values always produce the same vector. Numeric
// values pass through unchanged and each categorical field becomes 1 when
// it holds its positive option.
func (e *Encoder) Encode(values map[string]any) (FeatureVector, error) {
	fv := FeatureVector{
		Names:  e.FeatureNames(),
		Values: make([]float64, len(e.fields)),
	}

	for i, f := range e.fields {
		raw, ok := values[f.Name]
		if !ok {
			return FeatureVector{}, &EncodingError{Field: f.Name, Reason: "missing value"}
		}

		if f.Numeric != nil {
			v, ok := raw.(float64)
			if !ok {
				return FeatureVector{}, &EncodingError{Field: f.Name, Reason: fmt.Sprintf("expected a number, got %T", raw)}
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return FeatureVector{}, &EncodingError{Field: f.Name, Reason: "value must be finite"}
			}
			fv.Values[i] = v
			continue
		}

		s, ok := raw.(string)
		if !ok {
			return FeatureVector{}, &EncodingError{Field: f.Name, Reason: fmt.Sprintf("expected a string, got %T", raw)}
		}
		if !f.Categorical.Has(s) {
			return FeatureVector{}, &EncodingError{Field: f.Name, Reason: fmt.Sprintf("%q is not a known option", s)}
		}
		fv.Values[i] = f.Categorical.Bit(s)
	}

	return fv, nil
}
