package analysis

import (
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// FeatureVector is the encoded model input, numeric fields first and one
// bit per categorical field after them.
type FeatureVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// EncodingError reports a value the encoder could not convert
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode field %q: %s", e.Field, e.Reason)
}

// Result is the outcome of one prediction request
type Result struct {
	Values      schema.Values        `json:"values"`
	Features    FeatureVector        `json:"features"`
	Prediction  float64              `json:"prediction"`
	Attribution *explain.Attribution `json:"attribution,omitempty"`
	// ExplanationError is set when the prediction succeeded but no
	// attribution could be produced.
	ExplanationError error         `json:"-"`
	Duration         time.Duration `json:"-"`
}

// Contributor is one ranked row of the contribution table
type Contributor struct {
	Feature      string  `json:"feature"`
	Data         float64 `json:"data"`
	Contribution float64 `json:"contribution"`
}
