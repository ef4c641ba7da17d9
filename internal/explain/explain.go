package explain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
)

// Method names the algorithm that produced an attribution
type Method string

const (
	MethodTree   Method = "tree"
	MethodKernel Method = "kernel"
)

// ConsistencyTolerance is the relative tolerance on Baseline + sum(values) == Prediction
const ConsistencyTolerance = 1e-3

// ErrInconsistent is returned when an attribution does not add up to the
// model prediction.
var ErrInconsistent = errors.New("attribution does not sum to prediction")

// ErrRankDeficient means the sampled coalitions cannot identify every
// feature's contribution.
var ErrRankDeficient = errors.New("kernel regression is rank deficient")

// Contribution is one feature's share of the prediction
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Data    float64 `json:"data"`
}

// Attribution explains a single prediction relative to a baseline
type Attribution struct {
	Method     Method         `json:"method"`
	Baseline   float64        `json:"baseline"`
	Prediction float64        `json:"prediction"`
	Values     []Contribution `json:"values"`
	// Fallback is set when the tree explainer could not handle the model
	// and the kernel explainer was used instead.
	Fallback bool `json:"fallback"`
}

// Sum returns the total of all contributions
func (a *Attribution) Sum() float64 {
	sum := 0.0
	for _, c := range a.Values {
		sum += c.Value
	}
	return sum
}

// ExplanationError reports a failed explanation
type ExplanationError struct {
	Method Method
	Cause  error
}

func (e *ExplanationError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("explanation failed: %v", e.Cause)
	}
	return fmt.Sprintf("%s explanation failed: %v", e.Method, e.Cause)
}

func (e *ExplanationError) Unwrap() error { return e.Cause }

// Explainer computes raw SHAP values for one row. Values may be a flat
// []float64 or one slice per model output ([][]float64).
type Explainer interface {
	Method() Method
	Shap(m model.Predictor, x []float64) (values any, baseline float64, err error)
}

// Normalize unwraps explainer output into one value per feature
func Normalize(values any, n int) ([]float64, error) {
	var flat []float64
	switch v := values.(type) {
	case []float64:
		flat = v
	case [][]float64:
		if len(v) != 1 {
			return nil, fmt.Errorf("expected a single model output, got %d", len(v))
		}
		flat = v[0]
	default:
		return nil, fmt.Errorf("unsupported attribution type %T", values)
	}
	if len(flat) != n {
		return nil, fmt.Errorf("got %d attribution values for %d features", len(flat), n)
	}
	out := make([]float64, n)
	for i, f := range flat {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("attribution for feature %d is not finite", i)
		}
		out[i] = f
	}
	return out, nil
}

// Options configures the engine
type Options struct {
	// KernelSamples is the coalition budget for the kernel explainer.
	// Zero selects 2*M + 2048; budgets below MinSamples are raised to it.
	KernelSamples int
	Seed          int64
	// Background rows for the kernel explainer
	Background [][]float64
}

// Engine tries the exact tree explainer first and falls back to the
// model-agnostic kernel explainer when the model has no tree structure.
type Engine struct {
	tree   Explainer
	kernel Explainer
	logger *slog.Logger
}

// NewEngine creates an engine
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tree:   &TreeExplainer{},
		kernel: NewKernelExplainer(opts.Background, opts.KernelSamples, opts.Seed),
		logger: logger.With("component", "explain"),
	}
}

// Explain attributes m's prediction for x to the named features. A panic
// inside the model is reported as an ExplanationError.
func (e *Engine) Explain(m model.Predictor, x []float64, featureNames []string) (attr *Attribution, err error) {
	var method Method
	defer func() {
		if r := recover(); r != nil {
			attr = nil
			err = &ExplanationError{Method: method, Cause: fmt.Errorf("model panicked: %v", r)}
		}
	}()

	if len(x) != len(featureNames) {
		return nil, &ExplanationError{Cause: fmt.Errorf("%d values for %d feature names", len(x), len(featureNames))}
	}
	prediction, err := predictOne(m, x)
	if err != nil {
		return nil, &ExplanationError{Cause: err}
	}

	method = e.tree.Method()
	attr, err = e.run(e.tree, m, x, featureNames, prediction)
	if err == nil {
		return attr, nil
	}
	if !errors.Is(err, model.ErrUnsupportedModel) {
		return nil, &ExplanationError{Method: method, Cause: err}
	}

	e.logger.Info("tree explainer unavailable, using kernel explainer",
		"model", model.Kind(m),
		"reason", err.Error(),
	)
	method = e.kernel.Method()
	attr, err = e.run(e.kernel, m, x, featureNames, prediction)
	if err != nil {
		return nil, &ExplanationError{Method: method, Cause: err}
	}
	attr.Fallback = true
	return attr, nil
}

func (e *Engine) run(ex Explainer, m model.Predictor, x []float64, names []string, prediction float64) (*Attribution, error) {
	raw, baseline, err := ex.Shap(m, x)
	if err != nil {
		return nil, err
	}
	values, err := Normalize(raw, len(names))
	if err != nil {
		return nil, err
	}

	attr := &Attribution{
		Method:     ex.Method(),
		Baseline:   baseline,
		Prediction: prediction,
		Values:     make([]Contribution, len(names)),
	}
	for i, name := range names {
		attr.Values[i] = Contribution{Feature: name, Value: values[i], Data: x[i]}
	}

	total := baseline + attr.Sum()
	if math.Abs(total-prediction) > ConsistencyTolerance*math.Max(1, math.Abs(prediction)) {
		return nil, fmt.Errorf("baseline %.6g + contributions %.6g != prediction %.6g: %w",
			baseline, attr.Sum(), prediction, ErrInconsistent)
	}
	return attr, nil
}

func predictOne(m model.Predictor, x []float64) (float64, error) {
	preds, err := m.Predict([][]float64{x})
	if err != nil {
		return 0, err
	}
	if len(preds) != 1 {
		return 0, fmt.Errorf("model returned %d predictions for one row", len(preds))
	}
	return preds[0], nil
}
