package types

import (
	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// PredictRequest is the body of the predict and encode endpoints. Values
// holds numbers for numeric fields and option strings for categorical ones.
// When Defaults is set, missing fields take their catalogue defaults.
type PredictRequest struct {
	Values   map[string]any `json:"values" binding:"required"`
	Defaults bool           `json:"defaults,omitempty"`
}

// PredictResponse is returned by the predict endpoint. Prediction is always
// present on success; Attribution is absent when ExplanationError is set.
type PredictResponse struct {
	Prediction       float64                `json:"prediction"`
	Model            string                 `json:"model"`
	Attribution      *explain.Attribution   `json:"attribution,omitempty"`
	Contributors     []analysis.Contributor `json:"contributors,omitempty"`
	ExplanationError string                 `json:"explanation_error,omitempty"`
	Features         analysis.FeatureVector `json:"features"`
	Chart            string                 `json:"chart,omitempty"`
	DurationMS       int64                  `json:"duration_ms"`
}

// EncodeResponse is returned by the encode endpoint
type EncodeResponse struct {
	Features analysis.FeatureVector `json:"features"`
}

// SchemaResponse describes the input form
type SchemaResponse struct {
	Fields       []schema.FieldSpec `json:"fields"`
	FeatureNames []string           `json:"feature_names"`
	Defaults     schema.Values      `json:"defaults"`
	Model        string             `json:"model"`
	ModelKind    string             `json:"model_kind"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string `json:"status"`
	Model     string `json:"model"`
	ModelKind string `json:"model_kind"`
	Features  int    `json:"features"`
	Uptime    string `json:"uptime"`
}

// NewPredictResponse flattens an analysis result for the API
func NewPredictResponse(model string, result *analysis.Result) PredictResponse {
	resp := PredictResponse{
		Prediction:   result.Prediction,
		Model:        model,
		Attribution:  result.Attribution,
		Contributors: analysis.RankContributors(result.Attribution),
		Features:     result.Features,
		DurationMS:   result.Duration.Milliseconds(),
	}
	if result.ExplanationError != nil {
		resp.ExplanationError = result.ExplanationError.Error()
	}
	return resp
}
