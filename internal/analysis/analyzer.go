package analysis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// Analyzer orchestrates the full prediction pipeline
type Analyzer struct {
	catalogue *schema.Catalogue
	encoder   *Encoder
	artifact  *model.Artifact
	adapter   *model.Adapter
	engine    *explain.Engine
	logger    *slog.Logger
}

// NewAnalyzer wires the catalogue to a loaded model. The model must have
// been fit on the catalogue's feature order. When the artifact carries no
// background sample the catalogue defaults are used as the single
// reference row.
func NewAnalyzer(c *schema.Catalogue, artifact *model.Artifact, opts explain.Options, logger *slog.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := artifact.CheckFeatures(c.FeatureNames()); err != nil {
		return nil, err
	}

	encoder := NewEncoder(c)
	if len(opts.Background) == 0 {
		opts.Background = artifact.Background
	}
	if len(opts.Background) == 0 {
		fv, err := encoder.Encode(c.Defaults())
		if err != nil {
			return nil, fmt.Errorf("failed to encode default background row: %w", err)
		}
		opts.Background = [][]float64{fv.Values}
		logger.Warn("model artifact has no background rows, using catalogue defaults")
	}

	return &Analyzer{
		catalogue: c,
		encoder:   encoder,
		artifact:  artifact,
		adapter:   model.NewAdapter(artifact.Model),
		engine:    explain.NewEngine(opts, logger),
		logger:    logger,
	}, nil
}

// Catalogue returns the input schema
func (a *Analyzer) Catalogue() *schema.Catalogue { return a.catalogue }

// ModelName returns the loaded artifact's name
func (a *Analyzer) ModelName() string { return a.artifact.Name }

// ModelKind returns the loaded model's kind
func (a *Analyzer) ModelKind() string { return model.Kind(a.artifact.Model) }

// Encode validates values and encodes them without scoring
func (a *Analyzer) Encode(values schema.Values) (FeatureVector, error) {
	if err := a.catalogue.Validate(values); err != nil {
		return FeatureVector{}, err
	}
	return a.encoder.Encode(values)
}

// Analyze runs encode, predict and explain. Encoding or prediction failures
// fail the call. An explanation failure keeps the prediction and is reported
// in Result.ExplanationError.
func (a *Analyzer) Analyze(values schema.Values) (*Result, error) {
	start := time.Now()

	fv, err := a.Encode(values)
	if err != nil {
		return nil, err
	}

	prediction, err := a.adapter.Predict(fv.Values)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Values:     values,
		Features:   fv,
		Prediction: prediction,
	}

	attr, err := a.engine.Explain(a.artifact.Model, fv.Values, fv.Names)
	if err != nil {
		a.logger.Error("explanation failed", "error", err)
		result.ExplanationError = err
	} else {
		result.Attribution = attr
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RankContributors orders an attribution by absolute contribution, largest
// first. Ties keep feature order.
func RankContributors(attr *explain.Attribution) []Contributor {
	if attr == nil {
		return nil
	}
	out := make([]Contributor, len(attr.Values))
	for i, v := range attr.Values {
		out[i] = Contributor{Feature: v.Feature, Data: v.Data, Contribution: v.Value}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Contribution) > math.Abs(out[j].Contribution)
	})
	return out
}
