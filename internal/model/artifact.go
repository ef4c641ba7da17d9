package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
)

// FormatVersion is the artifact format this package reads
const FormatVersion = 1

// Artifact is a serialized predictor together with the metadata needed to
// score and explain it.
type Artifact struct {
	Name         string
	FeatureNames []string
	// Background rows are a reference sample used as the zero point of
	// model-agnostic explanations.
	Background [][]float64
	Model      Predictor
}

type artifactFile struct {
	FormatVersion int             `json:"format_version"`
	Name          string          `json:"name"`
	NFeatures     int             `json:"n_features"`
	FeatureNames  []string        `json:"feature_names"`
	Background    [][]float64     `json:"background"`
	Model         json.RawMessage `json:"model"`
}

type modelSpec struct {
	Kind string `json:"kind"`

	// linear
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`

	// tree
	Nodes []Node `json:"nodes"`

	// forest, boosting
	Trees        []Tree  `json:"trees"`
	Init         float64 `json:"init"`
	LearningRate float64 `json:"learning_rate"`

	// stacking
	Estimators []struct {
		Name  string          `json:"name"`
		Model json.RawMessage `json:"model"`
	} `json:"estimators"`
	FinalEstimator json.RawMessage `json:"final_estimator"`
}

// LoadArtifact reads a model artifact from disk
func LoadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer file.Close()

	var raw artifactFile
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	a, err := raw.build()
	if err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	return a, nil
}

// ParseArtifact decodes an artifact from JSON
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return raw.build()
}

func (f *artifactFile) build() (*Artifact, error) {
	if f.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported format_version %d, want %d", f.FormatVersion, FormatVersion)
	}
	if f.NFeatures <= 0 {
		return nil, fmt.Errorf("n_features must be positive")
	}
	if len(f.FeatureNames) != 0 && len(f.FeatureNames) != f.NFeatures {
		return nil, fmt.Errorf("%d feature_names for %d features", len(f.FeatureNames), f.NFeatures)
	}
	for i, row := range f.Background {
		if len(row) != f.NFeatures {
			return nil, fmt.Errorf("background row %d has %d columns, want %d", i, len(row), f.NFeatures)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("background row %d has a non-finite value", i)
			}
		}
	}

	m, err := decodeModel(f.Model, f.NFeatures)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Name:         f.Name,
		FeatureNames: f.FeatureNames,
		Background:   f.Background,
		Model:        m,
	}, nil
}

func decodeModel(data json.RawMessage, nFeatures int) (Predictor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("missing model")
	}
	var node modelSpec
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	switch node.Kind {
	case "linear":
		if len(node.Coef) != nFeatures {
			return nil, fmt.Errorf("linear: %d coefficients for %d features", len(node.Coef), nFeatures)
		}
		return NewLinear(node.Coef, node.Intercept), nil
	case "tree":
		return NewTreeRegressor(nFeatures, &Tree{Nodes: node.Nodes})
	case "forest":
		return NewForest(nFeatures, treePointers(node.Trees)...)
	case "boosting":
		return NewBoosting(nFeatures, node.Init, node.LearningRate, treePointers(node.Trees)...)
	case "stacking":
		estimators := make([]Estimator, len(node.Estimators))
		for i, e := range node.Estimators {
			m, err := decodeModel(e.Model, nFeatures)
			if err != nil {
				return nil, fmt.Errorf("estimator %q: %w", e.Name, err)
			}
			estimators[i] = Estimator{Name: e.Name, Model: m}
		}
		final, err := decodeModel(node.FinalEstimator, len(estimators))
		if err != nil {
			return nil, fmt.Errorf("final_estimator: %w", err)
		}
		lin, ok := final.(*Linear)
		if !ok {
			return nil, fmt.Errorf("final_estimator must be linear, got %s", Kind(final))
		}
		return NewStacking(estimators, lin)
	default:
		return nil, fmt.Errorf("unknown model kind %q", node.Kind)
	}
}

func treePointers(trees []Tree) []*Tree {
	out := make([]*Tree, len(trees))
	for i := range trees {
		out[i] = &trees[i]
	}
	return out
}

// CheckFeatures verifies the artifact was fit on the given feature order. An
// artifact without feature names only has its width checked.
func (a *Artifact) CheckFeatures(names []string) error {
	if a.Model.NumFeatures() != len(names) {
		return fmt.Errorf("model expects %d features, schema declares %d: %w", a.Model.NumFeatures(), len(names), ErrShapeMismatch)
	}
	if len(a.FeatureNames) > 0 && !slices.Equal(a.FeatureNames, names) {
		return fmt.Errorf("model feature order %v does not match schema order %v: %w", a.FeatureNames, names, ErrShapeMismatch)
	}
	return nil
}
