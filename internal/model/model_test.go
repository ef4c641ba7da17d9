package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits feature f at t with the given leaf values and covers
func stump(f int, t, left, right, lc, rc float64) *Tree {
	return &Tree{Nodes: []Node{
		{Feature: f, Threshold: t, Left: 1, Right: 2, Cover: lc + rc},
		{Left: -1, Right: -1, Value: left, Cover: lc},
		{Left: -1, Right: -1, Value: right, Cover: rc},
	}}
}

func TestTree_EvalAndExpectedValue(t *testing.T) {
	tree := stump(0, 1.5, 10, 20, 30, 10)
	require.NoError(t, tree.Validate(2))

	assert.Equal(t, 10.0, tree.Eval([]float64{1.5, 0}))
	assert.Equal(t, 20.0, tree.Eval([]float64{1.6, 0}))
	assert.InDelta(t, 12.5, tree.ExpectedValue(), 1e-12)
}

func TestTree_Validate(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
	}{
		{name: "empty"},
		{
			name: "feature out of range",
			nodes: []Node{
				{Feature: 5, Left: 1, Right: 2, Cover: 2},
				{Left: -1, Right: -1, Cover: 1},
				{Left: -1, Right: -1, Cover: 1},
			},
		},
		{
			name: "child before parent",
			nodes: []Node{
				{Feature: 0, Left: 0, Right: 1, Cover: 2},
				{Left: -1, Right: -1, Cover: 1},
			},
		},
		{
			name: "shared child",
			nodes: []Node{
				{Feature: 0, Left: 1, Right: 2, Cover: 2},
				{Feature: 0, Left: 2, Right: 3, Cover: 1},
				{Left: -1, Right: -1, Cover: 1},
				{Left: -1, Right: -1, Cover: 1},
			},
		},
		{
			name: "zero cover",
			nodes: []Node{
				{Left: -1, Right: -1, Cover: 0},
			},
		},
		{
			name: "half leaf",
			nodes: []Node{
				{Left: -1, Right: 1, Cover: 1},
				{Left: -1, Right: -1, Cover: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &Tree{Nodes: tt.nodes}
			assert.Error(t, tree.Validate(2))
		})
	}
}

func TestLinear_Predict(t *testing.T) {
	m := NewLinear([]float64{2, -1}, 0.5)

	preds, err := m.Predict([][]float64{{1, 1}, {0, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.5}, preds)

	_, err = m.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestForestAndBoosting(t *testing.T) {
	a := stump(0, 0.5, 0, 10, 5, 5)
	b := stump(1, 0.5, 2, 4, 5, 5)

	forest, err := NewForest(2, a, b)
	require.NoError(t, err)
	preds, err := forest.Predict([][]float64{{1, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, preds[0], 1e-12)

	boost, err := NewBoosting(2, 1, 0.1, a, b)
	require.NoError(t, err)
	preds, err = boost.Predict([][]float64{{1, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 2.2, preds[0], 1e-12)

	ens, err := boost.TreeEnsemble()
	require.NoError(t, err)
	assert.InDelta(t, 1+0.1*5+0.1*3, ens.ExpectedValue(), 1e-12)

	_, err = NewForest(2)
	assert.Error(t, err)
}

func TestStacking(t *testing.T) {
	forest, err := NewForest(2, stump(0, 0.5, 0, 10, 5, 5))
	require.NoError(t, err)
	boost, err := NewBoosting(2, 1, 1, stump(1, 0.5, 2, 4, 5, 5))
	require.NoError(t, err)

	s, err := NewStacking([]Estimator{
		{Name: "rf", Model: forest},
		{Name: "gb", Model: boost},
	}, NewLinear([]float64{0.5, 2}, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, s.NumFeatures())

	x := []float64{1, 1}
	preds, err := s.Predict([][]float64{x})
	require.NoError(t, err)
	// 1 + 0.5*10 + 2*(1+4)
	assert.InDelta(t, 16.0, preds[0], 1e-12)

	t.Run("tree ensemble matches predictions", func(t *testing.T) {
		ens, err := s.TreeEnsemble()
		require.NoError(t, err)
		for _, row := range [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
			want, err := s.Predict([][]float64{row})
			require.NoError(t, err)
			assert.InDelta(t, want[0], ens.Eval(row), 1e-12)
		}
	})

	t.Run("linear base learner is not tree explainable", func(t *testing.T) {
		mixed, err := NewStacking([]Estimator{
			{Name: "rf", Model: forest},
			{Name: "ridge", Model: NewLinear([]float64{1, 1}, 0)},
		}, NewLinear([]float64{1, 1}, 0))
		require.NoError(t, err)
		_, err = mixed.TreeEnsemble()
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("rejects mismatched final estimator", func(t *testing.T) {
		_, err := NewStacking([]Estimator{{Name: "rf", Model: forest}}, NewLinear([]float64{1, 1}, 0))
		assert.Error(t, err)
	})

	t.Run("rejects mismatched widths", func(t *testing.T) {
		_, err := NewStacking([]Estimator{
			{Name: "rf", Model: forest},
			{Name: "ridge", Model: NewLinear([]float64{1, 1, 1}, 0)},
		}, NewLinear([]float64{1, 1}, 0))
		assert.Error(t, err)
	})
}

type panicModel struct{}

func (panicModel) Predict([][]float64) ([]float64, error) { panic("boom") }
func (panicModel) NumFeatures() int                       { return 1 }

type brokenModel struct {
	preds []float64
	err   error
}

func (m brokenModel) Predict([][]float64) ([]float64, error) { return m.preds, m.err }
func (brokenModel) NumFeatures() int                         { return 1 }

func TestAdapter_Predict(t *testing.T) {
	a := NewAdapter(NewLinear([]float64{2}, 1))
	y, err := a.Predict([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 7.0, y)

	tests := []struct {
		name  string
		model Predictor
		x     []float64
	}{
		{name: "wrong width", model: NewLinear([]float64{2}, 1), x: []float64{1, 2}},
		{name: "panic", model: panicModel{}, x: []float64{1}},
		{name: "model error", model: brokenModel{err: errors.New("bad")}, x: []float64{1}},
		{name: "empty batch", model: brokenModel{preds: nil}, x: []float64{1}},
		{name: "non-finite", model: brokenModel{preds: []float64{math.Inf(1)}}, x: []float64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter(tt.model).Predict(tt.x)
			var perr *PredictionError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, err.Error(), "prediction failed")
		})
	}
}

func TestLoadArtifact_Shipped(t *testing.T) {
	a, err := LoadArtifact(filepath.Join("..", "..", "models", "stacking_regressor.json"))
	require.NoError(t, err)

	assert.Equal(t, "stacking_regressor", a.Name)
	assert.Equal(t, 18, a.Model.NumFeatures())
	assert.Len(t, a.FeatureNames, 18)
	assert.NotEmpty(t, a.Background)
	assert.Equal(t, "stacking", Kind(a.Model))
	assert.NoError(t, a.CheckFeatures(a.FeatureNames))

	tm, ok := a.Model.(TreeModel)
	require.True(t, ok)
	_, err = tm.TreeEnsemble()
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	y, err := NewAdapter(a.Model).Predict(a.Background[0])
	require.NoError(t, err)
	assert.False(t, math.IsNaN(y))
}

func TestParseArtifact(t *testing.T) {
	valid := `{
  "format_version": 1,
  "name": "tiny",
  "n_features": 2,
  "feature_names": ["a", "b"],
  "background": [[0, 0], [1, 1]],
  "model": {
    "kind": "stacking",
    "estimators": [
      {"name": "tree", "model": {"kind": "tree", "nodes": [
        {"feature": 0, "threshold": 0.5, "left": 1, "right": 2, "cover": 4},
        {"left": -1, "right": -1, "value": 1, "cover": 2},
        {"left": -1, "right": -1, "value": 3, "cover": 2}
      ]}},
      {"name": "lin", "model": {"kind": "linear", "coef": [1, 2], "intercept": 0}}
    ],
    "final_estimator": {"kind": "linear", "coef": [1, 1], "intercept": 0.5}
  }
}`
	a, err := ParseArtifact([]byte(valid))
	require.NoError(t, err)
	preds, err := a.Model.Predict([][]float64{{1, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 6.5, preds[0], 1e-12)

	assert.NoError(t, a.CheckFeatures([]string{"a", "b"}))
	assert.ErrorIs(t, a.CheckFeatures([]string{"b", "a"}), ErrShapeMismatch)
	assert.ErrorIs(t, a.CheckFeatures([]string{"a"}), ErrShapeMismatch)

	invalid := map[string]string{
		"bad version":      `{"format_version": 2, "n_features": 1, "model": {"kind": "linear", "coef": [1]}}`,
		"unknown kind":     `{"format_version": 1, "n_features": 1, "model": {"kind": "svm"}}`,
		"missing model":    `{"format_version": 1, "n_features": 1}`,
		"coef mismatch":    `{"format_version": 1, "n_features": 2, "model": {"kind": "linear", "coef": [1]}}`,
		"background width": `{"format_version": 1, "n_features": 1, "background": [[1, 2]], "model": {"kind": "linear", "coef": [1]}}`,
		"names mismatch":   `{"format_version": 1, "n_features": 1, "feature_names": ["a", "b"], "model": {"kind": "linear", "coef": [1]}}`,
		"nonlinear final": `{"format_version": 1, "n_features": 1, "model": {"kind": "stacking",
			"estimators": [{"name": "l", "model": {"kind": "linear", "coef": [1]}}],
			"final_estimator": {"kind": "tree", "nodes": [{"left": -1, "right": -1, "value": 1, "cover": 1}]}}}`,
		"not json": `{`,
	}
	for name, doc := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadArtifact_Missing(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
