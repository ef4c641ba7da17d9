package model

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when a batch row does not have the
	// number of columns the model was fit with.
	ErrShapeMismatch = errors.New("input shape does not match model")

	// ErrUnsupportedModel is returned when a model cannot expose the
	// structure a caller asked for (e.g. a tree ensemble view).
	ErrUnsupportedModel = errors.New("model structure not supported")
)

// Predictor is a regression model that scores a batch of rows
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
	NumFeatures() int
}

// TreeModel is implemented by models whose output is a weighted sum of
// regression trees plus a constant.
type TreeModel interface {
	Predictor
	TreeEnsemble() (*Ensemble, error)
}

// Kind returns the artifact kind name of a model, for logging
func Kind(p Predictor) string {
	switch p.(type) {
	case *Linear:
		return "linear"
	case *TreeRegressor:
		return "tree"
	case *Forest:
		return "forest"
	case *Boosting:
		return "boosting"
	case *Stacking:
		return "stacking"
	default:
		return fmt.Sprintf("%T", p)
	}
}

func checkShape(X [][]float64, n int) error {
	for i, row := range X {
		if len(row) != n {
			return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), n, ErrShapeMismatch)
		}
	}
	return nil
}

// Linear is an ordinary or ridge linear regressor
type Linear struct {
	Coef      []float64
	Intercept float64
}

// NewLinear creates a linear model
func NewLinear(coef []float64, intercept float64) *Linear {
	return &Linear{Coef: append([]float64(nil), coef...), Intercept: intercept}
}

func (m *Linear) NumFeatures() int { return len(m.Coef) }

// Predict scores every row
func (m *Linear) Predict(X [][]float64) ([]float64, error) {
	if err := checkShape(X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		sum := m.Intercept
		for j, v := range row {
			sum += m.Coef[j] * v
		}
		out[i] = sum
	}
	return out, nil
}

// TreeRegressor is a single regression tree
type TreeRegressor struct {
	Tree      *Tree
	nFeatures int
}

// NewTreeRegressor validates the tree and wraps it as a model
func NewTreeRegressor(nFeatures int, tree *Tree) (*TreeRegressor, error) {
	if err := tree.Validate(nFeatures); err != nil {
		return nil, err
	}
	return &TreeRegressor{Tree: tree, nFeatures: nFeatures}, nil
}

func (m *TreeRegressor) NumFeatures() int { return m.nFeatures }

// Predict scores every row
func (m *TreeRegressor) Predict(X [][]float64) ([]float64, error) {
	if err := checkShape(X, m.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.Tree.Eval(row)
	}
	return out, nil
}

// TreeEnsemble exposes the tree with unit weight
func (m *TreeRegressor) TreeEnsemble() (*Ensemble, error) {
	return &Ensemble{Trees: []WeightedTree{{Tree: m.Tree, Weight: 1}}}, nil
}

// Forest is a random forest regressor: the mean of its trees
type Forest struct {
	Trees     []*Tree
	nFeatures int
}

// NewForest validates the trees and builds a forest
func NewForest(nFeatures int, trees ...*Tree) (*Forest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest: no trees")
	}
	for i, t := range trees {
		if err := t.Validate(nFeatures); err != nil {
			return nil, fmt.Errorf("forest tree %d: %w", i, err)
		}
	}
	return &Forest{Trees: trees, nFeatures: nFeatures}, nil
}

func (m *Forest) NumFeatures() int { return m.nFeatures }

// Predict scores every row
func (m *Forest) Predict(X [][]float64) ([]float64, error) {
	ens, _ := m.TreeEnsemble()
	return ens.predict(X, m.nFeatures)
}

// TreeEnsemble returns the trees each weighted 1/n
func (m *Forest) TreeEnsemble() (*Ensemble, error) {
	w := 1 / float64(len(m.Trees))
	ens := &Ensemble{Trees: make([]WeightedTree, len(m.Trees))}
	for i, t := range m.Trees {
		ens.Trees[i] = WeightedTree{Tree: t, Weight: w}
	}
	return ens, nil
}

// Boosting is a gradient boosted regressor: init + learning_rate * sum(trees)
type Boosting struct {
	Init         float64
	LearningRate float64
	Trees        []*Tree
	nFeatures    int
}

// NewBoosting validates the trees and builds a boosted model
func NewBoosting(nFeatures int, init, learningRate float64, trees ...*Tree) (*Boosting, error) {
	if len(trees) == 0 {
		return nil, errors.New("boosting: no trees")
	}
	for i, t := range trees {
		if err := t.Validate(nFeatures); err != nil {
			return nil, fmt.Errorf("boosting tree %d: %w", i, err)
		}
	}
	return &Boosting{Init: init, LearningRate: learningRate, Trees: trees, nFeatures: nFeatures}, nil
}

func (m *Boosting) NumFeatures() int { return m.nFeatures }

// Predict scores every row
func (m *Boosting) Predict(X [][]float64) ([]float64, error) {
	ens, _ := m.TreeEnsemble()
	return ens.predict(X, m.nFeatures)
}

// TreeEnsemble returns the trees weighted by the learning rate
func (m *Boosting) TreeEnsemble() (*Ensemble, error) {
	ens := &Ensemble{Offset: m.Init, Trees: make([]WeightedTree, len(m.Trees))}
	for i, t := range m.Trees {
		ens.Trees[i] = WeightedTree{Tree: t, Weight: m.LearningRate}
	}
	return ens, nil
}
