package model

import (
	"errors"
	"fmt"
)

// Estimator is a named base learner of a stacking model
type Estimator struct {
	Name  string
	Model Predictor
}

// Stacking feeds the predictions of its base estimators into a linear final
// estimator. Original features are not passed through.
type Stacking struct {
	Estimators []Estimator
	Final      *Linear
	nFeatures  int
}

// NewStacking checks that base estimators agree on the input width and that
// the final estimator has one coefficient per base estimator.
func NewStacking(estimators []Estimator, final *Linear) (*Stacking, error) {
	if len(estimators) == 0 {
		return nil, errors.New("stacking: no base estimators")
	}
	if final == nil {
		return nil, errors.New("stacking: missing final estimator")
	}
	if len(final.Coef) != len(estimators) {
		return nil, fmt.Errorf("stacking: final estimator has %d coefficients for %d base estimators", len(final.Coef), len(estimators))
	}
	n := estimators[0].Model.NumFeatures()
	for _, e := range estimators[1:] {
		if e.Model.NumFeatures() != n {
			return nil, fmt.Errorf("stacking: estimator %q expects %d features, want %d", e.Name, e.Model.NumFeatures(), n)
		}
	}
	return &Stacking{Estimators: estimators, Final: final, nFeatures: n}, nil
}

func (m *Stacking) NumFeatures() int { return m.nFeatures }

// Predict runs every base estimator on X and combines the results
func (m *Stacking) Predict(X [][]float64) ([]float64, error) {
	if err := checkShape(X, m.nFeatures); err != nil {
		return nil, err
	}
	meta := make([][]float64, len(X))
	for i := range meta {
		meta[i] = make([]float64, len(m.Estimators))
	}
	for j, e := range m.Estimators {
		preds, err := e.Model.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("estimator %q: %w", e.Name, err)
		}
		if len(preds) != len(X) {
			return nil, fmt.Errorf("estimator %q returned %d predictions for %d rows", e.Name, len(preds), len(X))
		}
		for i, p := range preds {
			meta[i][j] = p
		}
	}
	return m.Final.Predict(meta)
}

// TreeEnsemble folds the final estimator's coefficients into the base tree
// weights. It is only available when every base estimator is a tree model;
// otherwise it returns ErrUnsupportedModel.
func (m *Stacking) TreeEnsemble() (*Ensemble, error) {
	out := &Ensemble{Offset: m.Final.Intercept}
	for j, e := range m.Estimators {
		tm, ok := e.Model.(TreeModel)
		if !ok {
			return nil, fmt.Errorf("estimator %q is %s: %w", e.Name, Kind(e.Model), ErrUnsupportedModel)
		}
		ens, err := tm.TreeEnsemble()
		if err != nil {
			return nil, fmt.Errorf("estimator %q: %w", e.Name, err)
		}
		scaled := ens.Scale(m.Final.Coef[j])
		out.Offset += scaled.Offset
		out.Trees = append(out.Trees, scaled.Trees...)
	}
	return out, nil
}
