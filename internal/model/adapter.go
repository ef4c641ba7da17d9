package model

import (
	"fmt"
	"math"
)

// PredictionError wraps any failure raised while scoring a row
type PredictionError struct {
	Cause error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Cause)
}

func (e *PredictionError) Unwrap() error { return e.Cause }

// Adapter scores single encoded rows against a loaded model
type Adapter struct {
	model Predictor
}

// NewAdapter wraps a model for single-row scoring
func NewAdapter(m Predictor) *Adapter {
	return &Adapter{model: m}
}

// Model returns the wrapped model
func (a *Adapter) Model() Predictor { return a.model }

// Predict submits x as a batch of one and returns the single prediction.
// Every failure, including a panic inside the model, is returned as a
// *PredictionError.
func (a *Adapter) Predict(x []float64) (y float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PredictionError{Cause: fmt.Errorf("model panicked: %v", r)}
		}
	}()

	if len(x) != a.model.NumFeatures() {
		return 0, &PredictionError{Cause: fmt.Errorf("got %d features, model expects %d: %w", len(x), a.model.NumFeatures(), ErrShapeMismatch)}
	}

	preds, perr := a.model.Predict([][]float64{x})
	if perr != nil {
		return 0, &PredictionError{Cause: perr}
	}
	if len(preds) != 1 {
		return 0, &PredictionError{Cause: fmt.Errorf("model returned %d predictions for one row", len(preds))}
	}
	if math.IsNaN(preds[0]) || math.IsInf(preds[0], 0) {
		return 0, &PredictionError{Cause: fmt.Errorf("model returned non-finite prediction %v", preds[0])}
	}
	return preds[0], nil
}
