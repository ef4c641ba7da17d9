package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
)

var validateModelCmd = &cobra.Command{
	Use:   "validate-model",
	Short: "Check that the model matches the schema and explains the default row",
	RunE:  runValidateModel,
}

// runValidateModel loads the artifact against the catalogue, scores the
// default row and checks that its attribution adds up.
func runValidateModel(cmd *cobra.Command, _ []string) error {
	a, err := loadAnalyzer(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	result, err := a.Analyze(a.Catalogue().Defaults())
	if err != nil {
		return fmt.Errorf("score default row: %w", err)
	}
	if result.ExplanationError != nil {
		return fmt.Errorf("explain default row: %w", result.ExplanationError)
	}

	attr := result.Attribution
	residual := attr.Prediction - attr.Baseline - attr.Sum()
	if math.Abs(residual) > explain.ConsistencyTolerance*math.Max(1, math.Abs(attr.Prediction)) {
		return fmt.Errorf("%w: residual %g", explain.ErrInconsistent, residual)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model:      %s (%s)\n", a.ModelName(), a.ModelKind())
	fmt.Fprintf(out, "Features:   %d\n", len(result.Features.Names))
	fmt.Fprintf(out, "Default:    %.4f\n", result.Prediction)
	fmt.Fprintf(out, "Explainer:  %s (fallback=%t)\n", attr.Method, attr.Fallback)
	fmt.Fprintf(out, "Residual:   %.2e\n", residual)
	fmt.Fprintln(out, "OK")
	return nil
}
