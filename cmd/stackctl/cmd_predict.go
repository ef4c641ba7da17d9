package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/types"
)

var predictFlags inputFlags

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a values file",
	RunE:  runPredict,
}

var explainFlags struct {
	inputFlags
	top int
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Score a values file and attribute the prediction to each feature",
	RunE:  runExplain,
}

func init() {
	addInputFlags(predictCmd, &predictFlags)
	addInputFlags(explainCmd, &explainFlags.inputFlags)
	explainCmd.Flags().IntVar(&explainFlags.top, "top", 0, "Show only the N largest contributors (0 = all)")
}

func analyze(cmd *cobra.Command, f inputFlags) (*analysis.Analyzer, *analysis.Result, error) {
	a, err := loadAnalyzer(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	values, err := readValues(a.Catalogue(), f.file, f.defaults)
	if err != nil {
		return nil, nil, err
	}
	result, err := a.Analyze(values)
	if err != nil {
		return nil, nil, err
	}
	return a, result, nil
}

func runPredict(cmd *cobra.Command, _ []string) error {
	a, result, err := analyze(cmd, predictFlags)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if predictFlags.json {
		resp := types.NewPredictResponse(a.ModelName(), result)
		resp.Attribution = nil
		resp.Contributors = nil
		return writeJSON(out, resp)
	}
	fmt.Fprintf(out, "Predicted value: %.2f\n", result.Prediction)
	return nil
}

func runExplain(cmd *cobra.Command, _ []string) error {
	a, result, err := analyze(cmd, explainFlags.inputFlags)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if explainFlags.json {
		return writeJSON(out, types.NewPredictResponse(a.ModelName(), result))
	}

	fmt.Fprintf(out, "Predicted value: %.2f\n", result.Prediction)
	if result.ExplanationError != nil {
		fmt.Fprintf(out, "Explanation unavailable: %v\n", result.ExplanationError)
		return nil
	}
	attr := result.Attribution
	note := ""
	if attr.Fallback {
		note = " (fallback)"
	}
	fmt.Fprintf(out, "Explainer: %s%s\n", attr.Method, note)
	fmt.Fprintf(out, "Baseline:  %.4f\n", attr.Baseline)
	fmt.Fprintf(out, "Residual:  %.2e\n\n", attr.Prediction-attr.Baseline-attr.Sum())
	return writeContributors(out, analysis.RankContributors(attr), explainFlags.top)
}

func writeContributors(w io.Writer, ranked []analysis.Contributor, top int) error {
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "FEATURE\tVALUE\tCONTRIBUTION\t")
	for _, c := range ranked {
		fmt.Fprintf(tw, "%s\t%g\t%+.4f\t\n", c.Feature, c.Data, c.Contribution)
	}
	return tw.Flush()
}
