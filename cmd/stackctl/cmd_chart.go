package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/stacking-predict/internal/chart"
)

var chartFlags struct {
	inputFlags
	output     string
	maxDisplay int
	title      string
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render the attribution of a values file as a waterfall PNG",
	RunE:  runChart,
}

func init() {
	addInputFlags(chartCmd, &chartFlags.inputFlags)
	f := chartCmd.Flags()
	f.StringVarP(&chartFlags.output, "output", "o", "", "Output PNG path (required)")
	f.IntVar(&chartFlags.maxDisplay, "max-display", chart.DefaultMaxDisplay, "Bars before the rest collapse into one")
	f.StringVar(&chartFlags.title, "title", "", "Chart title")

	_ = chartCmd.MarkFlagRequired("output")
}

func runChart(cmd *cobra.Command, _ []string) error {
	if chartFlags.output == "" {
		return fmt.Errorf("an output path (-o) is required")
	}
	_, result, err := analyze(cmd, chartFlags.inputFlags)
	if err != nil {
		return err
	}
	if result.ExplanationError != nil {
		return fmt.Errorf("no attribution to chart: %w", result.ExplanationError)
	}

	png, err := chart.Waterfall(result.Attribution, chart.Options{
		MaxDisplay: chartFlags.maxDisplay,
		Title:      chartFlags.title,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(chartFlags.output, png, 0644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Chart: %s (prediction %.2f)\n", chartFlags.output, result.Prediction)
	return nil
}
