package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/explain"
	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
	"github.com/ZanzyTHEbar/stacking-predict/internal/monitoring"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

// inputFlags are shared by every command that reads a values file
type inputFlags struct {
	file     string
	defaults bool
	json     bool
}

func loadCatalogue() (*schema.Catalogue, error) {
	if rootFlags.schemaPath == "" {
		return schema.Default(), nil
	}
	c, err := schema.Load(rootFlags.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return c, nil
}

func newLogger(w io.Writer) *monitoring.Logger {
	return monitoring.NewLoggerTo(w, monitoring.ParseLevel(rootFlags.logLevel))
}

func loadAnalyzer(logs io.Writer) (*analysis.Analyzer, error) {
	catalogue, err := loadCatalogue()
	if err != nil {
		return nil, err
	}
	artifact, err := model.LoadArtifact(rootFlags.modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	opts := explain.Options{KernelSamples: rootFlags.samples, Seed: rootFlags.seed}
	a, err := analysis.NewAnalyzer(catalogue, artifact, opts, newLogger(logs).Logger)
	if err != nil {
		return nil, fmt.Errorf("model does not match schema: %w", err)
	}
	return a, nil
}

// readValues loads a YAML or JSON map of field values. With fillDefaults,
// fields missing from the file take their catalogue default. An empty path
// with fillDefaults scores the default row.
func readValues(c *schema.Catalogue, path string, fillDefaults bool) (schema.Values, error) {
	if path == "" {
		if !fillDefaults {
			return nil, fmt.Errorf("a values file (-f) or --defaults is required")
		}
		return c.Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse values %s: %w", path, err)
	}

	values := schema.Coerce(raw)
	if fillDefaults {
		merged := c.Defaults()
		maps.Copy(merged, values)
		values = merged
	}
	return values, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
