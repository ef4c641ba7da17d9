package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/stacking-predict/internal/types"
)

var encodeFlags inputFlags

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Validate a values file and print the encoded feature vector",
	RunE:  runEncode,
}

func init() {
	addInputFlags(encodeCmd, &encodeFlags)
}

func addInputFlags(cmd *cobra.Command, f *inputFlags) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML or JSON file mapping field names to values")
	cmd.Flags().BoolVar(&f.defaults, "defaults", false, "Fill missing fields with their defaults")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print JSON instead of a table")
}

func runEncode(cmd *cobra.Command, _ []string) error {
	a, err := loadAnalyzer(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	values, err := readValues(a.Catalogue(), encodeFlags.file, encodeFlags.defaults)
	if err != nil {
		return err
	}
	fv, err := a.Encode(values)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if encodeFlags.json {
		return writeJSON(out, types.EncodeResponse{Features: fv})
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, name := range fv.Names {
		fmt.Fprintf(tw, "%d\t%s\t%g\n", i, name, fv.Values[i])
	}
	return tw.Flush()
}
