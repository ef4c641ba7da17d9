package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
)

var schemaFlags struct {
	json bool
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List the input fields, their ranges and defaults",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaFlags.json, "json", false, "Print the catalogue as JSON")
}

func runSchema(cmd *cobra.Command, _ []string) error {
	c, err := loadCatalogue()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if schemaFlags.json {
		return writeJSON(out, c.Fields())
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tKIND\tRANGE / OPTIONS\tDEFAULT")
	for _, f := range c.Fields() {
		var domain string
		switch f.Kind() {
		case schema.KindNumeric:
			domain = fmt.Sprintf("[%g, %g] step %s", f.Numeric.Min, f.Numeric.Max, f.Step())
		case schema.KindCategorical:
			domain = strings.Join(f.Categorical.Options, " | ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", f.Name, f.Kind(), domain, f.Default())
	}
	return tw.Flush()
}
