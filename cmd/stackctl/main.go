// stackctl runs the prediction pipeline from the command line.
//
// Usage:
//
//	stackctl schema [--json]
//	stackctl encode -f values.yaml [--defaults]
//	stackctl predict -f values.yaml [--defaults] [--json]
//	stackctl explain -f values.yaml [--defaults] [--json]
//	stackctl chart -f values.yaml -o waterfall.png
//	stackctl validate-model
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	modelPath  string
	schemaPath string
	samples    int
	seed       int64
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Score and explain inputs against the stacking model",
	Long:  "stackctl encodes form values, scores them with the stacking regressor\nand attributes the prediction to each input feature.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.modelPath, "model", "models/stacking_regressor.json", "Path to the model artifact")
	f.StringVar(&rootFlags.schemaPath, "schema", "", "Path to a YAML field catalogue (default: built-in)")
	f.IntVar(&rootFlags.samples, "samples", 0, "Kernel explainer coalition budget (0 = automatic)")
	f.Int64Var(&rootFlags.seed, "seed", 0, "Kernel explainer sampling seed")
	f.StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(validateModelCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
