package cmd

import (
	"fmt"

	"tpf/internal/compiler"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// validateFile is the pipeline template to check.
var validateFile string

// validateSourceRoots lists additional roots scanned alongside the template.
var validateSourceRoots []string

// validateCmd defines the validate command structure.
// It runs the front half of a round (Discovery and Semantic Analysis)
// and prints every diagnostic without generating anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a pipeline template without generating artifacts",
	Long: `Runs Discovery and Semantic Analysis over the pipeline template and
prints the collected diagnostics. Warnings do not fail validation; any
error-severity finding does, with exit code 2.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "pipeline.yaml", "Pipeline template to validate")
	validateCmd.Flags().StringArrayVar(&validateSourceRoots, "source", nil, "Additional source root scanned alongside the template (repeatable)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	comp := compiler.New(compiler.Options{SourceRoots: validateSourceRoots})

	round, err := comp.Validate(validateFile)
	if round != nil {
		printDiagnostics(round)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s %s is valid: %d step(s) planned\n",
		text.FgGreen.Sprint("✓"), validateFile, len(round.StepDrafts()))
	return nil
}

// printDiagnostics writes every finding in recording order, colored by
// severity.
func printDiagnostics(round *compiler.Round) {
	for _, d := range round.Diagnostics.Items() {
		line := d.String()
		if d.Severity == compiler.SeverityError {
			fmt.Println(text.FgRed.Sprint(line))
		} else {
			fmt.Println(text.FgYellow.Sprint(line))
		}
	}
}
