package cmd

import (
	"fmt"
	"os"

	"tpf/internal/compiler"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// stepsFile is the pipeline template the steps are read from.
var stepsFile string

// stepsCmd groups the step inspection subcommands. The subcommands run
// template validation only, so they work without generated artifacts.
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Inspect the steps of a pipeline template",
	Long: `Reads the pipeline template, runs Discovery and Semantic Analysis,
and prints what the compiler planned: the analyzed steps including the
synthetic side-effect steps inserted by aspect expansion, or the
execution order the round would emit.`,
}

// stepsListCmd prints one table row per planned step.
var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the planned steps as a table",
	Args:  cobra.NoArgs,
	RunE:  runStepsList,
}

// stepsOrderCmd prints the planned execution order, one FQN per line.
var stepsOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the planned execution order",
	Args:  cobra.NoArgs,
	RunE:  runStepsOrder,
}

func init() {
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.AddCommand(stepsListCmd)
	stepsCmd.AddCommand(stepsOrderCmd)

	stepsCmd.PersistentFlags().StringVarP(&stepsFile, "file", "f", "pipeline.yaml", "Pipeline template to inspect")
}

// validateForSteps runs the front half of a round and surfaces its
// diagnostics the same way validate does.
func validateForSteps() (*compiler.Round, error) {
	comp := compiler.New(compiler.Options{})
	round, err := comp.Validate(stepsFile)
	if err != nil {
		if round != nil {
			printDiagnostics(round)
		}
		return nil, err
	}
	return round, nil
}

func runStepsList(cmd *cobra.Command, args []string) error {
	round, err := validateForSteps()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("STEP"),
		text.FgHiCyan.Sprint("SHAPE"),
		text.FgHiCyan.Sprint("MODE"),
		text.FgHiCyan.Sprint("ORDERING"),
		text.FgHiCyan.Sprint("SAFETY"),
		text.FgHiCyan.Sprint("SOURCE"),
	})
	for _, draft := range round.StepDrafts() {
		source := "template"
		if draft.Synthetic {
			source = "aspect:" + draft.OwningAspect
		}
		t.AppendRow(table.Row{
			draft.Identity.FQN(),
			string(draft.Shape),
			string(draft.Mode),
			string(draft.Hints.Ordering),
			string(draft.Hints.Safety),
			source,
		})
	}
	t.Render()
	return nil
}

func runStepsOrder(cmd *cobra.Command, args []string) error {
	round, err := validateForSteps()
	if err != nil {
		return err
	}

	for i, fqn := range round.PlannedOrder() {
		fmt.Printf("%3d  %s\n", i+1, fqn)
	}
	return nil
}
