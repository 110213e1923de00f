package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tpf/internal/compiler"
	"tpf/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// generateFile is the pipeline template the round compiles.
var generateFile string

// generateOutput is the directory the staged artifacts are flushed into.
// Nothing is written there when any phase reports an error.
var generateOutput string

// generateSourceRoots lists additional roots scanned alongside the template.
var generateSourceRoots []string

// generateOrchestrator forces orchestrator artifacts even when the template
// declares no orchestrator block.
var generateOrchestrator bool

// generateWatch keeps the process alive and recompiles whenever the
// template changes on disk.
var generateWatch bool

// generateQuiet suppresses the spinner and the summary table.
// Useful for scripting and CI where only the exit code matters.
var generateQuiet bool

// watchDebounce coalesces the burst of filesystem events most editors
// emit for a single save into one recompile.
const watchDebounce = 500 * time.Millisecond

// generateCmd defines the generate command structure.
// This is the compiler entry point of tpf: it runs a full round over the
// template and writes the per-transport artifacts and wiring resources.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compile a pipeline template into transport artifacts",
	Long: `Runs a full compilation round over the pipeline template: Discovery,
Semantic Analysis, Target Resolution, Binding Construction, Rendering and
Order Emission. On success the generated services, clients and wiring
resources are written below the output directory; on any validation error
nothing is written and the diagnostics are printed instead.

With --watch the command stays in the foreground and recompiles whenever
the template file changes. A broken round in watch mode prints its
diagnostics and waits for the next save.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

// init registers the generate command and its flags with the root command.
func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "pipeline.yaml", "Pipeline template to compile")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "generated", "Directory the artifacts are written into")
	generateCmd.Flags().StringArrayVar(&generateSourceRoots, "source", nil, "Additional source root scanned alongside the template (repeatable)")
	generateCmd.Flags().BoolVar(&generateOrchestrator, "orchestrator", false, "Generate orchestrator artifacts even when the template declares none")
	generateCmd.Flags().BoolVar(&generateWatch, "watch", false, "Recompile whenever the template changes")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "Suppress the spinner and summary table")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Spinner and table own stdout; anything the compiler wants to say
	// beyond warnings goes through the diagnostics instead.
	logging.InitForCLI(logging.LevelWarn, os.Stderr)

	comp := compiler.New(compiler.Options{
		OutputDir:         generateOutput,
		SourceRoots:       generateSourceRoots,
		ForceOrchestrator: generateOrchestrator,
	})

	if !generateWatch {
		return generateOnce(comp)
	}
	return watchTemplate(cmd, comp)
}

// generateOnce runs a single round and prints the artifact summary.
func generateOnce(comp *compiler.Compiler) error {
	var s *spinner.Spinner
	if !generateQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Compiling %s...", generateFile)
		s.Start()
	}

	started := time.Now()
	result, err := comp.Compile(generateFile)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}

	if generateQuiet {
		return nil
	}

	fmt.Printf("%s Compiled %s in %s: %d step(s), %d artifact(s)\n",
		text.FgGreen.Sprint("✓"), generateFile,
		time.Since(started).Round(time.Millisecond),
		len(result.Round.Models), len(result.Artifacts))
	printArtifactSummary(result)

	for _, w := range result.Round.Diagnostics.Warnings() {
		fmt.Println(text.FgYellow.Sprint(w.String()))
	}
	return nil
}

// printArtifactSummary renders the generated artifacts as a table, one
// row per file with its role taken from the leading path segment.
func printArtifactSummary(result *compiler.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("ARTIFACT"),
		text.FgHiCyan.Sprint("ROLE"),
		text.FgHiCyan.Sprint("BYTES"),
	})
	for _, a := range result.Artifacts {
		role, _, _ := strings.Cut(a.Path, "/")
		t.AppendRow(table.Row{a.Path, role, len(a.Content)})
	}
	t.Render()
}

// watchTemplate recompiles on every debounced change of the template
// file until the command context is cancelled.
func watchTemplate(cmd *cobra.Command, comp *compiler.Compiler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting filesystem watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch registered on the file itself.
	dir := filepath.Dir(generateFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	compileAndReport(comp)
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", generateFile)

	recompile := make(chan struct{}, 1)
	var mu sync.Mutex
	var pending *time.Timer

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(watchDebounce, func() {
			select {
			case recompile <- struct{}{}:
			default:
			}
		})
	}

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(generateFile) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("Generate", "Template event %s on %s", event.Op, event.Name)
			schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Generate", err, "Filesystem watcher error")

		case <-recompile:
			compileAndReport(comp)
		}
	}
}

// compileAndReport is the watch-mode variant of generateOnce: diagnostics
// are printed rather than returned so a broken template does not end the
// watch session.
func compileAndReport(comp *compiler.Compiler) {
	if err := generateOnce(comp); err != nil {
		fmt.Println(text.FgRed.Sprint(err.Error()))
	}
}
