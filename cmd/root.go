package cmd

import (
	"errors"
	"os"

	"tpf/internal/compiler"
	"tpf/internal/runner"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
// They are stable so wrapper scripts and CI jobs can branch on the failure class.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeValidation indicates the pipeline template failed compilation.
	ExitCodeValidation = 2
	// ExitCodeConfiguration indicates the runtime configuration rejected the pipeline.
	ExitCodeConfiguration = 3
)

// rootCmd represents the base command for the tpf application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tpf",
	Short: "Compile and run typed reactive pipelines",
	Long: `tpf turns an annotated pipeline template into transport artifacts
(gRPC and REST services, orchestrator clients, plugin hosts) and runs
the composed pipeline behind a development host with health gating,
cache policies and telemetry.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	// This is useful for providing cleaner error output to the user.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
// This can be used by other commands to access the build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles subcommands and flags.
// This function is called by main.main().
func Execute() {
	// SetVersionTemplate defines a custom template for displaying the version.
	// This is used when the --version flag is invoked.
	rootCmd.SetVersionTemplate(`{{printf "tpf version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Check for specific error types and return appropriate exit codes
		exitCode := getExitCode(err)
		os.Exit(exitCode)
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	// Template problems: every compile diagnostic travels inside a CompileError.
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return ExitCodeValidation
	}

	// Runtime planning problems: invalid tunables, duplicate steps,
	// forbidden parallelism.
	var configErr *runner.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitCodeConfiguration
	}

	// Default to general error
	return ExitCodeError
}

// init is a special Go function that is executed when the package is initialized.
// It is used here to add subcommands to the root command.
func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
