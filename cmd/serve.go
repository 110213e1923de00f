package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tpf/internal/config"
	"tpf/internal/model"
	"tpf/internal/server"
	"tpf/internal/step"
	"tpf/pkg/logging"

	"github.com/spf13/cobra"
)

// serveOrderFile is the generated order resource naming the steps to run.
var serveOrderFile string

// serveConfigFile is the YAML configuration file merged over the built-in
// defaults.
var serveConfigFile string

// serveAddress overrides the listen address from the configuration.
var serveAddress string

// serveDebug enables verbose logging across the host.
var serveDebug bool

// stepRegistry collects the step instances linked into this binary.
// Generated services and hand-written steps register here before Execute
// runs; the host freezes it on startup.
var stepRegistry = step.NewRegistry()

// StepRegistry returns the registry the development host loads its steps
// from. main() registers every step instance here before calling Execute.
func StepRegistry() *step.Registry {
	return stepRegistry
}

// serveCmd defines the serve command structure.
// It runs the development host: the composed pipeline behind an HTTP
// surface with health gating, cache policy enforcement and telemetry.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development pipeline host",
	Long: `Starts the development host over the steps registered in this binary.

The host loads the generated order resource, resolves every named step in
the registry, and serves the pipeline over HTTP:

  POST /v1/pipeline/execute   run the pipeline over one input
  POST /v1/pipeline/stream    run the pipeline over an input array, NDJSON out
  GET  /v1/pipeline/steps     describe the planned stages
  GET  /healthz               liveness
  GET  /readyz                readiness (startup gate state)
  GET  /metrics               prometheus metrics when telemetry is enabled

Requests pass the context interceptor, so x-tpf-version, x-tpf-replay and
x-tpf-cache-policy headers bind to the call and every response carries
x-tpf-cache-status. The host notifies systemd readiness once the startup
gate resolves HEALTHY and shuts down gracefully on SIGINT or SIGTERM.

Configuration merges in ascending precedence: built-in defaults, the
--config file, the generated orchestrator-clients.properties next to the
order resource, and TPF_PIPELINE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// init registers the serve command and its flags with the root command.
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOrderFile, "file", "f", filepath.Join("generated", filepath.FromSlash(model.OrderResourcePath)), "Generated order resource (order.json)")
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "YAML configuration file")
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (overrides the configured server.address)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.InitForServer(level, os.Stderr)

	order, err := loadOrderResource(serveOrderFile)
	if err != nil {
		return err
	}

	// The generated client wiring sits next to the order resource.
	properties := filepath.Join(filepath.Dir(serveOrderFile), "orchestrator-clients.properties")
	cfg, err := config.Load(config.LoadOptions{
		File:       serveConfigFile,
		Properties: properties,
	})
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := server.New(ctx, server.Options{
		Config:   cfg,
		Order:    order,
		Registry: stepRegistry,
		Version:  GetVersion(),
	})
	if err != nil {
		return err
	}
	defer host.Close()

	return host.Run(ctx)
}

// loadOrderResource reads and decodes the generated order.json.
func loadOrderResource(path string) (model.OrderedStepList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening order resource: %w", err)
	}
	defer f.Close()

	order, err := model.DecodeOrder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return order, nil
}
