// Package server is the development pipeline host. It assembles the
// runtime pieces behind one HTTP surface: the execution service over the
// registered steps, the startup health gate, the cache provider with the
// per-request policy enforcer, and telemetry. Generated deployments ship
// their own transport; this host exists so a pipeline can be exercised
// end to end without one.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tpf/internal/cache"
	"tpf/internal/cachepolicy"
	"tpf/internal/config"
	"tpf/internal/execution"
	"tpf/internal/health"
	"tpf/internal/model"
	"tpf/internal/runner"
	"tpf/internal/step"
	"tpf/internal/telemetry"
	"tpf/pkg/logging"
)

// Shutdown budget once a termination signal arrives. In-flight runs get
// this long to drain before the listener is torn down.
const shutdownTimeout = 15 * time.Second

// Options assemble one host.
type Options struct {
	// Config is the merged runtime configuration.
	Config config.PipelineConfig

	// Order is the decoded order resource naming the steps to run.
	Order model.OrderedStepList

	// Registry holds the step instances linked into the binary. Every
	// name in Order must resolve here. The host freezes it.
	Registry *step.Registry

	// Version is reported by the health endpoint.
	Version string
}

// Server hosts one composed pipeline over HTTP.
type Server struct {
	cfg     config.PipelineConfig
	order   model.OrderedStepList
	exec    *execution.Service
	gate    *health.Gate
	cache   cache.Provider
	keyFn   cache.KeyFunc
	metrics http.Handler
	version string
	handler http.Handler
}

// New wires the host. The step registry is frozen, the cache provider is
// connected, and the execution service is assembled; the health gate
// starts probing immediately so the first call does not pay for it.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("server: step registry is required")
	}
	if len(opts.Order) == 0 {
		return nil, &runner.ConfigurationError{Reason: "order resource names no steps"}
	}
	opts.Registry.Freeze()

	cfg := opts.Config

	provider, err := cache.Select(ctx, cfg.Cache.Provider, cache.RedisOptions{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting cache provider: %w", err)
	}

	metricsProvider := telemetry.SelectProvider(cfg.Telemetry.Enabled && cfg.Telemetry.Metrics.Enabled, "prometheus")
	instruments := telemetry.NewInstruments(metricsProvider)
	tracing := telemetry.NewTracing(cfg.Telemetry.Enabled && cfg.Telemetry.Tracing.Enabled, cfg.Telemetry.Tracing.PerItem)

	gate := health.NewGate(cfg.GateConfig())
	go gate.Start(ctx, buildProbers(cfg))

	exec, err := execution.New(execution.Options{
		Steps: registryLoader(opts.Registry, opts.Order),
		Gate:  gate,
		Runner: runner.Options{
			Parallelism:    cfg.ProfileParallelism(),
			MaxConcurrency: cfg.MaxConcurrency,
			Order:          opts.Order,
			Configs:        cfg.StepConfigs(),
			Instruments:    instruments,
			KillSwitch:     cfg.GuardConfig(),
			Enforcer:       cachepolicy.New(cfg.CachePolicy()),
			Tracing:        tracing,
		},
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		order:   opts.Order,
		exec:    exec,
		gate:    gate,
		cache:   provider,
		keyFn:   cache.DefaultKeyGenerator("tpf"),
		version: opts.Version,
	}
	if hp, ok := metricsProvider.(telemetry.HandlerProvider); ok {
		s.metrics = hp.MetricsHandler()
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the assembled HTTP surface, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
// systemd readiness is signalled once the startup gate resolves HEALTHY.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Address
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go s.notifyReady(ctx)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Pipeline host listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Server", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// notifyReady tells systemd the host is ready once the gate resolves
// HEALTHY. Outside systemd the notification is a silent no-op.
func (s *Server) notifyReady(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.gate.Resolved():
	}
	if s.gate.State() != health.StateHealthy {
		return
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Server", "systemd notification failed: %v", err)
	} else if ok {
		logging.Debug("Server", "systemd READY notification sent")
	}
}

// Close releases the cache provider connection.
func (s *Server) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// registryLoader resolves the ordered step names against the registry.
// Every missing name is reported at once so a broken deployment shows
// the full gap, not the first hole.
func registryLoader(reg *step.Registry, order model.OrderedStepList) execution.Loader {
	return func(ctx context.Context) ([]step.Step, error) {
		steps := make([]step.Step, 0, len(order))
		var missing []string
		for _, fqn := range order {
			s, ok := reg.Lookup(fqn)
			if !ok {
				missing = append(missing, fqn)
				continue
			}
			steps = append(steps, s)
		}
		if len(missing) > 0 {
			return nil, &runner.ConfigurationError{
				Reason: fmt.Sprintf("order resource names unregistered step(s): %s", strings.Join(missing, ", ")),
			}
		}
		return steps, nil
	}
}

// buildProbers derives the startup probes from the configuration: one
// connectivity probe per orchestrator client module plus the redis
// backend when it is the configured provider.
func buildProbers(cfg config.PipelineConfig) []health.Prober {
	var probers []health.Prober
	for module, client := range cfg.Clients {
		addr := dialAddr(client.URL)
		if addr == "" {
			continue
		}
		probers = append(probers, health.NewDialProber("module/"+module, "tcp", addr, client.RequestTimeout()))
	}
	if strings.EqualFold(cfg.Cache.Provider, "redis") && cfg.Cache.Redis.Addr != "" {
		probers = append(probers, health.NewDialProber("cache/redis", "tcp", cfg.Cache.Redis.Addr, 0))
	}
	return probers
}

// dialAddr extracts host:port from a client URL, defaulting the port by
// scheme so DialProber gets a complete address.
func dialAddr(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return net.JoinHostPort(u.Hostname(), "443")
	default:
		return net.JoinHostPort(u.Hostname(), "80")
	}
}
