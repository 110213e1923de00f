// Package logging provides a structured logging system for tpf with unified
// log handling and flexible output formatting.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// # Architecture
//
// The logging system is built around these core concepts:
//
// ## Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// ## Structured Logging
// All log entries include:
//   - Timestamp with nanosecond precision
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional formatting
//   - Optional error information
//
// # Usage Examples
//
// ## Initialization
//
//	import "tpf/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("HealthGate", "Dependent service probe slow")
//	logging.Error("Runner", err, "Step %s failed", stepName)
//
// ## JSON Output
//
//	// Serve mode logs JSON for aggregation systems
//	logging.InitForServer(logging.LevelInfo, os.Stdout)
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Compiler**: Compilation round orchestration
//   - **Discovery**: Template loading and declaration scanning
//   - **Render**: Artifact rendering
//   - **Runner**: Pipeline composition and per-step scheduling
//   - **Execution**: Run lifecycle and result delivery
//   - **HealthGate**: Startup readiness probing
//   - **KillSwitch**: Retry-amplification guard
//   - **CachePolicy**: Per-item cache policy enforcement
//   - **Context**: Cross-hop context propagation
//   - **Server**: Pipeline dev host
//   - **Repl**: Interactive client
//
// # Integration with slog
//
// The logging system integrates with Go's standard slog package:
//   - Uses slog.Handler implementations for output formatting
//   - Converts custom LogLevel to slog.Level for compatibility
//   - Provides fallback to global slog logger when needed
//
// # Performance Characteristics
//
//   - Direct write to output with minimal overhead
//   - Level filtering at handler level for efficiency
//   - No memory allocation for filtered-out messages
//
// # Thread Safety
//
// The logging system is fully thread-safe:
//   - Safe concurrent logging from multiple goroutines
//   - Protected access to shared logging state
//   - No data races in configuration
package logging
