// Package config loads and validates the runtime configuration of a
// deployed pipeline.
//
// # Source ladder
//
// Configuration merges from four sources in ascending ordinal; a later
// source overrides an earlier one key by key:
//
//	0   built-in defaults (Default)
//	50  YAML configuration file, keys under the pipeline: root
//	90  META-INF/pipeline/orchestrator-clients.properties, emitted by
//	    the compiler next to order.json
//	100 environment variables with the TPF_PIPELINE_ prefix
//
// # File format
//
//	pipeline:
//	  defaults:
//	    retry-limit: 3
//	    retry-wait-ms: 2000
//	    max-backoff: 30s
//	    backpressure-buffer-capacity: 128
//	    backpressure-strategy: BUFFER
//	  parallelism: AUTO
//	  max-concurrency: 128
//	  step:
//	    "com.example.geo.FetchWaypoints":
//	      retry-limit: 5
//	      parallel: SEQUENTIAL
//	  health:
//	    startup-timeout: 5m
//	  cache:
//	    provider: redis
//	    policy: PREFER_CACHE
//	    redis:
//	      addr: localhost:6379
//	  kill-switch:
//	    retry-amplification:
//	      enabled: true
//	      window: 30s
//
// # Flat keys
//
// The properties and environment sources address the same tree through
// flat keys. Properties use the full dotted form with the pipeline
// prefix, for example pipeline.defaults.retry-limit or
// pipeline.step."com.example.geo.FetchWaypoints".retry-limit.
// Environment variables drop dots and dashes for underscores:
// TPF_PIPELINE_DEFAULTS_RETRY_LIMIT, TPF_PIPELINE_MAX_CONCURRENCY,
// TPF_PIPELINE_CLIENTS_GEO_URL. Per-step overrides need dots in the
// key and are therefore only reachable through YAML and properties.
//
// Unknown pipeline keys fail the load so a typo never silently keeps a
// default. The merged tree is validated once, after all sources have
// applied.
package config
