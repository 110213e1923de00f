// Package model defines the intermediate representation shared between the
// compiler and the runtime.
//
// The IR is produced once per compilation round and treated as read-only
// afterwards. Build-time phases construct StepModel values through
// NewStepModel, which enforces the structural invariants; later phases may
// add sibling models (synthetic side-effect steps from aspect expansion)
// but never rewrite existing ones. At run time the models loaded from the
// ordered-step resource are shared freely across goroutines.
//
// Core types:
//
//   - StepModel: semantic description of a single step (identity, streaming
//     shape, type mappings, execution mode, enabled targets, deployment
//     role, parallelism hints).
//   - AspectModel: a cross-cutting concern attached around steps; cache and
//     persistence aspects expand into synthetic side-effect steps.
//   - OrchestratorModel: the pipeline entry point declaration.
//   - Binding variants: transport-specific views derived from a StepModel,
//     consumed by exactly one renderer each.
//   - OrderedStepList: the canonical step ordering emitted at build time
//     under META-INF/pipeline/order.json and loaded at startup.
package model
