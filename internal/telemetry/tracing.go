package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tpf/pipeline"

// Tracing wraps the optional otel tracer. Spans are recorded per run and,
// when PerItem is enabled, per item application. Disabled tracing costs a
// single bool check per call.
type Tracing struct {
	enabled bool
	perItem bool
	tracer  trace.Tracer
}

// NewTracing returns a tracing wrapper. The exporter setup is the host's
// responsibility; this only creates spans against the global provider.
func NewTracing(enabled, perItem bool) *Tracing {
	t := &Tracing{enabled: enabled, perItem: perItem}
	if enabled {
		t.tracer = otel.Tracer(tracerName)
	}
	return t
}

// StartRun opens the per-run span. The returned end function records the
// final error, if any, and must be called exactly once.
func (t *Tracing) StartRun(ctx context.Context, runID string) (context.Context, func(error)) {
	if t == nil || !t.enabled {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("tpf.run_id", runID)))
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

// StartItem opens a per-item span under the run span when per-item
// tracing is on.
func (t *Tracing) StartItem(ctx context.Context, stepName string) (context.Context, func(error)) {
	if t == nil || !t.enabled || !t.perItem {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "pipeline.step.item",
		trace.WithAttributes(attribute.String("tpf.step", stepName)))
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
