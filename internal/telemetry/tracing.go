// Package telemetry configures OpenTelemetry tracing for emergenced,
// wrapping per-agent-turn and model-dispatch work in spans so a trace
// backend can show the full lifecycle of a turn: context assembly,
// model dispatch, action execution.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "emergence.dev/engine"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider wires an OTLP gRPC exporter when endpoint is non-empty;
// an empty endpoint disables tracing (every span becomes a no-op). Returns
// a shutdown function the caller must invoke on exit.
func InitTraceProvider(ctx context.Context, endpoint, serviceName, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	if serviceName == "" {
		serviceName = "emergence-engine"
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartTurnSpan wraps one agent's full turn (context build, dispatch, action execution).
func StartTurnSpan(ctx context.Context, agentNumber int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.Int("emergence.agent_number", agentNumber)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartContextBuildSpan wraps prompt/context assembly for a turn.
func StartContextBuildSpan(ctx context.Context, agentNumber int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.build_context",
		trace.WithAttributes(attribute.Int("emergence.agent_number", agentNumber)),
	)
}

// StartDispatchSpan wraps a model-dispatch call, following OTel GenAI
// semantic conventions for the provider/model attributes.
func StartDispatchSpan(ctx context.Context, provider, model string, agentNumber int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gen_ai.chat",
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
			attribute.Int("emergence.agent_number", agentNumber),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndDispatchSpan enriches a dispatch span with token usage before ending it.
func EndDispatchSpan(span trace.Span, promptTokens, completionTokens int64, byokUsed bool) {
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", promptTokens),
		attribute.Int64("gen_ai.usage.output_tokens", completionTokens),
		attribute.Bool("emergence.byok_used", byokUsed),
	)
	span.End()
}

// StartActionSpan wraps action validation/execution for a turn.
func StartActionSpan(ctx context.Context, agentNumber int, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.action",
		trace.WithAttributes(
			attribute.Int("emergence.agent_number", agentNumber),
			attribute.String("emergence.action_kind", kind),
		),
	)
}

// EndActionSpan enriches an action span with its outcome before ending it.
func EndActionSpan(span trace.Span, valid bool, reason string) {
	span.SetAttributes(attribute.Bool("emergence.action_valid", valid))
	if !valid {
		span.SetAttributes(attribute.String("emergence.action_reject_reason", reason))
	}
	span.End()
}
