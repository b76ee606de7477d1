package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestInitTraceProviderNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := InitTraceProvider(context.Background(), "", "emergence-engine", "v0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestStartTurnSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartTurnSpan(context.Background(), 7)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "agent.turn" {
		t.Errorf("span name = %q, want agent.turn", spans[0].Name)
	}

	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "emergence.agent_number" && a.Value.AsInt64() == 7 {
			found = true
		}
	}
	if !found {
		t.Error("missing emergence.agent_number attribute")
	}
}

func TestDispatchSpanRecordsGenAIAttributes(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartDispatchSpan(context.Background(), "anthropic", "claude-sonnet", 3)
	EndDispatchSpan(span, 1000, 500, false)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "gen_ai.chat" {
		t.Errorf("span name = %q, want gen_ai.chat", spans[0].Name)
	}

	var foundModel, foundSystem, foundTokens bool
	for _, a := range spans[0].Attributes {
		switch string(a.Key) {
		case "gen_ai.request.model":
			foundModel = a.Value.AsString() == "claude-sonnet"
		case "gen_ai.system":
			foundSystem = a.Value.AsString() == "anthropic"
		case "gen_ai.usage.input_tokens":
			foundTokens = a.Value.AsInt64() == 1000
		}
	}
	if !foundModel || !foundSystem || !foundTokens {
		t.Errorf("missing expected GenAI attributes: model=%v system=%v tokens=%v", foundModel, foundSystem, foundTokens)
	}
}

func TestActionSpanRecordsRejectReasonWhenInvalid(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartActionSpan(context.Background(), 2, "trade")
	EndActionSpan(span, false, "insufficient inventory")

	spans := exporter.GetSpans()
	var foundReason bool
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "emergence.action_reject_reason" && a.Value.AsString() == "insufficient inventory" {
			foundReason = true
		}
	}
	if !foundReason {
		t.Error("expected reject reason attribute on invalid action span")
	}
}

func TestNestedTurnAndContextSpansShareTrace(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, turnSpan := StartTurnSpan(context.Background(), 1)
	_, ctxSpan := StartContextBuildSpan(ctx, 1)
	ctxSpan.End()
	turnSpan.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	childStub := spans[0]
	parentStub := spans[1]
	if childStub.Parent.TraceID() != parentStub.SpanContext.TraceID() {
		t.Error("context-build span should share trace ID with turn span")
	}
}
