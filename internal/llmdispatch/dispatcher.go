package llmdispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/drmixer/emergence/internal/action"
	"github.com/drmixer/emergence/internal/budget"
	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/models"
	"github.com/drmixer/emergence/internal/runtimeconfig"
	"github.com/drmixer/emergence/internal/telemetry"
)

// Dispatcher implements the model dispatch contract end to end (spec
// §4.3): resolve, soft-budget check, bounded retry with backoff, usage
// recording, and a guaranteed fallback on any failure path.
type Dispatcher struct {
	config   *runtimeconfig.Service
	budget   *budget.Service
	primary  ProviderClient
	fallback ProviderClient
}

// New creates a Dispatcher. fallback is used whenever primary exhausts
// its retries or the soft budget blocks the call; it is typically a
// RoutineProviderClient.
func New(cfg *runtimeconfig.Service, bud *budget.Service, primary, fallback ProviderClient) *Dispatcher {
	return &Dispatcher{config: cfg, budget: bud, primary: primary, fallback: fallback}
}

// Dispatch resolves req's model_type, calls the primary provider under a
// per-call timeout with bounded exponential-backoff retries on transient
// errors, records every attempt in LlmUsage, and returns either the
// produced action or a fallback action. The returned error is always nil:
// a provider failure yields the fallback action, and a failure to record
// a usage row is logged rather than returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (action.Action, error) {
	provider, resolvedModel, err := resolve(ctx, d.config, req.ModelType)
	if err != nil {
		return d.recordAndFallback(ctx, req, "unknown", string(req.ModelType), 0, "validation_failure")
	}

	ctx, span := telemetry.StartDispatchSpan(ctx, provider, resolvedModel, req.AgentNumber)
	var spanTokens Response
	defer func() {
		telemetry.EndDispatchSpan(span, int64(spanTokens.PromptTokens), int64(spanTokens.CompletionTokens), req.BYOKUsed)
	}()

	if blocked, reason := d.softBudgetBlocks(ctx); blocked {
		slog.Warn("dispatch blocked by soft budget", "agent", req.AgentNumber, "reason", reason)
		return d.recordAndFallback(ctx, req, provider, resolvedModel, 0, "budget_exceeded")
	}

	var lastErr error
	backoff := BaseBackoff
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
		resp, err := d.primary.Call(callCtx, provider, resolvedModel, req)
		cancel()

		if err == nil {
			metrics.DispatchCallsTotal.WithLabelValues(provider, "success").Inc()
			metrics.ObserveDispatch(provider, time.Duration(resp.LatencyMillis)*time.Millisecond)
			d.recordUsage(ctx, req, resp, true, false, "")
			spanTokens = resp
			return resp.Action, nil
		}

		lastErr = err
		if IsPermanent(err) {
			metrics.DispatchCallsTotal.WithLabelValues(provider, "error").Inc()
			return d.recordAndFallback(ctx, req, provider, resolvedModel, 0, "permanent_provider")
		}

		if attempt < MaxRetries {
			d.recordUsage(ctx, req, Response{Provider: provider, ResolvedModel: resolvedModel}, false, false, "transient_provider")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return d.recordAndFallback(ctx, req, provider, resolvedModel, 0, "transient_provider")
			}
			backoff *= 2
		}
	}

	slog.Warn("dispatch exhausted retries", "agent", req.AgentNumber, "provider", provider, "error", lastErr)
	metrics.DispatchCallsTotal.WithLabelValues(provider, "fallback").Inc()
	return d.recordAndFallback(ctx, req, provider, resolvedModel, 0, "transient_provider")
}

// softBudgetBlocks consults the day snapshot against LLM_DAILY_BUDGET_USD_SOFT.
// Crossing the soft threshold throttles by falling back rather than
// stopping the run outright — the hard threshold is the guardrail's job.
func (d *Dispatcher) softBudgetBlocks(ctx context.Context) (bool, string) {
	soft, err := d.config.GetFloat(ctx, "LLM_DAILY_BUDGET_USD_SOFT")
	if err != nil {
		return false, ""
	}
	snap, err := d.budget.GetSnapshot(ctx, clock.Now())
	if err != nil {
		return false, ""
	}
	if snap.TotalCostUSD > soft {
		return true, "soft budget exceeded"
	}
	return false, ""
}

func (d *Dispatcher) recordAndFallback(ctx context.Context, req Request, provider, resolvedModel string, latencyMillis int, errorType string) (action.Action, error) {
	resp, err := d.fallback.Call(ctx, provider, resolvedModel, req)
	if err != nil {
		// The routine fallback is defined never to fail; treat it as
		// the canonical idle action if it somehow does.
		resp = Response{Action: action.Action{Kind: action.KindIdle}, Provider: provider, ResolvedModel: resolvedModel}
	}
	d.recordUsage(ctx, req, resp, false, true, errorType)
	return resp.Action, nil
}

func (d *Dispatcher) recordUsage(ctx context.Context, req Request, resp Response, success, fallbackUsed bool, errorType string) {
	usage := models.LlmUsage{
		Day:              clock.Now(),
		Provider:         resp.Provider,
		ResolvedModel:    resp.ResolvedModel,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		LatencyMillis:    resp.LatencyMillis,
		Success:          success,
		ErrorType:        errorType,
		FallbackUsed:     fallbackUsed,
		BYOKUsed:         req.BYOKUsed,
		RunID:            req.RunID,
		AgentNumber:      &req.AgentNumber,
		CheckpointNumber: req.CheckpointNumber,
	}
	if err := d.budget.RecordUsage(ctx, usage); err != nil {
		slog.Error("failed to record llm usage", "error", err, "agent", req.AgentNumber)
	}
}
