// Package budget maintains per-day usage/cost aggregates for model calls
// and is consulted before dispatch (soft budget) and by the guardrail
// service (hard budget) — spec §4.2.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/models"
)

// PriceTable maps a resolved model name to a static per-1000-token USD
// price. BYOK calls are recorded but excluded from cost (spec §4.2/§8).
var PriceTable = map[string]struct{ PromptPer1K, CompletionPer1K float64 }{
	"claude-sonnet-4":   {PromptPer1K: 0.003, CompletionPer1K: 0.015},
	"gpt-4o-mini":       {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
	"claude-haiku":      {PromptPer1K: 0.00025, CompletionPer1K: 0.00125},
	"llama-3.3-70b":     {PromptPer1K: 0.00059, CompletionPer1K: 0.00079},
	"llama-3.1-8b":      {PromptPer1K: 0.00005, CompletionPer1K: 0.00008},
	"gemini-flash":      {PromptPer1K: 0.000075, CompletionPer1K: 0.0003},
	"or_mixtral-8x7b":   {PromptPer1K: 0.00024, CompletionPer1K: 0.00024},
	"or_dbrx-instruct":  {PromptPer1K: 0.00074, CompletionPer1K: 0.00074},
	"gr_llama-3-70b":    {PromptPer1K: 0.00059, CompletionPer1K: 0.00079},
	"gr_mixtral-8x7b":   {PromptPer1K: 0.00024, CompletionPer1K: 0.00024},
	"mistral-large":     {PromptPer1K: 0.002, CompletionPer1K: 0.006},
	"mistral-small":     {PromptPer1K: 0.0002, CompletionPer1K: 0.0006},
}

// EstimateCost computes the USD cost of a call unless byokUsed, in which
// case the call is recorded but cost-excluded (spec §8 invariant).
func EstimateCost(resolvedModel string, promptTokens, completionTokens int, byokUsed bool) float64 {
	if byokUsed {
		return 0
	}
	price, ok := PriceTable[resolvedModel]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*price.PromptPer1K + float64(completionTokens)/1000*price.CompletionPer1K
}

// DaySnapshot is the day-keyed usage summary returned by GetSnapshot.
type DaySnapshot struct {
	Day               time.Time          `json:"day"`
	TotalCalls        int                `json:"total_calls"`
	TotalCostUSD      float64            `json:"total_cost_usd"`
	CallsByProvider   map[string]int     `json:"calls_by_provider"`
	FreeTierCalls     int                `json:"free_tier_calls"`
	FreeTierUtilization float64          `json:"free_tier_utilization"`
}

// Service records LlmUsage rows and produces day-keyed snapshots.
type Service struct {
	pool *pgxpool.Pool
}

// New creates a usage budget service.
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// RecordUsage persists one LlmUsage row. total_tokens is derived, never
// trusted from the caller, to preserve the §8 invariant
// total_tokens == prompt_tokens + completion_tokens.
func (s *Service) RecordUsage(ctx context.Context, u models.LlmUsage) error {
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	u.EstimatedCostUSD = EstimateCost(u.ResolvedModel, u.PromptTokens, u.CompletionTokens, u.BYOKUsed)
	u.Day = clock.DayOf(u.Day)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO llm_usage (
			day, provider, resolved_model, prompt_tokens, completion_tokens, total_tokens,
			estimated_cost_usd, latency_millis, success, error_type, fallback_used, byok_used,
			run_id, agent_number, checkpoint_number, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
	`, u.Day, u.Provider, u.ResolvedModel, u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		u.EstimatedCostUSD, u.LatencyMillis, u.Success, nullableString(u.ErrorType), u.FallbackUsed, u.BYOKUsed,
		u.RunID, u.AgentNumber, u.CheckpointNumber)
	if err != nil {
		return fmt.Errorf("recording llm usage: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CountFailures returns the number of failed (success=false) calls
// recorded in the trailing window ending now, for the guardrail
// service's provider_failures stop condition (spec §4.11).
func (s *Service) CountFailures(ctx context.Context, window time.Duration) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM llm_usage
		WHERE success = false AND created_at >= now() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(window.Seconds()))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting provider failures: %w", err)
	}
	return count, nil
}

// GetSnapshot returns the usage aggregate for the UTC day containing `at`.
func (s *Service) GetSnapshot(ctx context.Context, at time.Time) (DaySnapshot, error) {
	day := clock.DayOf(at)
	snap := DaySnapshot{Day: day, CallsByProvider: map[string]int{}}

	rows, err := s.pool.Query(ctx, `
		SELECT provider, count(*), coalesce(sum(estimated_cost_usd), 0),
		       count(*) FILTER (WHERE byok_used)
		FROM llm_usage
		WHERE day = $1
		GROUP BY provider
	`, day)
	if err != nil {
		return DaySnapshot{}, fmt.Errorf("querying usage snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		var calls, freeTier int
		var cost float64
		if err := rows.Scan(&provider, &calls, &cost, &freeTier); err != nil {
			return DaySnapshot{}, fmt.Errorf("scanning usage row: %w", err)
		}
		snap.CallsByProvider[provider] = calls
		snap.TotalCalls += calls
		snap.TotalCostUSD += cost
		snap.FreeTierCalls += freeTier
	}
	if err := rows.Err(); err != nil {
		return DaySnapshot{}, fmt.Errorf("iterating usage rows: %w", err)
	}

	if snap.TotalCalls > 0 {
		snap.FreeTierUtilization = float64(snap.FreeTierCalls) / float64(snap.TotalCalls)
	}
	return snap, nil
}
