// Package guardrail evaluates the process-wide stop conditions (spec
// §4.11): hard budget, provider failure rate, and database pool pressure.
// It flips SIMULATION_PAUSED through the runtime config service and leaves
// an audit event behind when it does.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/budget"
	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/runtimeconfig"
	"github.com/drmixer/emergence/internal/store"
)

// Stop reasons, mirrored into the guardrail_stops_total metric label and
// the simulation_paused event metadata.
const (
	ReasonHardBudgetExceeded = "hard_budget_exceeded"
	ReasonProviderFailures   = "provider_failures"
	ReasonDBPoolPressure     = "db_pool_pressure"
)

// StopDecision is the result of one guardrail evaluation.
type StopDecision struct {
	ShouldStop bool
	Reason     string
	Details    map[string]any
}

// PoolHealthChecker is the subset of *store.Pool the guardrail needs,
// narrowed to keep this package testable without a live database.
type PoolHealthChecker interface {
	Health(ctx context.Context) (store.HealthStatus, error)
}

// Service evaluates stop conditions on an interval and applies them.
type Service struct {
	config  *runtimeconfig.Service
	budget  *budget.Service
	pool    PoolHealthChecker
	events  *pgxpool.Pool

	mu                    sync.Mutex
	consecutivePoolPressure int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a guardrail service. events is the pool used to append the
// simulation_paused audit event; it may be nil in tests that only exercise
// Evaluate.
func New(cfg *runtimeconfig.Service, bud *budget.Service, pool PoolHealthChecker, events *pgxpool.Pool) *Service {
	return &Service{config: cfg, budget: bud, pool: pool, events: events}
}

// Start launches the background evaluation loop at the given interval.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx, interval)

	slog.Info("guardrail service started", "interval", interval)
}

// Stop signals the evaluation loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("guardrail service stopped")
}

func (s *Service) run(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			decision, err := s.Evaluate(ctx)
			if err != nil {
				slog.Error("guardrail evaluation failed", "error", err)
				continue
			}
			if decision.ShouldStop {
				if err := s.applyStop(ctx, decision); err != nil {
					slog.Error("guardrail failed to apply stop", "error", err, "reason", decision.Reason)
				}
			}
		}
	}
}

// Evaluate runs every stop condition in order and returns the first that
// trips. db_pool_pressure requires STOP_DB_POOL_CONSECUTIVE_CHECKS
// consecutive evaluations above threshold before it fires; the other two
// trip on the first breach observed.
func (s *Service) Evaluate(ctx context.Context) (StopDecision, error) {
	enabled, err := s.config.GetBool(ctx, "STOP_CONDITION_ENFORCEMENT_ENABLED")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading STOP_CONDITION_ENFORCEMENT_ENABLED: %w", err)
	}
	if !enabled {
		return StopDecision{ShouldStop: false}, nil
	}

	if decision, err := s.evaluateHardBudget(ctx); err != nil {
		return StopDecision{}, err
	} else if decision.ShouldStop {
		return decision, nil
	}

	if decision, err := s.evaluateProviderFailures(ctx); err != nil {
		return StopDecision{}, err
	} else if decision.ShouldStop {
		return decision, nil
	}

	return s.evaluateDBPoolPressure(ctx)
}

func (s *Service) evaluateHardBudget(ctx context.Context) (StopDecision, error) {
	hard, err := s.config.GetFloat(ctx, "LLM_DAILY_BUDGET_USD_HARD")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading LLM_DAILY_BUDGET_USD_HARD: %w", err)
	}

	snap, err := s.budget.GetSnapshot(ctx, clock.Now())
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading usage snapshot: %w", err)
	}
	metrics.LLMDailyCostUSD.Set(snap.TotalCostUSD)

	if snap.TotalCostUSD >= hard {
		return StopDecision{
			ShouldStop: true,
			Reason:     ReasonHardBudgetExceeded,
			Details: map[string]any{
				"hard_budget_usd": hard,
				"observed_cost_usd": snap.TotalCostUSD,
			},
		}, nil
	}
	return StopDecision{ShouldStop: false}, nil
}

// providerFailureCounter is supplied through SetProviderFailureCounter at
// process start (cmd/emergenced wires budget.Service.CountFailures);
// guardrail itself does not own provider call bookkeeping.
var providerFailureCounter func(ctx context.Context, window time.Duration) (int, error)

// SetProviderFailureCounter wires the trailing-window failure counter
// (normally backed by llm_usage rows) into the guardrail evaluation.
func SetProviderFailureCounter(f func(ctx context.Context, window time.Duration) (int, error)) {
	providerFailureCounter = f
}

func (s *Service) evaluateProviderFailures(ctx context.Context) (StopDecision, error) {
	windowMinutes, err := s.config.GetInt(ctx, "STOP_PROVIDER_FAILURE_WINDOW_MINUTES")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading STOP_PROVIDER_FAILURE_WINDOW_MINUTES: %w", err)
	}
	threshold, err := s.config.GetInt(ctx, "STOP_PROVIDER_FAILURE_THRESHOLD")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading STOP_PROVIDER_FAILURE_THRESHOLD: %w", err)
	}
	return s.evaluateProviderFailuresWith(ctx, time.Duration(windowMinutes)*time.Minute, threshold)
}

// evaluateProviderFailuresWith is the pure evaluation body, taking already
// resolved config values so it can be exercised without a runtime config
// service backing store.
func (s *Service) evaluateProviderFailuresWith(ctx context.Context, window time.Duration, threshold int) (StopDecision, error) {
	if providerFailureCounter == nil {
		return StopDecision{ShouldStop: false}, nil
	}

	count, err := providerFailureCounter(ctx, window)
	if err != nil {
		return StopDecision{}, fmt.Errorf("counting provider failures: %w", err)
	}

	if count > threshold {
		return StopDecision{
			ShouldStop: true,
			Reason:     ReasonProviderFailures,
			Details: map[string]any{
				"window_minutes": int(window.Minutes()),
				"threshold":      threshold,
				"observed_count": count,
			},
		}, nil
	}
	return StopDecision{ShouldStop: false}, nil
}

func (s *Service) evaluateDBPoolPressure(ctx context.Context) (StopDecision, error) {
	threshold, err := s.config.GetFloat(ctx, "STOP_DB_POOL_UTILIZATION_THRESHOLD")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading STOP_DB_POOL_UTILIZATION_THRESHOLD: %w", err)
	}
	consecutiveRequired, err := s.config.GetInt(ctx, "STOP_DB_POOL_CONSECUTIVE_CHECKS")
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading STOP_DB_POOL_CONSECUTIVE_CHECKS: %w", err)
	}
	return s.evaluateDBPoolPressureWith(ctx, threshold, consecutiveRequired)
}

// evaluateDBPoolPressureWith is the pure evaluation body sharing
// in-process consecutive-check state across calls.
func (s *Service) evaluateDBPoolPressureWith(ctx context.Context, threshold float64, consecutiveRequired int) (StopDecision, error) {
	health, err := s.pool.Health(ctx)
	if err != nil {
		return StopDecision{}, fmt.Errorf("reading pool health: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if health.UtilizationFrac < threshold {
		s.consecutivePoolPressure = 0
		return StopDecision{ShouldStop: false}, nil
	}

	s.consecutivePoolPressure++
	if s.consecutivePoolPressure < consecutiveRequired {
		return StopDecision{ShouldStop: false}, nil
	}

	return StopDecision{
		ShouldStop: true,
		Reason:     ReasonDBPoolPressure,
		Details: map[string]any{
			"threshold":            threshold,
			"observed_utilization": health.UtilizationFrac,
			"consecutive_checks":   s.consecutivePoolPressure,
		},
	}, nil
}

// applyStop flips SIMULATION_PAUSED, bumps the metric, and appends an
// audit event. It does not reset in-process consecutive-check state: an
// operator unpausing the run starts counting fresh only after the next
// evaluation observes the condition cleared.
func (s *Service) applyStop(ctx context.Context, decision StopDecision) error {
	metrics.GuardrailStopsTotal.WithLabelValues(decision.Reason).Inc()

	if err := s.config.UpdateSettings(ctx,
		[]runtimeconfig.Update{{Key: "SIMULATION_PAUSED", Value: "true"}},
		"guardrail", "runtime", fmt.Sprintf("stop condition tripped: %s", decision.Reason),
	); err != nil {
		return fmt.Errorf("flipping SIMULATION_PAUSED: %w", err)
	}

	slog.Warn("simulation paused by guardrail", "reason", decision.Reason, "details", decision.Details)

	if s.events == nil {
		return nil
	}
	metadata, err := json.Marshal(decision.Details)
	if err != nil {
		return fmt.Errorf("marshaling stop details: %w", err)
	}
	_, err = s.events.Exec(ctx, `
		INSERT INTO events (event_type, description, metadata, created_at)
		VALUES ('simulation_paused', $1, $2::jsonb, now())
	`, fmt.Sprintf("simulation paused: %s", decision.Reason), string(metadata))
	if err != nil {
		return fmt.Errorf("appending simulation_paused event: %w", err)
	}
	return nil
}
