// Package agentproc implements the per-agent turn loop (spec §4.5):
// backoff gating, rate limiting, guardrail consult, context build, model
// dispatch, validation, and execution, grounded in the teacher's
// cooperative-worker idiom (pkg/queue/worker.go).
package agentproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/action"
	"github.com/drmixer/emergence/internal/agentcontext"
	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/llmdispatch"
	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/models"
	"github.com/drmixer/emergence/internal/runtimeconfig"
	"github.com/drmixer/emergence/internal/telemetry"
)

// cooldownBuffer pads the rate-limit backoff past the computed reset
// instant so an agent does not immediately re-trip the limit on the
// reset boundary.
const cooldownBuffer = 2 * time.Second

// shortBackoff is installed after an invalid action, distinct from the
// longer rate-limit backoff (spec §4.5 step 6).
const shortBackoff = 30 * time.Second

// Processor runs one turn at a time for any agent handed to it. Backoff
// state is keyed by agent number and is safe for concurrent use across
// goroutines processing different agents.
type Processor struct {
	pool     *pgxpool.Pool
	config   *runtimeconfig.Service
	builder  *agentcontext.Builder
	dispatch *llmdispatch.Dispatcher
	engine   *action.Engine
	runID    *string

	mu      sync.Mutex
	backoff map[int]time.Time
}

// New creates an agent processor.
func New(pool *pgxpool.Pool, cfg *runtimeconfig.Service, builder *agentcontext.Builder, dispatch *llmdispatch.Dispatcher, engine *action.Engine, runID *string) *Processor {
	return &Processor{
		pool:     pool,
		config:   cfg,
		builder:  builder,
		dispatch: dispatch,
		engine:   engine,
		runID:    runID,
		backoff:  make(map[int]time.Time),
	}
}

// ProcessTurn runs the full per-turn sequence for agent. It returns nil
// whenever the turn completed its natural course, including the
// "skipped due to backoff/pause" cases — those are not errors, they are
// the expected steady-state behavior of the loop.
func (p *Processor) ProcessTurn(ctx context.Context, agent models.Agent) error {
	if !agent.IsActive(clock.Now()) {
		return nil
	}

	if p.isBackedOff(agent.AgentNumber) {
		return nil
	}

	exceeded, resetAt, err := p.rateLimitExceeded(ctx, agent.AgentNumber)
	if err != nil {
		return fmt.Errorf("checking rate limit for agent %d: %w", agent.AgentNumber, err)
	}
	if exceeded {
		p.installBackoff(agent.AgentNumber, resetAt.Add(cooldownBuffer))
		return p.recordRateLimitEvent(ctx, agent.AgentNumber)
	}

	paused, err := p.config.GetBool(ctx, "SIMULATION_PAUSED")
	if err != nil {
		return fmt.Errorf("reading SIMULATION_PAUSED: %w", err)
	}
	if paused {
		return nil
	}

	ctx, turnSpan := telemetry.StartTurnSpan(ctx, agent.AgentNumber)
	defer turnSpan.End()

	buildCtx, buildSpan := telemetry.StartContextBuildSpan(ctx, agent.AgentNumber)
	contextText, err := p.builder.Build(buildCtx, agent)
	buildSpan.End()
	if err != nil {
		return fmt.Errorf("building context for agent %d: %w", agent.AgentNumber, err)
	}

	checkpoint := 0
	if agent.CurrentIntent != nil {
		checkpoint = agent.CurrentIntent.CheckpointNumber
	}

	act, err := p.dispatch.Dispatch(ctx, llmdispatch.Request{
		AgentNumber:      agent.AgentNumber,
		ModelType:        agent.ModelType,
		SystemPrompt:     agent.SystemPrompt,
		ContextPrompt:    contextText,
		RunID:            p.runID,
		CheckpointNumber: &checkpoint,
	})
	if err != nil {
		return fmt.Errorf("dispatching model call for agent %d: %w", agent.AgentNumber, err)
	}

	actionCtx, actionSpan := telemetry.StartActionSpan(ctx, agent.AgentNumber, string(act.Kind))
	result, err := p.engine.Execute(actionCtx, agent.AgentNumber, act)
	if err != nil {
		telemetry.EndActionSpan(actionSpan, false, err.Error())
		return fmt.Errorf("executing action for agent %d: %w", agent.AgentNumber, err)
	}
	telemetry.EndActionSpan(actionSpan, result.Valid, result.Reason)

	metrics.AgentTurnsTotal.Inc()

	if !result.Valid {
		p.installBackoff(agent.AgentNumber, clock.Now().Add(shortBackoff))
	}

	return nil
}

func (p *Processor) isBackedOff(agentNumber int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	expiry, ok := p.backoff[agentNumber]
	if !ok {
		return false
	}
	if clock.Now().Before(expiry) {
		return true
	}
	delete(p.backoff, agentNumber)
	return false
}

// installBackoff sets the backoff expiry for agentNumber, updating
// metrics.BackoffActiveGauge. Installing a backoff while one is already
// active simply extends it; it never produces a second invalid_action
// event for the same window (spec §8 "two consecutive invalid actions
// within the backoff window must not both produce events").
func (p *Processor) installBackoff(agentNumber int, until time.Time) {
	p.mu.Lock()
	_, alreadyBackedOff := p.backoff[agentNumber]
	p.backoff[agentNumber] = until
	count := len(p.backoff)
	p.mu.Unlock()

	metrics.BackoffActiveGauge.Set(float64(count))
	if !alreadyBackedOff {
		slog.Info("agent entering backoff", "agent", agentNumber, "until", until)
	}
}

// rateLimitExceeded counts actions in the trailing 60 minutes and, if at
// or above MAX_ACTIONS_PER_HOUR, returns the next slot reset time (the
// oldest action in the window plus one hour).
func (p *Processor) rateLimitExceeded(ctx context.Context, agentNumber int) (bool, time.Time, error) {
	maxPerHour, err := p.config.GetInt(ctx, "MAX_ACTIONS_PER_HOUR")
	if err != nil {
		return false, time.Time{}, err
	}

	windowStart := clock.Now().Add(-time.Hour)
	var count int
	var oldest *time.Time
	rows, err := p.pool.Query(ctx, `
		SELECT created_at FROM agent_actions
		WHERE agent_number = $1 AND created_at >= $2
		ORDER BY created_at
	`, agentNumber, windowStart)
	if err != nil {
		return false, time.Time{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var createdAt time.Time
		if err := rows.Scan(&createdAt); err != nil {
			return false, time.Time{}, err
		}
		if oldest == nil {
			oldest = &createdAt
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return false, time.Time{}, err
	}

	if count < maxPerHour {
		return false, time.Time{}, nil
	}

	resetAt := clock.Now()
	if oldest != nil {
		resetAt = oldest.Add(time.Hour)
	}
	return true, resetAt, nil
}

// recordRateLimitEvent appends the single invalid_action event for a
// rate-limit rejection. Subsequent calls while still backed off are
// skipped entirely by isBackedOff before this is reached, which is what
// keeps the event count at exactly one per backoff window.
func (p *Processor) recordRateLimitEvent(ctx context.Context, agentNumber int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO events (event_type, agent_number, description, created_at)
		VALUES ('invalid_action', $1, 'rate limit exceeded for MAX_ACTIONS_PER_HOUR', now())
	`, agentNumber)
	if err != nil {
		return fmt.Errorf("recording rate-limit event: %w", err)
	}
	return nil
}
