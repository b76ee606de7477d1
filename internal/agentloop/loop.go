// Package agentloop drives the agent turn loop (spec §4.5): on a fixed
// tick it loads every active agent and fans each one out to
// agentproc.Processor concurrently, capped at a worker limit, following
// the teacher's worker-pool idiom (pkg/queue/pool.go) without that
// package's session/orphan-recovery machinery, which has no analogue
// here since a turn has no mid-flight persisted state to recover.
package agentloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/models"
)

// TurnProcessor runs one agent's turn; satisfied by *agentproc.Processor.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, agent models.Agent) error
}

// Loop ticks at a fixed interval, loading active agents and running their
// turns concurrently up to Concurrency at a time.
type Loop struct {
	pool        *pgxpool.Pool
	processor   TurnProcessor
	interval    time.Duration
	concurrency int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an agent loop. concurrency <= 0 defaults to 8.
func New(pool *pgxpool.Pool, processor TurnProcessor, interval time.Duration, concurrency int) *Loop {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Loop{pool: pool, processor: processor, interval: interval, concurrency: concurrency}
}

// Start launches the tick loop in a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
	slog.Info("agent loop started", "interval", l.interval, "concurrency", l.concurrency)
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	slog.Info("agent loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.tick(ctx); err != nil {
				slog.Error("agent loop tick failed", "error", err)
			}
		}
	}
}

// tick loads every non-dead, non-exiled agent and runs its turn
// concurrently, bounded by l.concurrency.
func (l *Loop) tick(ctx context.Context) error {
	agents, err := l.loadActiveAgents(ctx)
	if err != nil {
		return err
	}
	runTurns(ctx, l.processor, agents, l.concurrency)
	return nil
}

// runTurns fans agents out to processor concurrently, bounded by
// concurrency in-flight at once. Factored out of tick so it can be
// exercised without a live database.
func runTurns(ctx context.Context, processor TurnProcessor, agents []models.Agent, concurrency int) {
	if concurrency <= 0 {
		concurrency = 8
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, agent := range agents {
		agent := agent
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := processor.ProcessTurn(ctx, agent); err != nil {
				slog.Error("agent turn failed", "agent_number", agent.AgentNumber, "error", err)
			}
		}()
	}
	wg.Wait()
}

func (l *Loop) loadActiveAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT agent_number, display_name, model_type, tier, personality_type, status,
		       exiled, sanctioned_until, died_at, death_cause, system_prompt, created_at
		FROM agents
		WHERE status != 'dead' AND NOT exiled
		ORDER BY agent_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.AgentNumber, &a.DisplayName, &a.ModelType, &a.Tier, &a.PersonalityType, &a.Status,
			&a.Exiled, &a.SanctionedUntil, &a.DiedAt, &a.DeathCause, &a.SystemPrompt, &a.CreatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
