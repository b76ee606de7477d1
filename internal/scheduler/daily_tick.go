package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/models"
)

// survivalFoodCost is the flat per-cycle food debit every non-dead agent
// owes, independent of job or tier (spec §4.7).
const survivalFoodCost = 1

// RunDailyCycle debits survival consumption from every living agent,
// advances starvation_cycles, applies the dormant/dead thresholds, and
// then rolls up the emergence-metrics snapshot for the day that just
// closed. Each agent is processed in its own transaction so one failure
// does not block the rest of the cohort.
func (s *Service) RunDailyCycle(ctx context.Context) error {
	started := time.Now()
	defer func() { observeTick("daily_cycle", time.Since(started)) }()

	agents, err := s.livingAgents(ctx)
	if err != nil {
		return fmt.Errorf("listing living agents: %w", err)
	}

	dormantAfter, err := s.config.GetInt(ctx, "STARVATION_DORMANT_CYCLES")
	if err != nil {
		return fmt.Errorf("reading STARVATION_DORMANT_CYCLES: %w", err)
	}
	deadAfter, err := s.config.GetInt(ctx, "STARVATION_DEATH_CYCLES")
	if err != nil {
		return fmt.Errorf("reading STARVATION_DEATH_CYCLES: %w", err)
	}

	var firstErr error
	for _, ag := range agents {
		if err := s.applySurvivalCycle(ctx, ag, dormantAfter, deadAfter); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("applying survival cycle to agent %d: %w", ag.AgentNumber, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	return s.rollUpYesterday(ctx)
}

func (s *Service) livingAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_number, status, starvation_cycles
		FROM agents
		WHERE status IN ('active', 'dormant')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var ag models.Agent
		if err := rows.Scan(&ag.AgentNumber, &ag.Status, &ag.StarvationCycles); err != nil {
			return nil, err
		}
		agents = append(agents, ag)
	}
	return agents, rows.Err()
}

// applySurvivalCycle debits one unit of food. If the agent has none, its
// starvation_cycles counter advances instead of resetting; eating resets
// it to zero, matching the teacher's "success clears failure streak"
// idiom used for backoff (agentproc.Processor).
func (s *Service) applySurvivalCycle(ctx context.Context, ag models.Agent, dormantAfter, deadAfter int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE agent_inventory SET quantity = quantity - $2
		WHERE agent_number = $1 AND resource_type = 'food' AND quantity >= $2
	`, ag.AgentNumber, survivalFoodCost)
	if err != nil {
		return err
	}

	ate := tag.RowsAffected() > 0
	if ate {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transactions (transaction_type, from_agent, resource_type, quantity, created_at)
			VALUES ('consume', $1, 'food', $2, now())
		`, ag.AgentNumber, survivalFoodCost); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE agents SET starvation_cycles = 0 WHERE agent_number = $1
		`, ag.AgentNumber); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	var cycles int
	if err := tx.QueryRow(ctx, `
		UPDATE agents SET starvation_cycles = starvation_cycles + 1
		WHERE agent_number = $1
		RETURNING starvation_cycles
	`, ag.AgentNumber).Scan(&cycles); err != nil {
		return err
	}

	switch {
	case cycles >= deadAfter:
		if _, err := tx.Exec(ctx, `
			UPDATE agents SET status = 'dead', died_at = now(), death_cause = $2
			WHERE agent_number = $1 AND status != 'dead'
		`, ag.AgentNumber, models.DeathCauseStarvation); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('agent_died', $1, 'starved after consecutive cycles without food', now())
		`, ag.AgentNumber); err != nil {
			return err
		}
		metrics.DeathsTotal.WithLabelValues(string(models.DeathCauseStarvation)).Inc()
	case cycles >= dormantAfter && ag.Status == models.AgentStatusActive:
		if _, err := tx.Exec(ctx, `
			UPDATE agents SET status = 'dormant' WHERE agent_number = $1 AND status = 'active'
		`, ag.AgentNumber); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('interrupt_starvation_dormant', $1, 'agent went dormant from starvation', now())
		`, ag.AgentNumber); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// rollUpYesterday computes the emergence-metrics snapshot for the UTC day
// that just ended, relative to the current run's started_at epoch. It is
// a no-op if CURRENT_RUN_ID is unset, which happens between runs.
func (s *Service) rollUpYesterday(ctx context.Context) error {
	runID, err := s.config.GetEffectiveValue(ctx, "CURRENT_RUN_ID")
	if err != nil {
		return fmt.Errorf("reading CURRENT_RUN_ID: %w", err)
	}
	if runID == "" {
		return nil
	}

	var startedAt time.Time
	err = s.pool.QueryRow(ctx, `SELECT started_at FROM simulation_runs WHERE run_id = $1`, runID).Scan(&startedAt)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading run %q start time: %w", runID, err)
	}

	now := clock.Now()
	dayEnd := clock.DayOf(now)
	dayStart := dayEnd.AddDate(0, 0, -1)
	day := clock.SimulationDay(startedAt, dayStart)

	return s.ComputeEmergenceMetrics(ctx, runID, day, dayStart, dayEnd)
}
