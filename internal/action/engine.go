package action

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/metrics"
)

// handlerFunc validates and executes one action kind inside an open
// transaction. It reports bad input as a Result with Valid=false and a
// Reason and a nil error (no retry, logged as invalid_action), and returns
// a non-nil error only for integrity/database failures (transaction is
// rolled back by the caller).
type handlerFunc func(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error)

// Engine is the action validation/execution state machine (spec §4.4).
// One handler per action kind, matching the teacher's per-stage executor
// dispatch (pkg/queue/executor.go).
type Engine struct {
	pool     *pgxpool.Pool
	handlers map[Kind]handlerFunc
}

// New creates an action engine backed by pool.
func New(pool *pgxpool.Pool) *Engine {
	e := &Engine{pool: pool}
	e.handlers = map[Kind]handlerFunc{
		KindIdle:            handleIdle,
		KindWork:            handleWork,
		KindTrade:           handleTrade,
		KindConsume:         handleConsume,
		KindProduce:         handleProduce,
		KindPropose:         handlePropose,
		KindVote:            handleVote,
		KindMessage:         handleMessage,
		KindEnforceInitiate: handleEnforceInitiate,
		KindEnforceVote:     handleEnforceVote,
		KindSetName:         handleSetName,
	}
	return e
}

// Execute runs the full validate+execute cycle for one agent's action in a
// single database transaction: either the action's effects and its
// AgentAction bookkeeping row all commit, or none do (spec §4.4
// "single DB transaction per action").
func (e *Engine) Execute(ctx context.Context, agentNumber int, act Action) (Result, error) {
	handler, ok := e.handlers[act.Kind]
	if !ok {
		metrics.ActionsTotal.WithLabelValues(string(act.Kind), "false").Inc()
		return Result{Valid: false, Reason: fmt.Sprintf("unknown action kind %q", act.Kind)}, nil
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("beginning action transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := handler(ctx, tx, agentNumber, act)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(act.Kind), "false").Inc()
		return Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO agent_actions (agent_number, action_kind, valid, created_at)
		VALUES ($1, $2, $3, now())
	`, agentNumber, string(act.Kind), result.Valid); err != nil {
		return Result{}, fmt.Errorf("recording agent action: %w", err)
	}

	for _, ev := range result.Events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ($1, $2, $3, now())
		`, ev.EventType, ev.AgentNumber, ev.Description); err != nil {
			return Result{}, fmt.Errorf("appending event %q: %w", ev.EventType, err)
		}
	}

	if !result.Valid {
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('invalid_action', $1, $2, now())
		`, agentNumber, result.Reason); err != nil {
			return Result{}, fmt.Errorf("appending invalid_action event: %w", err)
		}
	} else if act.Kind != KindIdle {
		// idle is deliberately silent — every other successful action
		// leaves a trace describing what happened (spec §4.5 step 7).
		// A handler-supplied reason (e.g. set_name's immutable-alias
		// no-op) takes precedence over the generic description.
		description := result.Reason
		if description == "" {
			description = fmt.Sprintf("%s executed successfully", act.Kind)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('action_executed', $1, $2, now())
		`, agentNumber, description); err != nil {
			return Result{}, fmt.Errorf("appending action_executed event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("committing action transaction: %w", err)
	}

	metrics.ActionsTotal.WithLabelValues(string(act.Kind), fmt.Sprint(result.Valid)).Inc()
	return result, nil
}

func invalid(reason string) (Result, error) {
	return Result{Valid: false, Reason: reason}, nil
}

func valid() (Result, error) {
	return Result{Valid: true}, nil
}
