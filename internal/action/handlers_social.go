package action

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func handleIdle(_ context.Context, _ pgx.Tx, _ int, _ Action) (Result, error) {
	return valid()
}

// handleSetName is a deliberate no-op: display_name is immutable (spec
// §3/§4.4). The request still counts as a valid, successful action — it
// simply has no effect.
func handleSetName(_ context.Context, _ pgx.Tx, _ int, _ Action) (Result, error) {
	return Result{Valid: true, Reason: "display_name is immutable; request ignored"}, nil
}

func handleMessage(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Body == "" {
		return invalid("message body must not be empty")
	}

	var toAgent *int
	if act.TargetAgentNumber != 0 {
		toAgent = &act.TargetAgentNumber
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (from_agent, to_agent, body, created_at)
		VALUES ($1, $2, $3, now())
	`, agentNumber, toAgent, act.Body); err != nil {
		return Result{}, err
	}
	return valid()
}
