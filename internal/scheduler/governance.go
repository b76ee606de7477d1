package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drmixer/emergence/internal/metrics"
	"github.com/drmixer/emergence/internal/models"
)

// defaultSanctionDuration applies when an enforcement carries no explicit
// sanction_duration_seconds.
const defaultSanctionDuration = 24 * time.Hour

// ResolveProposals closes out every proposal whose voting window has
// elapsed. A proposal is picked up exactly once because the selecting
// query filters on status = 'active' and the resolution transitions it to
// a terminal status in the same transaction — a later tick simply finds
// nothing left to do, which is what makes this idempotent without a
// separate "processed" flag.
func (s *Service) ResolveProposals(ctx context.Context) error {
	started := time.Now()
	defer func() { observeTick("resolve_proposals", time.Since(started)) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM proposals WHERE status = 'active' AND voting_closes_at <= now()
	`)
	if err != nil {
		return fmt.Errorf("listing closed proposals: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.resolveOneProposal(ctx, id); err != nil {
			return fmt.Errorf("resolving proposal %d: %w", id, err)
		}
	}
	return nil
}

func (s *Service) resolveOneProposal(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-checking voting_closes_at inside the locked re-selection is the
	// clock-skew tie-break: a vote committed in the same instant lands
	// deterministically before or after this transaction by commit
	// order, never both.
	var p models.Proposal
	err = tx.QueryRow(ctx, `
		SELECT id, author, proposal_type, title, target_law_id, status
		FROM proposals
		WHERE id = $1 AND status = 'active' AND voting_closes_at <= now()
		FOR UPDATE
	`, id).Scan(&p.ID, &p.Author, &p.ProposalType, &p.Title, &p.TargetLawID, &p.Status)
	if err == pgx.ErrNoRows {
		// already resolved by an earlier tick, or not actually closed yet
		return nil
	}
	if err != nil {
		return err
	}

	var yes, no int
	if err := tx.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE choice = 'yes'),
			count(*) FILTER (WHERE choice = 'no')
		FROM votes WHERE proposal_id = $1
	`, id).Scan(&yes, &no); err != nil {
		return err
	}

	passed := yes > no

	newStatus := models.ProposalFailed
	if passed {
		newStatus = models.ProposalPassed
	}

	if _, err := tx.Exec(ctx, `UPDATE proposals SET status = $2 WHERE id = $1`, id, string(newStatus)); err != nil {
		return err
	}

	if !passed {
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('proposal_resolved', $1, $2, now())
		`, p.Author, fmt.Sprintf("proposal %q failed (%d yes / %d no)", p.Title, yes, no)); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	switch p.ProposalType {
	case models.ProposalTypeLaw:
		if err := s.enactLaw(ctx, tx, p); err != nil {
			return err
		}
	case models.ProposalTypeRepeal:
		if err := s.enactRepeal(ctx, tx, p); err != nil {
			return err
		}
	default:
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('proposal_resolved', $1, $2, now())
		`, p.Author, fmt.Sprintf("proposal %q passed (%d yes / %d no)", p.Title, yes, no)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Service) enactLaw(ctx context.Context, tx pgx.Tx, p models.Proposal) error {
	var lawID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO laws (author, title, description, active, passed_at)
		VALUES ($1, $2, $3, true, now())
		RETURNING id
	`, p.Author, p.Title, p.Description).Scan(&lawID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO events (event_type, agent_number, description, created_at)
		VALUES ('law_passed', $1, $2, now())
	`, p.Author, fmt.Sprintf("law %q passed", p.Title))
	return err
}

func (s *Service) enactRepeal(ctx context.Context, tx pgx.Tx, p models.Proposal) error {
	if p.TargetLawID == nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('proposal_resolved', $1, 'repeal proposal passed but named no target law', now())
		`, p.Author)
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE laws SET active = false, repealed_at = now(), repealed_by_proposal_id = $2
		WHERE id = $1 AND active = true
	`, *p.TargetLawID, p.ID)
	if err != nil {
		return err
	}

	description := fmt.Sprintf("law %d repealed", *p.TargetLawID)
	if tag.RowsAffected() == 0 {
		description = fmt.Sprintf("repeal of law %d passed but the law was already inactive", *p.TargetLawID)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO events (event_type, agent_number, description, created_at)
		VALUES ('law_repealed', $1, $2, now())
	`, p.Author, description)
	return err
}

// ResolveEnforcements closes out every pending enforcement whose voting
// window has elapsed, comparing support_count and oppose_count against
// votes_required. Reaching votes_required in support executes the
// sanction; reaching it in opposition rejects it; neither rejects to
// "contested" rather than silently expiring, so the audit trail always
// shows why an enforcement stopped moving.
func (s *Service) ResolveEnforcements(ctx context.Context) error {
	started := time.Now()
	defer func() { observeTick("resolve_enforcements", time.Since(started)) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM enforcements WHERE status = 'pending' AND voting_closes_at <= now()
	`)
	if err != nil {
		return fmt.Errorf("listing closed enforcements: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.resolveOneEnforcement(ctx, id); err != nil {
			return fmt.Errorf("resolving enforcement %d: %w", id, err)
		}
	}
	return nil
}

func (s *Service) resolveOneEnforcement(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var e models.Enforcement
	var sanctionSeconds *int64
	err = tx.QueryRow(ctx, `
		SELECT id, initiator, target, law_id, enforcement_type, status,
		       votes_required, support_count, oppose_count,
		       sanction_duration_seconds, seize_resource_type, seize_quantity
		FROM enforcements
		WHERE id = $1 AND status = 'pending' AND voting_closes_at <= now()
		FOR UPDATE
	`, id).Scan(&e.ID, &e.Initiator, &e.Target, &e.LawID, &e.EnforcementType, &e.Status,
		&e.VotesRequired, &e.SupportCount, &e.OpposeCount,
		&sanctionSeconds, &e.SeizeResourceType, &e.SeizeQuantity)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if sanctionSeconds != nil {
		d := time.Duration(*sanctionSeconds) * time.Second
		e.SanctionDuration = &d
	}

	switch {
	case e.SupportCount >= e.VotesRequired:
		if err := s.executeEnforcement(ctx, tx, e); err != nil {
			return err
		}
	case e.OpposeCount >= e.VotesRequired:
		if _, err := tx.Exec(ctx, `UPDATE enforcements SET status = 'rejected' WHERE id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('enforcement_rejected', $1, $2, now())
		`, e.Target, fmt.Sprintf("enforcement %d against agent %d rejected", id, e.Target)); err != nil {
			return err
		}
	default:
		if _, err := tx.Exec(ctx, `UPDATE enforcements SET status = 'contested' WHERE id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('enforcement_rejected', $1, $2, now())
		`, e.Target, fmt.Sprintf("enforcement %d against agent %d closed contested (%d support / %d oppose)", id, e.Target, e.SupportCount, e.OpposeCount)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Service) executeEnforcement(ctx context.Context, tx pgx.Tx, e models.Enforcement) error {
	if _, err := tx.Exec(ctx, `UPDATE enforcements SET status = 'executed' WHERE id = $1`, e.ID); err != nil {
		return err
	}

	switch e.EnforcementType {
	case models.EnforcementSanction:
		duration := defaultSanctionDuration
		if e.SanctionDuration != nil {
			duration = *e.SanctionDuration
		}
		intervalText := fmt.Sprintf("%d seconds", int64(duration.Seconds()))
		if _, err := tx.Exec(ctx, `
			UPDATE agents SET sanctioned_until = now() + $2::interval WHERE agent_number = $1
		`, e.Target, intervalText); err != nil {
			return err
		}
	case models.EnforcementSeizure:
		if e.SeizeResourceType != nil && e.SeizeQuantity != nil && *e.SeizeQuantity > 0 {
			if err := seizeResource(ctx, tx, e.Target, *e.SeizeResourceType, *e.SeizeQuantity); err != nil {
				return err
			}
		}
	case models.EnforcementExile:
		if _, err := tx.Exec(ctx, `
			UPDATE agents SET exiled = true, status = 'dead', died_at = now(), death_cause = $2
			WHERE agent_number = $1 AND status != 'dead'
		`, e.Target, models.DeathCauseEnforcementExile); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO events (event_type, agent_number, description, created_at)
			VALUES ('agent_died', $1, 'exiled by enforcement vote', now())
		`, e.Target); err != nil {
			return err
		}
		metrics.DeathsTotal.WithLabelValues(string(models.DeathCauseEnforcementExile)).Inc()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO events (event_type, agent_number, description, created_at)
		VALUES ('enforcement_executed', $1, $2, now())
	`, e.Target, fmt.Sprintf("%s enforcement executed against agent %d", e.EnforcementType, e.Target))
	return err
}

// seizeResource debits qty of resource from target's inventory (never
// below zero) and credits it to the global pool, recording a seizure
// transaction with a nil to_agent — the resource leaves agent circulation
// entirely rather than moving to the initiator.
func seizeResource(ctx context.Context, tx pgx.Tx, target int, resource models.ResourceType, qty int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE agent_inventory SET quantity = quantity - $3
		WHERE agent_number = $1 AND resource_type = $2 AND quantity >= $3
	`, target, string(resource), qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// target no longer holds enough to seize; nothing to transfer.
		return nil
	}

	column := "total_" + string(resource)
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE global_resources SET %s = %s + $1, updated_at = now() WHERE id = 1
	`, column, column), qty); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, from_agent, resource_type, quantity, created_at)
		VALUES ('seizure', $1, $2, $3, now())
	`, target, string(resource), qty)
	return err
}
