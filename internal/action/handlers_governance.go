package action

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drmixer/emergence/internal/models"
)

// votingWindow is the duration a proposal or enforcement request stays
// open for voting before the scheduler's resolver considers it (spec
// §4.7). Not runtime-configurable: the resolver's clock-skew tie-break
// (SPEC_FULL.md open question #2) assumes a fixed window set at creation.
const votingWindow = 24 * time.Hour

// defaultVotesRequired is the enforcement quorum absent a law-specific
// override; enforcement rows always pin votes_required at creation so a
// later change to this constant cannot retroactively alter an
// in-flight vote's quorum.
const defaultVotesRequired = 5

func handlePropose(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Title == "" {
		return invalid("proposal title must not be empty")
	}
	switch act.ProposalType {
	case models.ProposalTypeLaw, models.ProposalTypeRepeal, models.ProposalTypeOther:
	default:
		return invalid("unknown proposal_type")
	}
	if act.ProposalType == models.ProposalTypeRepeal {
		if act.TargetLawID == nil {
			return invalid("repeal proposal requires target_law_id")
		}
		var active bool
		err := tx.QueryRow(ctx, `SELECT active FROM laws WHERE id = $1`, *act.TargetLawID).Scan(&active)
		if err != nil {
			if err == pgx.ErrNoRows {
				return invalid("target law does not exist")
			}
			return Result{}, err
		}
		if !active {
			return invalid("target law is already repealed")
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO proposals (author, proposal_type, title, description, status, target_law_id, voting_closes_at, created_at)
		VALUES ($1, $2, $3, $4, 'active', $5, now() + $6::interval, now())
	`, agentNumber, act.ProposalType, act.Title, act.Description, act.TargetLawID, votingWindow.String()); err != nil {
		return Result{}, err
	}
	return valid()
}

func handleVote(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Vote != models.VoteYes && act.Vote != models.VoteNo {
		return invalid("vote must be yes or no")
	}

	var status models.ProposalStatus
	var closesAt time.Time
	err := tx.QueryRow(ctx,
		`SELECT status, voting_closes_at FROM proposals WHERE id = $1`, act.ProposalID,
	).Scan(&status, &closesAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return invalid("proposal does not exist")
		}
		return Result{}, err
	}
	if status.Terminal() {
		return invalid("proposal voting is closed")
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO votes (proposal_id, agent_number, choice, cast_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (proposal_id, agent_number) DO NOTHING
	`, act.ProposalID, agentNumber, act.Vote)
	if err != nil {
		return Result{}, err
	}
	if tag.RowsAffected() == 0 {
		return invalid("agent already voted on this proposal")
	}
	return valid()
}

func handleEnforceInitiate(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.TargetAgentNumber == agentNumber {
		return invalid("cannot initiate enforcement against self")
	}
	switch act.EnforcementType {
	case models.EnforcementSanction, models.EnforcementSeizure, models.EnforcementExile:
	default:
		return invalid("unknown enforcement_type")
	}

	var lawActive bool
	err := tx.QueryRow(ctx, `SELECT active FROM laws WHERE id = $1`, act.LawID).Scan(&lawActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return invalid("law does not exist")
		}
		return Result{}, err
	}
	if !lawActive {
		return invalid("law is not active")
	}

	var targetExists bool
	err = tx.QueryRow(ctx, `SELECT true FROM agents WHERE agent_number = $1`, act.TargetAgentNumber).Scan(&targetExists)
	if err != nil {
		if err == pgx.ErrNoRows {
			return invalid("enforcement target does not exist")
		}
		return Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO enforcements (
			initiator, target, law_id, enforcement_type, violation_description,
			status, voting_closes_at, votes_required, created_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', now() + $6::interval, $7, now())
	`, agentNumber, act.TargetAgentNumber, act.LawID, act.EnforcementType,
		act.ViolationDescription, votingWindow.String(), defaultVotesRequired); err != nil {
		return Result{}, err
	}
	return valid()
}

func handleEnforceVote(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.EnforcementVote != models.EnforcementVoteSupport && act.EnforcementVote != models.EnforcementVoteOppose {
		return invalid("enforcement vote must be support or oppose")
	}

	var status models.EnforcementStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM enforcements WHERE id = $1`, act.EnforcementID,
	).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return invalid("enforcement does not exist")
		}
		return Result{}, err
	}
	if status.Terminal() || status != models.EnforcementPending {
		return invalid("enforcement voting is closed")
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO enforcement_votes (enforcement_id, agent_number, choice, cast_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (enforcement_id, agent_number) DO NOTHING
	`, act.EnforcementID, agentNumber, act.EnforcementVote)
	if err != nil {
		return Result{}, err
	}
	if tag.RowsAffected() == 0 {
		return invalid("agent already voted on this enforcement")
	}

	column := "oppose_count"
	if act.EnforcementVote == models.EnforcementVoteSupport {
		column = "support_count"
	}
	if _, err := tx.Exec(ctx, `UPDATE enforcements SET `+column+` = `+column+` + 1 WHERE id = $1`, act.EnforcementID); err != nil {
		return Result{}, err
	}

	return valid()
}
