// Package season implements the seasonal transfer pipeline (spec §4.9):
// exporting a survivor snapshot at the end of a run and seeding the next
// season's population from it under a versioned transfer policy. Both
// operations are grounded in the scheduler's idempotent-on-natural-key
// style (internal/scheduler/governance.go) — a season is seeded exactly
// once per (season_id, child_agent_number) via the same unique-key
// discipline that protects votes and enforcements.
package season

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/identity"
	"github.com/drmixer/emergence/internal/models"
)

// SnapshotSchemaSurvivorsV1 is the only snapshot_type the export path
// currently produces (spec §4.9).
const SnapshotSchemaSurvivorsV1 = "survivors_v1"

// DefaultTargetAgentCount is the population size seed_next_season aims
// for when the caller doesn't override it.
const DefaultTargetAgentCount = 50

// allowedTransferPolicyVersions is the fixed set seed_next_season accepts;
// an unknown version is rejected rather than silently applied (spec §4.9
// "reject unknown policy versions").
var allowedTransferPolicyVersions = map[string]bool{
	"v1": true,
	"v2": true,
}

// SurvivorRecord is one agent's carryover-eligible state as captured by
// export_season_snapshot.
type SurvivorRecord struct {
	AgentNumber     int                            `json:"agent_number"`
	DisplayName     string                          `json:"display_name"`
	ModelType       models.ModelType                `json:"model_type"`
	Tier            string                          `json:"tier"`
	PersonalityType string                          `json:"personality_type"`
	Inventory       map[models.ResourceType]int64   `json:"inventory"`
}

// SnapshotPayload is the JSON document written to season_snapshots.payload
// (or returned directly under dry_run).
type SnapshotPayload struct {
	SchemaVersion string           `json:"schema_version"`
	RunID         string           `json:"run_id"`
	GeneratedAt   string           `json:"generated_at"`
	Survivors     []SurvivorRecord `json:"survivors"`
}

// Service implements the export and seed operations against a shared pool.
type Service struct {
	pool *pgxpool.Pool
}

// New creates a season transfer service.
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ExportSeasonSnapshot reads every survivor (status != dead, not exiled)
// for runID, serializes their inventory/alias/personality/model_type/tier
// into a payload, and — unless dryRun — persists it under snapshotType.
func (s *Service) ExportSeasonSnapshot(ctx context.Context, runID, snapshotType string, dryRun bool) (SnapshotPayload, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_number, display_name, model_type, tier, personality_type
		FROM agents
		WHERE status != 'dead' AND NOT exiled
		ORDER BY agent_number
	`)
	if err != nil {
		return SnapshotPayload{}, fmt.Errorf("querying survivors: %w", err)
	}

	var survivors []SurvivorRecord
	for rows.Next() {
		var rec SurvivorRecord
		if err := rows.Scan(&rec.AgentNumber, &rec.DisplayName, &rec.ModelType, &rec.Tier, &rec.PersonalityType); err != nil {
			rows.Close()
			return SnapshotPayload{}, fmt.Errorf("scanning survivor row: %w", err)
		}
		survivors = append(survivors, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SnapshotPayload{}, err
	}

	for i := range survivors {
		inv, err := s.loadInventory(ctx, survivors[i].AgentNumber)
		if err != nil {
			return SnapshotPayload{}, err
		}
		survivors[i].Inventory = inv
	}

	payload := SnapshotPayload{
		SchemaVersion: snapshotType,
		RunID:         runID,
		GeneratedAt:   clock.FormatUTC(clock.Now()),
		Survivors:     survivors,
	}

	if dryRun {
		return payload, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return SnapshotPayload{}, fmt.Errorf("marshaling snapshot payload: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO season_snapshots (run_id, snapshot_type, payload, created_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (run_id, snapshot_type) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`, runID, snapshotType, string(raw)); err != nil {
		return SnapshotPayload{}, fmt.Errorf("persisting season snapshot: %w", err)
	}

	return payload, nil
}

func (s *Service) loadInventory(ctx context.Context, agentNumber int) (map[models.ResourceType]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT resource_type, quantity FROM agent_inventory WHERE agent_number = $1
	`, agentNumber)
	if err != nil {
		return nil, fmt.Errorf("querying inventory for agent %d: %w", agentNumber, err)
	}
	defer rows.Close()

	inv := make(map[models.ResourceType]int64)
	for rows.Next() {
		var rt models.ResourceType
		var qty int64
		if err := rows.Scan(&rt, &qty); err != nil {
			return nil, err
		}
		inv[rt] = qty
	}
	return inv, rows.Err()
}

// SeedParams are the inputs to SeedNextSeason (spec §4.9/§6).
type SeedParams struct {
	SeasonID              string
	ParentRunID           string
	TransferPolicyVersion string
	TargetAgentCount      int
	CarryPassedLaws       bool
	DryRun                bool
	Confirm               bool
}

// LineagePlanEntry is one row of the seeding plan, mirrored 1:1 into
// AgentLineage on a real (non-dry-run) seed.
type LineagePlanEntry struct {
	ChildAgentNumber  int                  `json:"child_agent_number"`
	ParentAgentNumber *int                 `json:"parent_agent_number,omitempty"`
	Origin            models.LineageOrigin `json:"origin"`
	DisplayName       string               `json:"display_name"`
}

// SeedPlan is the deterministic output of SeedNextSeason. Byte-equal JSON
// between a dry run and the subsequent real seed with identical inputs is
// a tested property (spec §8).
type SeedPlan struct {
	SeasonID              string              `json:"season_id"`
	ParentRunID           string              `json:"parent_run_id"`
	TransferPolicyVersion string              `json:"transfer_policy_version"`
	CarryoverCount        int                 `json:"carryover_count"`
	FreshCount            int                 `json:"fresh_count"`
	Lineage               []LineagePlanEntry  `json:"lineage"`
	LawsCarried           []int64             `json:"laws_carried,omitempty"`
}

// SeedNextSeason selects survivors deterministically (sorted by
// agent_number), fills remaining slots up to target_agent_count with
// fresh agents, writes AgentLineage rows, and optionally copies active
// laws. A non-dry-run call requires confirm=true.
func (s *Service) SeedNextSeason(ctx context.Context, p SeedParams) (SeedPlan, error) {
	if !allowedTransferPolicyVersions[p.TransferPolicyVersion] {
		return SeedPlan{}, fmt.Errorf("unknown transfer policy version %q", p.TransferPolicyVersion)
	}
	if !p.DryRun && !p.Confirm {
		return SeedPlan{}, fmt.Errorf("seeding season %q requires --confirm for a non-dry-run", p.SeasonID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SeedPlan{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.checkMirrorLineageConflict(ctx, tx, p.ParentRunID, p.SeasonID); err != nil {
		return SeedPlan{}, err
	}

	survivorNumbers, err := survivorAgentNumbers(ctx, tx)
	if err != nil {
		return SeedPlan{}, err
	}

	highWaterMark, err := maxAgentNumber(ctx, tx)
	if err != nil {
		return SeedPlan{}, err
	}

	var lawIDs []int64
	if p.CarryPassedLaws {
		lawIDs, err = activeLawIDs(ctx, tx)
		if err != nil {
			return SeedPlan{}, err
		}
	}

	plan := buildSeedPlan(p, survivorNumbers, highWaterMark, lawIDs)

	if p.DryRun {
		return plan, nil
	}

	if err := applySeedPlan(ctx, tx, plan); err != nil {
		return SeedPlan{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SeedPlan{}, fmt.Errorf("committing season seed: %w", err)
	}
	return plan, nil
}

// buildSeedPlan is the pure planning body of SeedNextSeason: given the
// already-resolved survivor set, the current agent_number high-water mark,
// and (if requested) the active law ids to carry, it deterministically
// computes the lineage plan. Factored out so the byte-equal dry-run vs.
// real-seed property (spec §8) is testable without a database.
func buildSeedPlan(p SeedParams, survivorNumbers []int, highWaterMark int, lawIDs []int64) SeedPlan {
	sorted := append([]int(nil), survivorNumbers...)
	sort.Ints(sorted)

	plan := SeedPlan{
		SeasonID:              p.SeasonID,
		ParentRunID:           p.ParentRunID,
		TransferPolicyVersion: p.TransferPolicyVersion,
	}

	carryCount := len(sorted)
	if carryCount > p.TargetAgentCount {
		carryCount = p.TargetAgentCount
	}
	for _, n := range sorted[:carryCount] {
		parent := n
		plan.Lineage = append(plan.Lineage, LineagePlanEntry{
			ChildAgentNumber:  n,
			ParentAgentNumber: &parent,
			Origin:            models.LineageCarryover,
			DisplayName:       identity.Codename(n),
		})
	}
	plan.CarryoverCount = carryCount

	freshSlots := p.TargetAgentCount - carryCount
	next := highWaterMark
	for i := 0; i < freshSlots; i++ {
		next++
		plan.Lineage = append(plan.Lineage, LineagePlanEntry{
			ChildAgentNumber: next,
			Origin:           models.LineageFresh,
			DisplayName:      identity.Codename(next),
		})
	}
	plan.FreshCount = freshSlots
	plan.LawsCarried = lawIDs

	return plan
}

// checkMirrorLineageConflict resolves the mirror-control-run Open Question
// (SPEC_FULL.md REDESIGN FLAGS #3): mirror pairs are meant to diverge from
// a common seed, not converge, so seeding seasonID from a run whose mirror
// partner has already seeded a season under the same season_id is refused.
func (s *Service) checkMirrorLineageConflict(ctx context.Context, tx pgx.Tx, parentRunID, seasonID string) error {
	var mirrorRunID *string
	err := tx.QueryRow(ctx,
		`SELECT mirror_control_run_id FROM simulation_runs WHERE run_id = $1`, parentRunID,
	).Scan(&mirrorRunID)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading parent run %q: %w", parentRunID, err)
	}
	if mirrorRunID == nil {
		return nil
	}

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM agent_lineage al
			JOIN simulation_runs sr ON sr.season_id = al.season_id
			WHERE sr.run_id = $1 AND al.season_id = $2
		)
	`, *mirrorRunID, seasonID).Scan(&conflict)
	if err != nil {
		return fmt.Errorf("checking mirror lineage conflict: %w", err)
	}
	if conflict {
		return fmt.Errorf("season %q was already seeded via mirror-control run %q of parent %q: mirror pairs do not share lineage", seasonID, *mirrorRunID, parentRunID)
	}
	return nil
}

func survivorAgentNumbers(ctx context.Context, tx pgx.Tx) ([]int, error) {
	rows, err := tx.Query(ctx, `SELECT agent_number FROM agents WHERE status != 'dead' AND NOT exiled`)
	if err != nil {
		return nil, fmt.Errorf("querying survivors: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func maxAgentNumber(ctx context.Context, tx pgx.Tx) (int, error) {
	var max int
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(agent_number), 0) FROM agents`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("reading max agent_number: %w", err)
	}
	return max, nil
}

func activeLawIDs(ctx context.Context, tx pgx.Tx) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM laws WHERE active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying active laws: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// applySeedPlan writes agents (for fresh lineage entries), AgentLineage
// rows, and carried-law copies for a confirmed, non-dry-run seed.
func applySeedPlan(ctx context.Context, tx pgx.Tx, plan SeedPlan) error {
	for _, entry := range plan.Lineage {
		if entry.Origin == models.LineageFresh {
			if _, err := tx.Exec(ctx, `
				INSERT INTO agents (agent_number, display_name, model_type, tier, personality_type, status, system_prompt)
				VALUES ($1, $2, 'claude-haiku', 'standard', '', 'active', '')
			`, entry.ChildAgentNumber, entry.DisplayName); err != nil {
				return fmt.Errorf("inserting fresh agent %d: %w", entry.ChildAgentNumber, err)
			}
			for _, rt := range []models.ResourceType{models.ResourceFood, models.ResourceEnergy, models.ResourceMaterials} {
				if _, err := tx.Exec(ctx, `
					INSERT INTO agent_inventory (agent_number, resource_type, quantity) VALUES ($1, $2, 0)
				`, entry.ChildAgentNumber, string(rt)); err != nil {
					return fmt.Errorf("seeding inventory for agent %d: %w", entry.ChildAgentNumber, err)
				}
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_lineage (season_id, child_agent_number, parent_agent_number, origin, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, plan.SeasonID, entry.ChildAgentNumber, entry.ParentAgentNumber, string(entry.Origin)); err != nil {
			return fmt.Errorf("writing lineage for child %d: %w", entry.ChildAgentNumber, err)
		}
	}

	for _, lawID := range plan.LawsCarried {
		var title, description string
		var author int
		if err := tx.QueryRow(ctx, `SELECT author, title, description FROM laws WHERE id = $1`, lawID).
			Scan(&author, &title, &description); err != nil {
			return fmt.Errorf("reading carried law %d: %w", lawID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO laws (author, title, description, active, passed_at)
			VALUES ($1, $2, $3, true, now())
		`, author, title, description); err != nil {
			return fmt.Errorf("carrying law %d into new season: %w", lawID, err)
		}
	}
	return nil
}
