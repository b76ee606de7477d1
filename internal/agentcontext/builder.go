// Package agentcontext builds the deterministic textual snapshot given to
// an agent before each turn's model dispatch call (spec §4.6).
package agentcontext

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/models"
	"github.com/drmixer/emergence/internal/runtimeconfig"
)

// SalienceRanker narrows the salience package to the one call the context
// builder needs, avoiding a direct package dependency cycle risk as the
// two evolve independently.
type SalienceRanker interface {
	TopEvents(ctx context.Context, n int, before time.Time) ([]models.Event, error)
}

// Builder produces per-agent context snapshots.
type Builder struct {
	pool     *pgxpool.Pool
	config   *runtimeconfig.Service
	salience SalienceRanker
}

// New creates a context builder.
func New(pool *pgxpool.Pool, cfg *runtimeconfig.Service, salience SalienceRanker) *Builder {
	return &Builder{pool: pool, config: cfg, salience: salience}
}

const topSalientEvents = 8

// Build assembles the full textual snapshot for agent.
func (b *Builder) Build(ctx context.Context, agent models.Agent) (string, error) {
	lagSeconds, err := b.config.GetInt(ctx, "PERCEPTION_LAG_SECONDS")
	if err != nil {
		return "", fmt.Errorf("reading PERCEPTION_LAG_SECONDS: %w", err)
	}
	perceivedAt := clock.Now().Add(-time.Duration(lagSeconds) * time.Second)

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Agent %s (#%d)\n\n", agent.DisplayName, agent.AgentNumber)
	fmt.Fprintf(&sb, "Status: %s | Tier: %s | Personality: %s\n\n", agent.Status, agent.Tier, agent.PersonalityType)

	if err := b.writeInventory(ctx, &sb, agent.AgentNumber); err != nil {
		return "", err
	}
	if err := b.writeSalientEvents(ctx, &sb, perceivedAt); err != nil {
		return "", err
	}
	if err := b.writeLaws(ctx, &sb); err != nil {
		return "", err
	}
	if err := b.writeProposals(ctx, &sb, agent.AgentNumber, perceivedAt); err != nil {
		return "", err
	}
	b.writeIntent(&sb, agent)
	if err := b.writeActionBudget(ctx, &sb, agent.AgentNumber); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func (b *Builder) writeInventory(ctx context.Context, sb *strings.Builder, agentNumber int) error {
	sb.WriteString("## Inventory\n")
	rows, err := b.pool.Query(ctx, `
		SELECT resource_type, quantity FROM agent_inventory WHERE agent_number = $1 ORDER BY resource_type
	`, agentNumber)
	if err != nil {
		return fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	any := false
	for rows.Next() {
		var resource models.ResourceType
		var qty int64
		if err := rows.Scan(&resource, &qty); err != nil {
			return fmt.Errorf("scanning inventory row: %w", err)
		}
		fmt.Fprintf(sb, "- %s: %d\n", resource, qty)
		any = true
	}
	if !any {
		sb.WriteString("- (empty)\n")
	}
	sb.WriteString("\n")
	return rows.Err()
}

func (b *Builder) writeSalientEvents(ctx context.Context, sb *strings.Builder, perceivedAt time.Time) error {
	sb.WriteString("## Recent events\n")
	if b.salience == nil {
		sb.WriteString("- (none)\n\n")
		return nil
	}
	events, err := b.salience.TopEvents(ctx, topSalientEvents, perceivedAt)
	if err != nil {
		return fmt.Errorf("ranking salient events: %w", err)
	}
	if len(events) == 0 {
		sb.WriteString("- (none)\n")
	}
	for _, ev := range events {
		fmt.Fprintf(sb, "- [%s] %s\n", ev.EventType, ev.Description)
	}
	sb.WriteString("\n")
	return nil
}

func (b *Builder) writeLaws(ctx context.Context, sb *strings.Builder) error {
	sb.WriteString("## Active laws\n")
	rows, err := b.pool.Query(ctx, `SELECT title, description FROM laws WHERE active = true ORDER BY passed_at`)
	if err != nil {
		return fmt.Errorf("querying laws: %w", err)
	}
	defer rows.Close()

	any := false
	for rows.Next() {
		var title, description string
		if err := rows.Scan(&title, &description); err != nil {
			return fmt.Errorf("scanning law row: %w", err)
		}
		fmt.Fprintf(sb, "- %s: %s\n", title, description)
		any = true
	}
	if !any {
		sb.WriteString("- (none)\n")
	}
	sb.WriteString("\n")
	return rows.Err()
}

func (b *Builder) writeProposals(ctx context.Context, sb *strings.Builder, agentNumber int, perceivedAt time.Time) error {
	sb.WriteString("## Open proposals\n")
	rows, err := b.pool.Query(ctx, `
		SELECT p.id, p.title, p.description
		FROM proposals p
		WHERE p.status = 'active' AND p.created_at <= $1
		AND NOT EXISTS (SELECT 1 FROM votes v WHERE v.proposal_id = p.id AND v.agent_number = $2)
		ORDER BY p.created_at
	`, perceivedAt, agentNumber)
	if err != nil {
		return fmt.Errorf("querying proposals: %w", err)
	}
	defer rows.Close()

	any := false
	for rows.Next() {
		var id int64
		var title, description string
		if err := rows.Scan(&id, &title, &description); err != nil {
			return fmt.Errorf("scanning proposal row: %w", err)
		}
		fmt.Fprintf(sb, "- #%d %s: %s\n", id, title, description)
		any = true
	}
	if !any {
		sb.WriteString("- (none)\n")
	}
	sb.WriteString("\n")
	return rows.Err()
}

func (b *Builder) writeIntent(sb *strings.Builder, agent models.Agent) {
	sb.WriteString("## Intent\n")
	if agent.CurrentIntent == nil {
		sb.WriteString("- (none)\n")
	} else {
		fmt.Fprintf(sb, "- checkpoint %d, expires %s\n",
			agent.CurrentIntent.CheckpointNumber, clock.FormatUTC(agent.CurrentIntent.ExpiresAt))
	}
	if agent.NextCheckpointAt != nil {
		fmt.Fprintf(sb, "- next checkpoint at %s\n", clock.FormatUTC(*agent.NextCheckpointAt))
	}
	sb.WriteString("\n")
}

// writeActionBudget renders the exact substrings boundary scenario #2
// requires: "- Actions used this hour: X/Y", "- Remaining actions this
// hour: Z", "- Next action slot reset (UTC):".
func (b *Builder) writeActionBudget(ctx context.Context, sb *strings.Builder, agentNumber int) error {
	maxPerHour, err := b.config.GetInt(ctx, "MAX_ACTIONS_PER_HOUR")
	if err != nil {
		return fmt.Errorf("reading MAX_ACTIONS_PER_HOUR: %w", err)
	}

	windowStart := clock.Now().Add(-time.Hour)
	var used int
	var oldestInWindow *time.Time
	rows, err := b.pool.Query(ctx, `
		SELECT created_at FROM agent_actions
		WHERE agent_number = $1 AND created_at >= $2
		ORDER BY created_at
	`, agentNumber, windowStart)
	if err != nil {
		return fmt.Errorf("counting actions this hour: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var createdAt time.Time
		if err := rows.Scan(&createdAt); err != nil {
			return fmt.Errorf("scanning agent_actions row: %w", err)
		}
		if oldestInWindow == nil {
			oldestInWindow = &createdAt
		}
		used++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	resetAt := clock.Now()
	if oldestInWindow != nil {
		resetAt = oldestInWindow.Add(time.Hour)
	}

	sb.WriteString(renderActionBudget(used, maxPerHour, resetAt))
	return nil
}

// renderActionBudget is the pure rendering body of writeActionBudget,
// factored out so the section's exact substrings are testable without a
// database.
func renderActionBudget(used, maxPerHour int, resetAt time.Time) string {
	remaining := maxPerHour - used
	if remaining < 0 {
		remaining = 0
	}

	var sb strings.Builder
	sb.WriteString("## Action budget\n")
	fmt.Fprintf(&sb, "- Actions used this hour: %d/%d\n", used, maxPerHour)
	fmt.Fprintf(&sb, "- Remaining actions this hour: %d\n", remaining)
	fmt.Fprintf(&sb, "- Next action slot reset (UTC): %s\n", clock.FormatUTC(resetAt))
	return sb.String()
}
