// Package salience implements deterministic event scoring and the
// long-term memory checkpoint update (spec §4.8).
package salience

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/models"
)

// salientEventTypes score +3 — a fixed set of event kinds that are always
// worth remembering regardless of who they concern.
var salientEventTypes = map[string]bool{
	"proposal_resolved":         true,
	"law_passed":                true,
	"enforcement_approved":      true,
	"enforcement_executed":      true,
	"enforcement_rejected":      true,
	"agent_died":                true,
	"simulation_paused":         true,
}

// keywordLexicon score +1 each, matched case-insensitively against the
// event description.
var keywordLexicon = []string{
	"betrayal", "alliance", "famine", "war", "exile", "coup", "crisis", "shortage",
}

// metadataBonusMarkers score +2 when present (and truthy) in an event's
// metadata map.
var metadataBonusMarkers = []string{"critical", "unprecedented"}

// Score computes the deterministic salience score of ev from the
// perspective of focalAgent (0 means no focal agent).
func Score(ev models.Event, focalAgent int) int {
	score := 0

	if salientEventTypes[ev.EventType] {
		score += 3
	}
	if strings.HasPrefix(ev.EventType, "interrupt_") {
		score += 3
	}
	if ev.AgentNumber != nil && focalAgent != 0 && *ev.AgentNumber == focalAgent {
		score++
	}

	lowered := strings.ToLower(ev.Description)
	for _, kw := range keywordLexicon {
		if strings.Contains(lowered, kw) {
			score++
		}
	}

	for _, marker := range metadataBonusMarkers {
		if v, ok := ev.Metadata[marker]; ok {
			if b, ok := v.(bool); ok && b {
				score += 2
			}
		}
	}

	return score
}

type scored struct {
	event models.Event
	score int
	order int
}

// RankEvents scores every event in events from focalAgent's perspective
// and returns them sorted by descending score, stable on original order
// for ties (spec §4.8 "stable tie-break by original order").
func RankEvents(events []models.Event, focalAgent int) []models.Event {
	ranked := make([]scored, len(events))
	for i, ev := range events {
		ranked[i] = scored{event: ev, score: Score(ev, focalAgent), order: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	out := make([]models.Event, len(ranked))
	for i, r := range ranked {
		out[i] = r.event
	}
	return out
}

// Service ranks and serves salient events from storage.
type Service struct {
	pool *pgxpool.Pool
}

// New creates a salience service.
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// TopEvents returns the top-n salient events (by RankEvents) created
// before `before`, implementing detect_salient_events and satisfying
// agentcontext.SalienceRanker.
func (s *Service) TopEvents(ctx context.Context, n int, before time.Time) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, agent_number, description, metadata, created_at
		FROM events
		WHERE created_at <= $1
		ORDER BY created_at DESC
		LIMIT 200
	`, before)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AgentNumber, &ev.Description, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := RankEvents(events, 0)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// UpdateMemory appends summaryDelta to the agent's running memory summary
// and advances last_checkpoint_number, used by checkpoint processing.
func (s *Service) UpdateMemory(ctx context.Context, agentNumber, checkpointNumber int, summaryDelta string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_memory (agent_number, summary, last_updated_at, last_checkpoint_number)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (agent_number) DO UPDATE SET
			summary = agent_memory.summary || E'\n' || EXCLUDED.summary,
			last_updated_at = EXCLUDED.last_updated_at,
			last_checkpoint_number = EXCLUDED.last_checkpoint_number
	`, agentNumber, summaryDelta, checkpointNumber)
	if err != nil {
		return fmt.Errorf("updating agent memory: %w", err)
	}
	return nil
}

// RankHighlights scores candidate events for the archive report's
// highlight reel, reusing the same scoring function (SPEC_FULL.md
// "Highlight-quality review" supplement) rather than a distinct metric.
func RankHighlights(events []models.Event, topN int) []models.Event {
	ranked := RankEvents(events, 0)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
