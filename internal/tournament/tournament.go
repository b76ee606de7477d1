// Package tournament implements epoch tournament scoring (spec §4.10): a
// fixed-policy score over survival time, wealth, law authorship, and
// enforcement record, ranked per season with a deterministic tie-break,
// producing a champions list and an epoch report artifact.
package tournament

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyVersion is the fixed scoring policy this package implements.
// Changing the weights below requires bumping this constant so a report
// can record which policy produced it (mirrors transfer_policy_version's
// role in season.SeedParams).
const PolicyVersion = "epoch_v1"

// scoring weights for PolicyVersion "epoch_v1".
const (
	weightSurvivalHour    = 1.0
	weightWealthUnit      = 0.01
	weightLawAuthored     = 25.0
	weightEnforcementWon  = 10.0
)

// AgentScore is one agent's tournament score within a season.
type AgentScore struct {
	AgentNumber      int     `json:"agent_number"`
	SeasonID         string  `json:"season_id"`
	SurvivalHours    float64 `json:"survival_hours"`
	WealthUnits      int64   `json:"wealth_units"`
	LawsAuthored     int     `json:"laws_authored"`
	EnforcementsWon  int     `json:"enforcements_won"`
	Score            float64 `json:"score"`
}

// computeScore applies the fixed policy weights.
func (a AgentScore) computeScore() float64 {
	return a.SurvivalHours*weightSurvivalHour +
		float64(a.WealthUnits)*weightWealthUnit +
		float64(a.LawsAuthored)*weightLawAuthored +
		float64(a.EnforcementsWon)*weightEnforcementWon
}

// SeasonRanking is one season's scored agents, sorted highest score first
// with a deterministic tie-break by ascending agent_number.
type SeasonRanking struct {
	SeasonID string       `json:"season_id"`
	Ranked   []AgentScore `json:"ranked"`
}

// EpochReport is the artifact produced by SelectChampions.
type EpochReport struct {
	EpochID        string          `json:"epoch_id"`
	PolicyVersion  string          `json:"policy_version"`
	ChampionsPerSeason int         `json:"champions_per_season"`
	MaxTotalChampions  *int        `json:"max_total_champions,omitempty"`
	Seasons        []SeasonRanking `json:"seasons"`
	Champions      []AgentScore    `json:"champions"`
}

// Service selects champions and persists the epoch report artifact.
type Service struct {
	pool *pgxpool.Pool
}

// New creates a tournament service.
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// SelectionParams configures SelectChampions (spec §6
// select_epoch_tournament_candidates).
type SelectionParams struct {
	EpochID           string
	SeasonIDs         []string
	ChampionsPerSeason int
	MaxTotalChampions  *int
}

// SelectChampions scores every agent within each named season, ranks them,
// and picks the top ChampionsPerSeason per season (ties broken by
// ascending agent_number), optionally capping the combined champions list
// at MaxTotalChampions (highest score first across the whole epoch).
func (s *Service) SelectChampions(ctx context.Context, p SelectionParams) (EpochReport, error) {
	report := EpochReport{
		EpochID:            p.EpochID,
		PolicyVersion:      PolicyVersion,
		ChampionsPerSeason: p.ChampionsPerSeason,
		MaxTotalChampions:  p.MaxTotalChampions,
	}

	for _, seasonID := range p.SeasonIDs {
		scores, err := s.scoreSeason(ctx, seasonID)
		if err != nil {
			return EpochReport{}, fmt.Errorf("scoring season %q: %w", seasonID, err)
		}
		ranking := rankSeason(seasonID, scores)
		report.Seasons = append(report.Seasons, ranking)

		top := ranking.Ranked
		if len(top) > p.ChampionsPerSeason {
			top = top[:p.ChampionsPerSeason]
		}
		report.Champions = append(report.Champions, top...)
	}

	// Cross-season ordering for the cap: highest score first, tie-broken by
	// (season_id, agent_number) so the cap is itself deterministic.
	sort.SliceStable(report.Champions, func(i, j int) bool {
		a, b := report.Champions[i], report.Champions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SeasonID != b.SeasonID {
			return a.SeasonID < b.SeasonID
		}
		return a.AgentNumber < b.AgentNumber
	})
	if p.MaxTotalChampions != nil && len(report.Champions) > *p.MaxTotalChampions {
		report.Champions = report.Champions[:*p.MaxTotalChampions]
	}

	return report, nil
}

// rankSeason sorts scores descending by score, tie-broken by ascending
// agent_number (spec §4.10 "deterministic tie-break by agent_number").
func rankSeason(seasonID string, scores []AgentScore) SeasonRanking {
	ranked := append([]AgentScore(nil), scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AgentNumber < ranked[j].AgentNumber
	})
	return SeasonRanking{SeasonID: seasonID, Ranked: ranked}
}

func (s *Service) scoreSeason(ctx context.Context, seasonID string) ([]AgentScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT al.child_agent_number,
		       EXTRACT(EPOCH FROM (COALESCE(a.died_at, now()) - a.created_at)) / 3600.0 AS survival_hours,
		       COALESCE((SELECT SUM(quantity) FROM agent_inventory ai WHERE ai.agent_number = al.child_agent_number), 0) AS wealth_units,
		       COALESCE((SELECT COUNT(*) FROM laws l WHERE l.author = al.child_agent_number), 0) AS laws_authored,
		       COALESCE((SELECT COUNT(*) FROM enforcements e WHERE e.initiator = al.child_agent_number AND e.status = 'executed'), 0) AS enforcements_won
		FROM agent_lineage al
		JOIN agents a ON a.agent_number = al.child_agent_number
		WHERE al.season_id = $1
	`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("querying season agents: %w", err)
	}
	defer rows.Close()

	var scores []AgentScore
	for rows.Next() {
		var sc AgentScore
		sc.SeasonID = seasonID
		if err := rows.Scan(&sc.AgentNumber, &sc.SurvivalHours, &sc.WealthUnits, &sc.LawsAuthored, &sc.EnforcementsWon); err != nil {
			return nil, fmt.Errorf("scanning agent score row: %w", err)
		}
		sc.Score = sc.computeScore()
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// PersistReport marshals the epoch report, registers its
// run_report_artifacts row under jsonPath and markdownPath, and returns the
// marshaled JSON. It writes no file; the caller writes the returned bytes
// to jsonPath, mirroring internal/report's json+markdown pairing.
func (s *Service) PersistReport(ctx context.Context, runID, jsonPath, markdownPath string, report EpochReport) ([]byte, error) {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling epoch report: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO run_report_artifacts (run_id, artifact_type, json_path, markdown_path, generated_at)
		VALUES ($1, 'epoch', $2, $3, now())
	`, runID, jsonPath, markdownPath); err != nil {
		return nil, fmt.Errorf("registering epoch report artifact: %w", err)
	}
	return raw, nil
}
