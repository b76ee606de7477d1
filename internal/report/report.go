// Package report generates the JSON+markdown artifact pairs named in spec
// §6 (export_run_report, generate_next_run_plan, rebuild_run_bundle) and
// the supplemented weekly-digest/story-report/highlight-review features
// recovered from original_source/ (SPEC_FULL.md "SUPPLEMENTED FEATURES").
// It reads already-committed Event/EmergenceMetricSnapshot rows, adds no
// new invariants of its own, and writes only its artifact files and their
// run_report_artifacts rows.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmixer/emergence/internal/clock"
	"github.com/drmixer/emergence/internal/models"
	"github.com/drmixer/emergence/internal/salience"
)

// Service generates report artifacts against a shared pool and writes
// them under outputDir (spec §6: output/reports/{runs,conditions,epochs}/...).
type Service struct {
	pool      *pgxpool.Pool
	outputDir string
}

// New creates a report service rooted at outputDir.
func New(pool *pgxpool.Pool, outputDir string) *Service {
	return &Service{pool: pool, outputDir: outputDir}
}

// RunSummary is the technical run report (export_run_report).
type RunSummary struct {
	RunID          string                          `json:"run_id"`
	ConditionName  string                          `json:"condition_name,omitempty"`
	SeasonNumber   int                             `json:"season_number,omitempty"`
	RunMode        models.RunMode                  `json:"run_mode"`
	RunClass       models.RunClass                 `json:"run_class"`
	StartedAt      time.Time                       `json:"started_at"`
	EndedAt        *time.Time                      `json:"ended_at,omitempty"`
	DailyMetrics   []models.EmergenceMetricSnapshot `json:"daily_metrics"`
	Highlights     []models.Event                  `json:"highlights"`
	GeneratedAt    string                          `json:"generated_at"`
}

// GenerateRunSummary reads the run row, every daily metrics snapshot, and
// the top-10 highlight events, assembling the deterministic payload
// export_run_report prints.
func (s *Service) GenerateRunSummary(ctx context.Context, runID, conditionName string, seasonNumber int) (RunSummary, error) {
	var summary RunSummary
	summary.RunID = runID
	summary.ConditionName = conditionName
	summary.SeasonNumber = seasonNumber

	err := s.pool.QueryRow(ctx, `
		SELECT run_mode, run_class, started_at, ended_at FROM simulation_runs WHERE run_id = $1
	`, runID).Scan(&summary.RunMode, &summary.RunClass, &summary.StartedAt, &summary.EndedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("reading run %q: %w", runID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, simulation_day, participation, coalition_churn, gini, conflict_rate, cooperation_rate, created_at
		FROM emergence_metric_snapshots WHERE run_id = $1 ORDER BY simulation_day
	`, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("querying daily metrics: %w", err)
	}
	for rows.Next() {
		var m models.EmergenceMetricSnapshot
		if err := rows.Scan(&m.RunID, &m.SimulationDay, &m.Participation, &m.CoalitionChurn, &m.Gini, &m.ConflictRate, &m.CooperationRate, &m.CreatedAt); err != nil {
			rows.Close()
			return RunSummary{}, err
		}
		summary.DailyMetrics = append(summary.DailyMetrics, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RunSummary{}, err
	}

	highlights, err := s.loadHighlights(ctx, 10)
	if err != nil {
		return RunSummary{}, err
	}
	summary.Highlights = highlights
	summary.GeneratedAt = clock.FormatUTC(clock.Now())

	return summary, nil
}

// loadHighlights scores the most recent events with salience.RankHighlights
// (SPEC_FULL.md "Highlight-quality review" supplement).
func (s *Service) loadHighlights(ctx context.Context, topN int) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, agent_number, description, metadata, created_at
		FROM events ORDER BY created_at DESC LIMIT 500
	`)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AgentNumber, &ev.Description, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return salience.RankHighlights(events, topN), nil
}

// RenderRunSummaryMarkdown renders the markdown companion to a RunSummary.
func RenderRunSummaryMarkdown(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run report: %s\n\n", s.RunID)
	if s.ConditionName != "" {
		fmt.Fprintf(&b, "Condition: %s\n\n", s.ConditionName)
	}
	fmt.Fprintf(&b, "Mode: %s · Class: %s\n\n", s.RunMode, s.RunClass)
	fmt.Fprintf(&b, "Started: %s\n\n", clock.FormatUTC(s.StartedAt))

	b.WriteString("## Daily metrics\n\n")
	b.WriteString("| Day | Participation | Coalition churn | Gini | Conflict | Cooperation |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, m := range s.DailyMetrics {
		fmt.Fprintf(&b, "| %d | %.3f | %.3f | %.3f | %.3f | %.3f |\n",
			m.SimulationDay, m.Participation, m.CoalitionChurn, m.Gini, m.ConflictRate, m.CooperationRate)
	}

	b.WriteString("\n## Highlights\n\n")
	for _, ev := range s.Highlights {
		fmt.Fprintf(&b, "- [%s] %s\n", ev.EventType, ev.Description)
	}

	return b.String()
}

// WriteArtifactPair marshals jsonPayload and writes both it and markdown
// under s.outputDir/subdir/runID.{json,md}, then registers the pair in
// run_report_artifacts.
func (s *Service) WriteArtifactPair(ctx context.Context, runID, artifactType, subdir string, jsonPayload any, markdown string) (jsonPath, markdownPath string, err error) {
	dir := filepath.Join(s.outputDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating report directory %q: %w", dir, err)
	}

	raw, err := json.MarshalIndent(jsonPayload, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshaling %s report: %w", artifactType, err)
	}

	jsonPath = filepath.Join(dir, fmt.Sprintf("%s.json", runID))
	markdownPath = filepath.Join(dir, fmt.Sprintf("%s.md", runID))

	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", jsonPath, err)
	}
	if err := os.WriteFile(markdownPath, []byte(markdown), 0o644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", markdownPath, err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO run_report_artifacts (run_id, artifact_type, json_path, markdown_path, generated_at)
		VALUES ($1, $2, $3, $4, now())
	`, runID, artifactType, jsonPath, markdownPath); err != nil {
		return "", "", fmt.Errorf("registering %s artifact: %w", artifactType, err)
	}

	return jsonPath, markdownPath, nil
}

// NextRunPlan is the planner artifact (generate_next_run_plan): a
// recommendation for the next run's class and transfer policy, derived
// from the prior run's recorded deviation/season fields rather than any
// new decision logic of its own.
type NextRunPlan struct {
	RunID                    string   `json:"run_id"`
	ConditionName            string   `json:"condition_name,omitempty"`
	RecommendedRunClass      models.RunClass `json:"recommended_run_class"`
	RecommendedTransferPolicy string  `json:"recommended_transfer_policy_version"`
	Rationale                string   `json:"rationale"`
	GeneratedAt              string   `json:"generated_at"`
}

// GenerateNextRunPlan inspects the named run and proposes the following
// run's class: a deviation run is always followed by the baseline
// standard_72h class to re-stabilize the condition; otherwise the same
// class continues.
func (s *Service) GenerateNextRunPlan(ctx context.Context, runID, conditionName string) (NextRunPlan, error) {
	var runClass models.RunClass
	var transferPolicy string
	var deviation bool
	err := s.pool.QueryRow(ctx, `
		SELECT run_class, transfer_policy_version, protocol_deviation FROM simulation_runs WHERE run_id = $1
	`, runID).Scan(&runClass, &transferPolicy, &deviation)
	if err != nil {
		return NextRunPlan{}, fmt.Errorf("reading run %q: %w", runID, err)
	}

	plan := NextRunPlan{
		RunID:                     runID,
		ConditionName:             conditionName,
		RecommendedTransferPolicy: transferPolicy,
		GeneratedAt:               clock.FormatUTC(clock.Now()),
	}
	if deviation {
		plan.RecommendedRunClass = models.RunClassStandard72h
		plan.Rationale = fmt.Sprintf("run %q deviated from protocol; recommending standard_72h to re-stabilize the condition", runID)
	} else {
		plan.RecommendedRunClass = runClass
		plan.Rationale = fmt.Sprintf("run %q matched protocol; continuing with %s", runID, runClass)
	}
	return plan, nil
}

// RunBundle is the combined artifact set produced by rebuild_run_bundle:
// the technical summary and the planner recommendation, regenerated
// together in one call. Each is read by its own queries; the two reads
// do not share a transaction.
type RunBundle struct {
	Summary RunSummary  `json:"summary"`
	Plan    NextRunPlan `json:"plan"`
}

// RebuildRunBundle regenerates and re-persists both artifacts for runID.
func (s *Service) RebuildRunBundle(ctx context.Context, runID, conditionName string, seasonNumber int) (RunBundle, error) {
	summary, err := s.GenerateRunSummary(ctx, runID, conditionName, seasonNumber)
	if err != nil {
		return RunBundle{}, err
	}
	if _, _, err := s.WriteArtifactPair(ctx, runID, "run_summary", "runs", summary, RenderRunSummaryMarkdown(summary)); err != nil {
		return RunBundle{}, err
	}

	plan, err := s.GenerateNextRunPlan(ctx, runID, conditionName)
	if err != nil {
		return RunBundle{}, err
	}
	planMarkdown := fmt.Sprintf("# Next run plan: %s\n\nRecommended class: %s\n\n%s\n", runID, plan.RecommendedRunClass, plan.Rationale)
	if _, _, err := s.WriteArtifactPair(ctx, runID, "next_run_plan", "runs", plan, planMarkdown); err != nil {
		return RunBundle{}, err
	}

	return RunBundle{Summary: summary, Plan: plan}, nil
}

// WeeklyDigest aggregates EmergenceMetricSnapshot rows across every run
// that started within the trailing window, supplementing
// generate_weekly_digest.py.
type WeeklyDigest struct {
	WindowStart       string  `json:"window_start"`
	WindowEnd         string  `json:"window_end"`
	RunCount          int     `json:"run_count"`
	AvgParticipation  float64 `json:"avg_participation"`
	AvgGini           float64 `json:"avg_gini"`
	AvgConflictRate   float64 `json:"avg_conflict_rate"`
	AvgCooperationRate float64 `json:"avg_cooperation_rate"`
}

// GenerateWeeklyDigest averages daily metric snapshots across every run
// started within [since, now].
func (s *Service) GenerateWeeklyDigest(ctx context.Context, since time.Time) (WeeklyDigest, error) {
	now := clock.Now()
	digest := WeeklyDigest{WindowStart: clock.FormatUTC(since), WindowEnd: clock.FormatUTC(now)}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT sr.run_id),
			COALESCE(AVG(m.participation), 0),
			COALESCE(AVG(m.gini), 0),
			COALESCE(AVG(m.conflict_rate), 0),
			COALESCE(AVG(m.cooperation_rate), 0)
		FROM simulation_runs sr
		LEFT JOIN emergence_metric_snapshots m ON m.run_id = sr.run_id
		WHERE sr.started_at >= $1
	`, since).Scan(&digest.RunCount, &digest.AvgParticipation, &digest.AvgGini, &digest.AvgConflictRate, &digest.AvgCooperationRate)
	if err != nil {
		return WeeklyDigest{}, fmt.Errorf("aggregating weekly digest: %w", err)
	}
	return digest, nil
}
