package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/drmixer/emergence/internal/metrics"
)

// observeTick records a scheduler job's duration in the tick histogram.
func observeTick(job string, d time.Duration) {
	metrics.SchedulerTickDuration.WithLabelValues(job).Observe(d.Seconds())
}

// conflictEventTypes and cooperationEventTypes partition the event kinds
// that feed the daily conflict/cooperation rates. Event types outside
// both sets (idle ticks, config changes) count toward neither.
var conflictEventTypes = map[string]bool{
	"enforcement_executed": true,
	"enforcement_rejected": true,
	"invalid_action":       true,
	"agent_died":           true,
}

var cooperationEventTypes = map[string]bool{
	"action_executed":   true,
	"law_passed":        true,
	"proposal_resolved": true,
}

// agentPair is an unordered (low, high) agent pair derived from a directed
// message, the edge unit for coalition tracking.
type agentPair struct {
	low, high int
}

func makePair(a, b int) agentPair {
	if a > b {
		a, b = b, a
	}
	return agentPair{low: a, high: b}
}

// ComputeEmergenceMetrics rolls up one simulation day's snapshot:
// participation, coalition churn from message co-occurrence, Gini on
// wealth, and conflict/cooperation rates from event types (spec §4.7).
// The insert is idempotent on (run_id, simulation_day) — re-running the
// tick for an already-snapshotted day is a no-op.
func (s *Service) ComputeEmergenceMetrics(ctx context.Context, runID string, day int, dayStart, dayEnd time.Time) error {
	started := time.Now()
	defer func() {
		observeTick("emergence_metrics", time.Since(started))
	}()

	living, err := s.countLivingAgents(ctx)
	if err != nil {
		return err
	}

	participation, err := s.computeParticipation(ctx, living, dayStart, dayEnd)
	if err != nil {
		return err
	}

	wealth, err := s.loadWealthDistribution(ctx)
	if err != nil {
		return err
	}
	gini := giniCoefficient(wealth)

	conflict, cooperation, err := s.computeEventRates(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}

	prevEdges, err := s.loadCoalitionEdges(ctx, dayStart.AddDate(0, 0, -1), dayStart)
	if err != nil {
		return err
	}
	curEdges, err := s.loadCoalitionEdges(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}
	churn := coalitionChurn(prevEdges, curEdges)

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO emergence_metric_snapshots
			(run_id, simulation_day, participation, coalition_churn, gini, conflict_rate, cooperation_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (run_id, simulation_day) DO NOTHING
	`, runID, day, participation, churn, gini, conflict, cooperation); err != nil {
		return fmt.Errorf("writing emergence metric snapshot for day %d: %w", day, err)
	}
	return nil
}

func (s *Service) countLivingAgents(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM agents WHERE status != 'dead'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting living agents: %w", err)
	}
	return n, nil
}

// computeParticipation returns the fraction of living agents that recorded
// at least one action inside the day window.
func (s *Service) computeParticipation(ctx context.Context, living int, dayStart, dayEnd time.Time) (float64, error) {
	if living == 0 {
		return 0, nil
	}
	var actors int
	err := s.pool.QueryRow(ctx, `
		SELECT count(DISTINCT agent_number) FROM agent_actions
		WHERE created_at >= $1 AND created_at < $2
	`, dayStart, dayEnd).Scan(&actors)
	if err != nil {
		return 0, fmt.Errorf("counting participating agents: %w", err)
	}
	return float64(actors) / float64(living), nil
}

func (s *Service) loadWealthDistribution(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(SUM(i.quantity), 0)
		FROM agents a
		LEFT JOIN agent_inventory i ON i.agent_number = a.agent_number
		WHERE a.status != 'dead'
		GROUP BY a.agent_number
	`)
	if err != nil {
		return nil, fmt.Errorf("querying wealth distribution: %w", err)
	}
	defer rows.Close()

	var wealth []int64
	for rows.Next() {
		var w int64
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		wealth = append(wealth, w)
	}
	return wealth, rows.Err()
}

// computeEventRates returns the day's conflict and cooperation event
// counts, each normalized by the total events in the window.
func (s *Service) computeEventRates(ctx context.Context, dayStart, dayEnd time.Time) (conflict, cooperation float64, err error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, count(*) FROM events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY event_type
	`, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("counting day events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return 0, 0, err
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	conflict, cooperation = eventRates(counts)
	return conflict, cooperation, nil
}

// eventRates is the pure body of computeEventRates, normalizing the
// conflict/cooperation event counts by the window's total event count.
func eventRates(counts map[string]int) (conflict, cooperation float64) {
	total := 0
	conflictCount := 0
	cooperationCount := 0
	for eventType, n := range counts {
		total += n
		if conflictEventTypes[eventType] {
			conflictCount += n
		}
		if cooperationEventTypes[eventType] {
			cooperationCount += n
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(conflictCount) / float64(total), float64(cooperationCount) / float64(total)
}

// loadCoalitionEdges derives the window's coalition graph from directed
// messages: every (from, to) message contributes one unordered edge.
// Broadcasts (nil to_agent) carry no pairwise signal and are skipped.
func (s *Service) loadCoalitionEdges(ctx context.Context, windowStart, windowEnd time.Time) (map[agentPair]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT from_agent, to_agent FROM messages
		WHERE to_agent IS NOT NULL AND created_at >= $1 AND created_at < $2
	`, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("querying coalition edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[agentPair]bool)
	for rows.Next() {
		var from, to int
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[makePair(from, to)] = true
	}
	return edges, rows.Err()
}

// coalitionChurn measures how much the coalition graph moved between two
// consecutive days: 1 - |intersection| / |union| of the edge sets (Jaccard
// distance). Two empty days have churn 0 — nothing existed to move.
func coalitionChurn(prev, cur map[agentPair]bool) float64 {
	union := len(prev)
	intersection := 0
	for edge := range cur {
		if prev[edge] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}

// giniCoefficient computes the Gini index of the wealth distribution:
// 0 for perfect equality, approaching 1 as one agent holds everything.
// An empty or all-zero distribution is perfectly equal.
func giniCoefficient(wealth []int64) float64 {
	if len(wealth) == 0 {
		return 0
	}
	sorted := append([]int64(nil), wealth...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total int64
	for _, w := range sorted {
		total += w
	}
	if total == 0 {
		return 0
	}

	// Gini = (2 * sum(i * w_i) / (n * total)) - (n + 1) / n, 1-indexed
	// over the ascending-sorted distribution.
	var weighted float64
	for i, w := range sorted {
		weighted += float64(i+1) * float64(w)
	}
	n := float64(len(sorted))
	return (2*weighted)/(n*float64(total)) - (n+1)/n
}
