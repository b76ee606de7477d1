package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentScoreComputeScoreAppliesFixedWeights(t *testing.T) {
	sc := AgentScore{SurvivalHours: 10, WealthUnits: 200, LawsAuthored: 1, EnforcementsWon: 2}
	got := sc.computeScore()
	want := 10*weightSurvivalHour + 200*weightWealthUnit + 1*weightLawAuthored + 2*weightEnforcementWon
	assert.InDelta(t, want, got, 1e-9)
}

func TestRankSeasonOrdersByScoreDescending(t *testing.T) {
	scores := []AgentScore{
		{AgentNumber: 1, Score: 10},
		{AgentNumber: 2, Score: 30},
		{AgentNumber: 3, Score: 20},
	}
	ranking := rankSeason("season-1", scores)
	assert.Equal(t, []int{2, 3, 1}, agentNumbers(ranking.Ranked))
}

func TestRankSeasonTieBreaksByAscendingAgentNumber(t *testing.T) {
	scores := []AgentScore{
		{AgentNumber: 5, Score: 10},
		{AgentNumber: 2, Score: 10},
		{AgentNumber: 3, Score: 10},
	}
	ranking := rankSeason("season-1", scores)
	assert.Equal(t, []int{2, 3, 5}, agentNumbers(ranking.Ranked))
}

func TestRankSeasonIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	s := &Service{}
	// scoreSeason hits the DB, so this exercises only the per-season
	// ranking (rankSeason); the cross-season sort and cap inside
	// SelectChampions are not covered here.
	a := rankSeason("s1", []AgentScore{{AgentNumber: 1, Score: 5}, {AgentNumber: 2, Score: 5}})
	b := rankSeason("s1", []AgentScore{{AgentNumber: 1, Score: 5}, {AgentNumber: 2, Score: 5}})
	assert.Equal(t, a, b)
	_ = s
}

func agentNumbers(scores []AgentScore) []int {
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = s.AgentNumber
	}
	return out
}
