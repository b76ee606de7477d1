package season

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmixer/emergence/internal/models"
)

func TestBuildSeedPlanCarriesSurvivorsSortedByAgentNumber(t *testing.T) {
	p := SeedParams{SeasonID: "season-2", ParentRunID: "run-1", TransferPolicyVersion: "v1", TargetAgentCount: 5}

	plan := buildSeedPlan(p, []int{4, 1, 3}, 4, nil)

	require.Len(t, plan.Lineage, 5)
	assert.Equal(t, 3, plan.CarryoverCount)
	assert.Equal(t, 2, plan.FreshCount)
	assert.Equal(t, 1, plan.Lineage[0].ChildAgentNumber)
	assert.Equal(t, 3, plan.Lineage[1].ChildAgentNumber)
	assert.Equal(t, 4, plan.Lineage[2].ChildAgentNumber)
	assert.Equal(t, models.LineageCarryover, plan.Lineage[2].Origin)
	assert.Equal(t, 5, plan.Lineage[3].ChildAgentNumber)
	assert.Equal(t, models.LineageFresh, plan.Lineage[3].Origin)
	assert.Equal(t, 6, plan.Lineage[4].ChildAgentNumber)
}

func TestBuildSeedPlanCapsCarryoverAtTargetCount(t *testing.T) {
	p := SeedParams{SeasonID: "season-2", TargetAgentCount: 2}

	plan := buildSeedPlan(p, []int{1, 2, 3, 4}, 4, nil)

	assert.Equal(t, 2, plan.CarryoverCount)
	assert.Equal(t, 0, plan.FreshCount)
	assert.Len(t, plan.Lineage, 2)
	assert.Equal(t, 1, plan.Lineage[0].ChildAgentNumber)
	assert.Equal(t, 2, plan.Lineage[1].ChildAgentNumber)
}

func TestBuildSeedPlanIsDeterministicAndByteEqualAcrossCalls(t *testing.T) {
	p := SeedParams{SeasonID: "season-3", ParentRunID: "run-1", TransferPolicyVersion: "v1", TargetAgentCount: 4, CarryPassedLaws: true}

	plan1 := buildSeedPlan(p, []int{2, 1}, 2, []int64{7, 9})
	plan2 := buildSeedPlan(p, []int{2, 1}, 2, []int64{7, 9})

	j1, err := json.Marshal(plan1)
	require.NoError(t, err)
	j2, err := json.Marshal(plan2)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2), "dry-run and real-seed plans must be byte-equal JSON for identical inputs")
}

func TestSeedNextSeasonRejectsUnknownPolicyVersion(t *testing.T) {
	s := New(nil)
	_, err := s.SeedNextSeason(nil, SeedParams{TransferPolicyVersion: "vNope"}) //nolint:staticcheck // nil ctx is fine, rejected before any I/O
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transfer policy version")
}

func TestSeedNextSeasonRequiresConfirmForRealSeed(t *testing.T) {
	s := New(nil)
	_, err := s.SeedNextSeason(nil, SeedParams{TransferPolicyVersion: "v1", DryRun: false, Confirm: false}) //nolint:staticcheck
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --confirm")
}
