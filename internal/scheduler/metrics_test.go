package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGiniCoefficientPerfectEquality(t *testing.T) {
	assert.InDelta(t, 0, giniCoefficient([]int64{10, 10, 10, 10}), 1e-9)
}

func TestGiniCoefficientEmptyAndZeroDistributions(t *testing.T) {
	assert.Equal(t, float64(0), giniCoefficient(nil))
	assert.Equal(t, float64(0), giniCoefficient([]int64{0, 0, 0}))
}

func TestGiniCoefficientConcentratedWealth(t *testing.T) {
	// One agent holds everything: Gini = (n-1)/n for n agents.
	got := giniCoefficient([]int64{0, 0, 0, 100})
	assert.InDelta(t, 0.75, got, 1e-9)
}

func TestGiniCoefficientIsOrderIndependent(t *testing.T) {
	a := giniCoefficient([]int64{5, 50, 10, 35})
	b := giniCoefficient([]int64{50, 35, 10, 5})
	assert.InDelta(t, a, b, 1e-9)
}

func TestCoalitionChurnBothDaysEmpty(t *testing.T) {
	assert.Equal(t, float64(0), coalitionChurn(nil, nil))
}

func TestCoalitionChurnIdenticalGraphs(t *testing.T) {
	edges := map[agentPair]bool{makePair(1, 2): true, makePair(2, 3): true}
	assert.InDelta(t, 0, coalitionChurn(edges, edges), 1e-9)
}

func TestCoalitionChurnCompleteTurnover(t *testing.T) {
	prev := map[agentPair]bool{makePair(1, 2): true}
	cur := map[agentPair]bool{makePair(3, 4): true}
	assert.InDelta(t, 1, coalitionChurn(prev, cur), 1e-9)
}

func TestCoalitionChurnPartialOverlap(t *testing.T) {
	prev := map[agentPair]bool{makePair(1, 2): true, makePair(2, 3): true}
	cur := map[agentPair]bool{makePair(1, 2): true, makePair(3, 4): true}
	// intersection 1, union 3
	assert.InDelta(t, 1-1.0/3.0, coalitionChurn(prev, cur), 1e-9)
}

func TestMakePairNormalizesDirection(t *testing.T) {
	assert.Equal(t, makePair(7, 3), makePair(3, 7))
}

func TestEventRatesPartitionsByType(t *testing.T) {
	counts := map[string]int{
		"enforcement_executed": 2,
		"action_executed":      6,
		"config_changed":       2,
	}
	conflict, cooperation := eventRates(counts)
	assert.InDelta(t, 0.2, conflict, 1e-9)
	assert.InDelta(t, 0.6, cooperation, 1e-9)
}

func TestEventRatesEmptyDay(t *testing.T) {
	conflict, cooperation := eventRates(nil)
	assert.Equal(t, float64(0), conflict)
	assert.Equal(t, float64(0), cooperation)
}
