package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCostBYOKIsFree(t *testing.T) {
	cost := EstimateCost("claude-sonnet-4", 1000, 1000, true)
	assert.Equal(t, float64(0), cost)
}

func TestEstimateCostUsesPriceTable(t *testing.T) {
	cost := EstimateCost("gpt-4o-mini", 1000, 1000, false)
	assert.InDelta(t, 0.00015+0.0006, cost, 1e-9)
}

func TestEstimateCostUnknownModelIsZero(t *testing.T) {
	cost := EstimateCost("totally-unknown-model", 1000, 1000, false)
	assert.Equal(t, float64(0), cost)
}

func TestEstimateCostNeverNegative(t *testing.T) {
	for model := range PriceTable {
		cost := EstimateCost(model, 0, 0, false)
		assert.GreaterOrEqual(t, cost, float64(0))
	}
}
