package guardrail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmixer/emergence/internal/store"
)

// fakePool lets tests control utilization without a live database.
type fakePool struct {
	util float64
}

func (f *fakePool) Health(ctx context.Context) (store.HealthStatus, error) {
	return store.HealthStatus{Healthy: true, UtilizationFrac: f.util}, nil
}

func TestEvaluateDBPoolPressureRequiresConsecutiveChecks(t *testing.T) {
	s := &Service{pool: &fakePool{util: 0.9}}

	ctx := context.Background()
	threshold := 0.8
	consecutiveRequired := 2

	decision, err := s.evaluateDBPoolPressureWith(ctx, threshold, consecutiveRequired)
	require.NoError(t, err)
	assert.False(t, decision.ShouldStop, "first breach must not stop immediately")

	decision, err = s.evaluateDBPoolPressureWith(ctx, threshold, consecutiveRequired)
	require.NoError(t, err)
	assert.True(t, decision.ShouldStop)
	assert.Equal(t, ReasonDBPoolPressure, decision.Reason)
}

func TestEvaluateDBPoolPressureResetsOnRecovery(t *testing.T) {
	s := &Service{pool: &fakePool{util: 0.9}}
	ctx := context.Background()

	_, err := s.evaluateDBPoolPressureWith(ctx, 0.8, 2)
	require.NoError(t, err)

	s.pool = &fakePool{util: 0.1}
	decision, err := s.evaluateDBPoolPressureWith(ctx, 0.8, 2)
	require.NoError(t, err)
	assert.False(t, decision.ShouldStop)
	assert.Equal(t, 0, s.consecutivePoolPressure)
}

func TestStopDecisionDetailsIncludeHardBudget(t *testing.T) {
	decision := StopDecision{
		ShouldStop: true,
		Reason:     ReasonHardBudgetExceeded,
		Details: map[string]any{
			"hard_budget_usd":   1.0,
			"observed_cost_usd": 1.1,
		},
	}
	assert.Equal(t, 1.0, decision.Details["hard_budget_usd"])
	assert.InDelta(t, 1.1, decision.Details["observed_cost_usd"].(float64), 1e-9)
}

func TestProviderFailureCounterDefaultsToNoStop(t *testing.T) {
	providerFailureCounter = nil
	s := &Service{}
	decision, err := s.evaluateProviderFailuresWith(context.Background(), 15*time.Minute, 10)
	require.NoError(t, err)
	assert.False(t, decision.ShouldStop)
}
