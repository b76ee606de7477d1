package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drmixer/emergence/internal/models"
)

func TestRenderRunSummaryMarkdownIncludesDailyMetricsAndHighlights(t *testing.T) {
	s := RunSummary{
		RunID:   "run-1",
		RunMode: models.RunModeReal,
		RunClass: models.RunClassStandard72h,
		DailyMetrics: []models.EmergenceMetricSnapshot{
			{SimulationDay: 1, Participation: 0.8, Gini: 0.2, ConflictRate: 0.1, CooperationRate: 0.9},
		},
		Highlights: []models.Event{
			{EventType: "law_passed", Description: "Agent-07 passed a new tax law"},
		},
	}

	out := RenderRunSummaryMarkdown(s)

	assert.Contains(t, out, "# Run report: run-1")
	assert.Contains(t, out, "0.800")
	assert.Contains(t, out, "law_passed")
	assert.Contains(t, out, "Agent-07 passed a new tax law")
}

func TestRenderRunSummaryMarkdownOmitsConditionLineWhenUnset(t *testing.T) {
	out := RenderRunSummaryMarkdown(RunSummary{RunID: "run-1"})
	assert.NotContains(t, out, "Condition:")
}
