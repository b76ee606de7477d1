package salience

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drmixer/emergence/internal/models"
)

func agentPtr(n int) *int { return &n }

func TestScoreSalientEventType(t *testing.T) {
	ev := models.Event{EventType: "law_passed", Description: "a new law"}
	assert.Equal(t, 3, Score(ev, 0))
}

func TestScoreFocalAgentBonus(t *testing.T) {
	ev := models.Event{EventType: "trade_completed", AgentNumber: agentPtr(5), Description: "trade"}
	assert.Equal(t, 1, Score(ev, 5))
	assert.Equal(t, 0, Score(ev, 6))
}

func TestScoreKeywordLexicon(t *testing.T) {
	ev := models.Event{EventType: "message_sent", Description: "an alliance was formed after a famine"}
	assert.Equal(t, 2, Score(ev, 0))
}

func TestScoreMetadataBonus(t *testing.T) {
	ev := models.Event{EventType: "crisis", Description: "", Metadata: map[string]any{"critical": true}}
	assert.Equal(t, 2, Score(ev, 0))
}

func TestScoreInterruptCheckpointIsSalient(t *testing.T) {
	ev := models.Event{EventType: "interrupt_sanctioned", Description: ""}
	assert.Equal(t, 3, Score(ev, 0))
}

func TestRankEventsStableTieBreak(t *testing.T) {
	events := []models.Event{
		{ID: 1, EventType: "idle_tick", Description: "a"},
		{ID: 2, EventType: "idle_tick", Description: "b"},
		{ID: 3, EventType: "law_passed", Description: "c"},
	}
	ranked := RankEvents(events, 0)
	assert.Equal(t, int64(3), ranked[0].ID)
	assert.Equal(t, int64(1), ranked[1].ID)
	assert.Equal(t, int64(2), ranked[2].ID)
}

func TestRankHighlightsTruncatesToTopN(t *testing.T) {
	events := []models.Event{
		{ID: 1, EventType: "law_passed"},
		{ID: 2, EventType: "law_passed"},
		{ID: 3, EventType: "idle_tick"},
	}
	top := RankHighlights(events, 2)
	assert.Len(t, top, 2)
}
