package agentcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionBudgetSectionContainsRequiredSubstrings(t *testing.T) {
	resetAt := time.Date(2026, 7, 31, 14, 5, 0, 0, time.UTC)

	out := renderActionBudget(2, 3, resetAt)

	assert.Contains(t, out, "- Actions used this hour: 2/3")
	assert.Contains(t, out, "- Remaining actions this hour: 1")
	assert.Contains(t, out, "- Next action slot reset (UTC): 2026-07-31T14:05:00Z")
}

func TestActionBudgetRemainingNeverNegative(t *testing.T) {
	out := renderActionBudget(5, 3, time.Now())
	assert.Contains(t, out, "- Actions used this hour: 5/3")
	assert.Contains(t, out, "- Remaining actions this hour: 0")
}
