package llmdispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmixer/emergence/internal/action"
)

func TestRoutineProviderClientNeverFails(t *testing.T) {
	client := NewRoutineProviderClient()
	resp, err := client.Call(context.Background(), "anthropic", "claude-sonnet-4", Request{AgentNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, action.KindIdle, resp.Action.Kind)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 0, resp.PromptTokens)
}
