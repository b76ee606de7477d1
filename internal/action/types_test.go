package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmixer/emergence/internal/models"
)

func TestActionUnmarshalsWorkSchema(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"work","job":"farm"}`), &act))
	assert.Equal(t, KindWork, act.Kind)
	assert.Equal(t, JobFarm, act.Job)
}

func TestActionUnmarshalsTradeSchema(t *testing.T) {
	var act Action
	body := `{"action":"trade","target_agent_number":7,"give":{"resource":"food","qty":5},"receive":{"resource":"energy","qty":3}}`
	require.NoError(t, json.Unmarshal([]byte(body), &act))
	assert.Equal(t, KindTrade, act.Kind)
	assert.Equal(t, 7, act.TargetAgentNumber)
	require.NotNil(t, act.Give)
	assert.Equal(t, models.ResourceFood, act.Give.Resource)
	assert.EqualValues(t, 5, act.Give.Qty)
	require.NotNil(t, act.Receive)
	assert.EqualValues(t, 3, act.Receive.Qty)
}

func TestActionUnmarshalsMessageWithNilTarget(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"message","body":"hello everyone"}`), &act))
	assert.Equal(t, KindMessage, act.Kind)
	assert.Equal(t, 0, act.TargetAgentNumber) // absent target_agent_number == broadcast
	assert.Equal(t, "hello everyone", act.Body)
}

func TestActionUnmarshalsVoteSchema(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"vote","proposal_id":12,"vote":"yes"}`), &act))
	assert.Equal(t, KindVote, act.Kind)
	assert.EqualValues(t, 12, act.ProposalID)
	assert.Equal(t, models.VoteYes, act.Vote)
	assert.Empty(t, act.EnforcementVote)
}

func TestActionUnmarshalsEnforceVoteSharedVoteKey(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"enforce_vote","enforcement_id":4,"vote":"support"}`), &act))
	assert.Equal(t, KindEnforceVote, act.Kind)
	assert.EqualValues(t, 4, act.EnforcementID)
	assert.Equal(t, models.EnforcementVoteSupport, act.EnforcementVote)
	assert.Empty(t, act.Vote, "the shared vote key must not leak into the proposal ballot field")
}

func TestActionUnmarshalsIdleSchema(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"idle"}`), &act))
	assert.Equal(t, KindIdle, act.Kind)
}

func TestActionUnmarshalsSetNameSchema(t *testing.T) {
	var act Action
	require.NoError(t, json.Unmarshal([]byte(`{"action":"set_name","display_name":"Ignored-99"}`), &act))
	assert.Equal(t, KindSetName, act.Kind)
	assert.Equal(t, "Ignored-99", act.DisplayName)
}

func TestHandleSetNameIsANoOpThatSucceeds(t *testing.T) {
	result, err := handleSetName(nil, nil, 1, Action{Kind: KindSetName, DisplayName: "anything"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Contains(t, result.Reason, "immutable")
}

func TestHandleIdleAlwaysValid(t *testing.T) {
	result, err := handleIdle(nil, nil, 1, Action{Kind: KindIdle})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
