// Package action implements the tagged-union action schema (spec §6), its
// two-phase validate/execute state machine (spec §4.4), and the per-kind
// handlers, grounded in the teacher's stage-dispatch executor style
// (pkg/queue/executor.go).
package action

import (
	"encoding/json"
	"errors"

	"github.com/drmixer/emergence/internal/models"
)

// Kind is the action discriminator.
type Kind string

const (
	KindIdle             Kind = "idle"
	KindWork             Kind = "work"
	KindTrade            Kind = "trade"
	KindConsume          Kind = "consume"
	KindProduce          Kind = "produce"
	KindPropose          Kind = "propose"
	KindVote             Kind = "vote"
	KindMessage          Kind = "message"
	KindEnforceInitiate  Kind = "enforce_initiate"
	KindEnforceVote      Kind = "enforce_vote"
	KindSetName          Kind = "set_name"
)

// ResourceAmount is a (resource, quantity) pair used by work/trade/consume.
type ResourceAmount struct {
	Resource models.ResourceType `json:"resource"`
	Qty      int64               `json:"qty"`
}

// Action is the flat representation of the tagged-union schema in spec §6.
// Only the fields relevant to Kind are populated; unused fields are the
// zero value. A plain struct (rather than one interface type per kind) is
// deliberate: dispatch produces this directly from a model's JSON
// response, and json.Unmarshal onto a single flat struct tolerates any
// subset of fields present; the only custom decoding is UnmarshalJSON's
// routing of the shared "vote" key.
type Action struct {
	Kind Kind `json:"action"`

	// work
	Job string `json:"job,omitempty"`

	// trade
	TargetAgentNumber int             `json:"target_agent_number,omitempty"`
	Give              *ResourceAmount `json:"give,omitempty"`
	Receive           *ResourceAmount `json:"receive,omitempty"`

	// consume / produce
	Resource models.ResourceType `json:"resource,omitempty"`
	Qty      int64               `json:"qty,omitempty"`

	// propose
	ProposalType models.ProposalType `json:"proposal_type,omitempty"`
	Title        string              `json:"title,omitempty"`
	Description  string              `json:"description,omitempty"`
	TargetLawID  *int64              `json:"target_law_id,omitempty"`

	// vote
	ProposalID int64              `json:"proposal_id,omitempty"`
	Vote       models.VoteChoice  `json:"vote,omitempty"`

	// message
	Body string `json:"body,omitempty"`

	// enforce_initiate
	EnforcementType     models.EnforcementType `json:"enforcement_type,omitempty"`
	LawID               int64                  `json:"law_id,omitempty"`
	ViolationDescription string               `json:"violation_description,omitempty"`

	// enforce_vote. The wire key is the same "vote" the proposal ballot
	// uses; UnmarshalJSON routes it here when the discriminator is
	// enforce_vote.
	EnforcementID   int64                        `json:"enforcement_id,omitempty"`
	EnforcementVote models.EnforcementVoteChoice `json:"-"`

	// set_name
	DisplayName string `json:"display_name,omitempty"`
}

// UnmarshalJSON decodes the flat schema, then resolves the shared "vote"
// key: a proposal vote carries yes|no, an enforcement vote carries
// support|oppose, both under the same field name in the wire format.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	if a.Kind == KindEnforceVote {
		a.EnforcementVote = models.EnforcementVoteChoice(a.Vote)
		a.Vote = ""
	}
	return nil
}

// Result is the outcome of processing one action, recorded as an
// AgentAction row and consumed by the per-turn processor for backoff
// decisions.
type Result struct {
	Valid   bool
	Reason  string // why the action was rejected, or a note on a valid no-op (set_name)
	Events  []models.Event
}

// Job values accepted by the work action (spec §4.4 "farm|generate|gather").
const (
	JobFarm     = "farm"
	JobGenerate = "generate"
	JobGather   = "gather"
)

var validJobs = map[string]bool{JobFarm: true, JobGenerate: true, JobGather: true}

// Sentinel errors naming the error kinds in spec §7. No handler in this
// package returns them: a validation failure is reported as
// Result{Valid: false} with a Reason, and Engine.Execute records the
// AgentAction row and the invalid_action event for it.
var (
	ErrValidationFailure  = errors.New("validation failure")
	ErrIntegrityViolation = errors.New("integrity violation")
)
