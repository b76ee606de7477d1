package models

import "time"

// Agent is the canonical per-agent row (spec §3).
type Agent struct {
	AgentNumber      int          `json:"agent_number"`
	DisplayName      string       `json:"display_name"`
	ModelType        ModelType    `json:"model_type"`
	Tier             string       `json:"tier"`
	PersonalityType  string       `json:"personality_type"`
	Status           AgentStatus  `json:"status"`
	Exiled           bool         `json:"exiled"`
	SanctionedUntil  *time.Time   `json:"sanctioned_until,omitempty"`
	StarvationCycles int          `json:"starvation_cycles"`
	DiedAt           *time.Time   `json:"died_at,omitempty"`
	DeathCause       *DeathCause  `json:"death_cause,omitempty"`
	CurrentIntent    *Intent      `json:"current_intent,omitempty"`
	LastCheckpointAt *time.Time   `json:"last_checkpoint_at,omitempty"`
	NextCheckpointAt *time.Time   `json:"next_checkpoint_at,omitempty"`
	SystemPrompt     string       `json:"system_prompt"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Intent is the agent's opaque current-intent mapping.
type Intent struct {
	CheckpointNumber int            `json:"checkpoint_number"`
	ExpiresAt        time.Time      `json:"expires_at"`
	Data             map[string]any `json:"data,omitempty"`
}

// IsActive reports whether the agent may take turns (not exiled, status
// active, and not under an unexpired sanction).
func (a *Agent) IsActive(now time.Time) bool {
	if a.Status != AgentStatusActive || a.Exiled {
		return false
	}
	if a.SanctionedUntil != nil && now.Before(*a.SanctionedUntil) {
		return false
	}
	return true
}

// AgentInventory is a (agent, resource) -> quantity row. Uniqueness on
// (agent_number, resource_type); quantity is never negative after commit.
type AgentInventory struct {
	AgentNumber  int          `json:"agent_number"`
	ResourceType ResourceType `json:"resource_type"`
	Quantity     int64        `json:"quantity"`
}

// GlobalResources is the singleton snapshot of aggregate pools.
type GlobalResources struct {
	ID           int            `json:"id"`
	TotalFood    int64          `json:"total_food"`
	TotalEnergy  int64          `json:"total_energy"`
	TotalMaterials int64        `json:"total_materials"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Message is an immutable, directed-or-broadcast timestamped message.
type Message struct {
	ID             int64     `json:"id"`
	FromAgent      int       `json:"from_agent"`
	ToAgent        *int      `json:"to_agent,omitempty"` // nil = broadcast
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Proposal is a governance proposal subject to a vote.
type Proposal struct {
	ID             int64          `json:"id"`
	Author         int            `json:"author"`
	ProposalType   ProposalType   `json:"proposal_type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         ProposalStatus `json:"status"`
	TargetLawID    *int64         `json:"target_law_id,omitempty"` // for repeal proposals
	VotingClosesAt time.Time      `json:"voting_closes_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Vote is a single agent's ballot on a Proposal. First write wins: a second
// row for the same (proposal_id, agent_id) is rejected, never overwritten.
type Vote struct {
	ProposalID int64      `json:"proposal_id"`
	AgentNumber int       `json:"agent_number"`
	Choice     VoteChoice `json:"choice"`
	CastAt     time.Time  `json:"cast_at"`
}

// Law is an active or repealed rule created by a passed law proposal.
type Law struct {
	ID                   int64      `json:"id"`
	Author               int        `json:"author"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Active               bool       `json:"active"`
	PassedAt             time.Time  `json:"passed_at"`
	RepealedAt           *time.Time `json:"repealed_at,omitempty"`
	RepealedByProposalID *int64     `json:"repealed_by_proposal_id,omitempty"`
}

// Event is an append-only audit record driving salience scoring and any
// external fanout (SSE is out of scope for this core — see spec §1).
type Event struct {
	ID          int64          `json:"id"`
	EventType   string         `json:"event_type"`
	AgentNumber *int           `json:"agent_number,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Transaction is a typed ledger row.
type Transaction struct {
	ID              int64           `json:"id"`
	TransactionType TransactionType `json:"transaction_type"`
	FromAgent       *int            `json:"from_agent,omitempty"`
	ToAgent         *int            `json:"to_agent,omitempty"`
	ResourceType    ResourceType    `json:"resource_type"`
	Quantity        int64           `json:"quantity"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AgentAction is an append-only record of each attempted action, used for
// rate limiting (trailing-60-minutes window, spec §4.5).
type AgentAction struct {
	ID          int64     `json:"id"`
	AgentNumber int       `json:"agent_number"`
	ActionKind  string    `json:"action_kind"`
	Valid       bool      `json:"valid"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enforcement is a sanction/seizure/exile request moving through a bounded
// state machine (spec §6).
type Enforcement struct {
	ID                 int64             `json:"id"`
	Initiator          int               `json:"initiator"`
	Target             int               `json:"target"`
	LawID              int64             `json:"law_id"`
	EnforcementType    EnforcementType   `json:"enforcement_type"`
	ViolationDesc      string            `json:"violation_description"`
	Status             EnforcementStatus `json:"status"`
	VotingClosesAt     time.Time         `json:"voting_closes_at"`
	VotesRequired      int               `json:"votes_required"`
	SupportCount       int               `json:"support_count"`
	OpposeCount        int               `json:"oppose_count"`
	SanctionDuration   *time.Duration    `json:"sanction_duration,omitempty"`
	SeizeResourceType  *ResourceType     `json:"seize_resource_type,omitempty"`
	SeizeQuantity      *int64            `json:"seize_quantity,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// EnforcementVote is a single agent's ballot on an Enforcement. Unique on
// (enforcement_id, agent_number).
type EnforcementVote struct {
	EnforcementID int64                 `json:"enforcement_id"`
	AgentNumber   int                   `json:"agent_number"`
	Choice        EnforcementVoteChoice `json:"choice"`
	CastAt        time.Time             `json:"cast_at"`
}

// AgentMemory is the one-per-agent long-term summary.
type AgentMemory struct {
	AgentNumber          int       `json:"agent_number"`
	Summary              string    `json:"summary"`
	LastUpdatedAt        time.Time `json:"last_updated_at"`
	LastCheckpointNumber int       `json:"last_checkpoint_number"`
}

// LlmUsage is a per-call usage/cost/attribution row (spec §3/§8).
type LlmUsage struct {
	ID                int64      `json:"id"`
	Day               time.Time  `json:"day"` // UTC day bucket
	Provider          string     `json:"provider"`
	ResolvedModel     string     `json:"resolved_model"`
	PromptTokens      int        `json:"prompt_tokens"`
	CompletionTokens  int        `json:"completion_tokens"`
	TotalTokens       int        `json:"total_tokens"`
	EstimatedCostUSD  float64    `json:"estimated_cost_usd"`
	LatencyMillis     int        `json:"latency_millis"`
	Success           bool       `json:"success"`
	ErrorType         string     `json:"error_type,omitempty"`
	FallbackUsed      bool       `json:"fallback_used"`
	BYOKUsed          bool       `json:"byok_used"`
	RunID             *string    `json:"run_id,omitempty"`
	AgentNumber       *int       `json:"agent_number,omitempty"`
	CheckpointNumber  *int       `json:"checkpoint_number,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// SimulationRun is a top-level experiment run record.
type SimulationRun struct {
	RunID                string     `json:"run_id"`
	RunMode              RunMode    `json:"run_mode"`
	ProtocolVersion      string     `json:"protocol_version"`
	RunClass             RunClass   `json:"run_class"`
	SeasonID             *string    `json:"season_id,omitempty"`
	SeasonNumber         *int       `json:"season_number,omitempty"`
	TransferPolicyVersion string    `json:"transfer_policy_version"`
	CarryoverAgentCount  int        `json:"carryover_agent_count"`
	FreshAgentCount      int        `json:"fresh_agent_count"`
	ProtocolDeviation    bool       `json:"protocol_deviation"`
	MirrorControlRunID   *string    `json:"mirror_control_run_id,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
}

// SeasonSnapshot is a (run_id, snapshot_type) -> JSON payload row.
type SeasonSnapshot struct {
	RunID        string         `json:"run_id"`
	SnapshotType string         `json:"snapshot_type"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AgentLineage maps a seeded child agent to its parent (if any) within a
// season. Unique on (season_id, child_agent_number).
type AgentLineage struct {
	SeasonID         string        `json:"season_id"`
	ChildAgentNumber int           `json:"child_agent_number"`
	ParentAgentNumber *int         `json:"parent_agent_number,omitempty"`
	Origin           LineageOrigin `json:"origin"`
	CreatedAt        time.Time     `json:"created_at"`
}

// RuntimeConfigOverride is a key/value override row.
type RuntimeConfigOverride struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminConfigChange is the append-only audit trail for runtime config writes.
type AdminConfigChange struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	OldValue    *string   `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value"`
	ChangedBy   string    `json:"changed_by"`
	Environment string    `json:"environment"`
	Reason      string    `json:"reason"`
	ChangedAt   time.Time `json:"changed_at"`
}

// EmergenceMetricSnapshot is a per-simulation-day roll-up. Idempotent on
// simulation_day via a unique index.
type EmergenceMetricSnapshot struct {
	RunID               string    `json:"run_id"`
	SimulationDay       int       `json:"simulation_day"`
	Participation        float64  `json:"participation"`
	CoalitionChurn       float64  `json:"coalition_churn"`
	Gini                 float64  `json:"gini"`
	ConflictRate         float64  `json:"conflict_rate"`
	CooperationRate      float64  `json:"cooperation_rate"`
	CreatedAt            time.Time `json:"created_at"`
}

// RunReportArtifact registers a generated JSON+markdown report pair under
// output/reports/{runs,conditions,epochs}/... (spec §6).
type RunReportArtifact struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	ArtifactType string    `json:"artifact_type"`
	JSONPath     string    `json:"json_path"`
	MarkdownPath string    `json:"markdown_path"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// ConditionReplicate groups runs belonging to the same experimental
// condition (GLOSSARY: Condition/Replicate).
type ConditionReplicate struct {
	ConditionID string    `json:"condition_id"`
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
}
