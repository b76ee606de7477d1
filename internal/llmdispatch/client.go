// Package llmdispatch resolves an agent's model_type to a concrete
// provider, calls it under a timeout and bounded retry policy, records
// every attempt in LlmUsage, and never lets a provider failure propagate
// past dispatch — a fallback action is always returned (spec §4.3).
package llmdispatch

import (
	"context"
	"time"

	"github.com/drmixer/emergence/internal/action"
	"github.com/drmixer/emergence/internal/models"
)

// Request is the input to a single model dispatch call.
type Request struct {
	AgentNumber      int
	ModelType        models.ModelType
	SystemPrompt     string
	ContextPrompt    string
	RunID            *string
	CheckpointNumber *int
	BYOKUsed         bool
}

// Response is what a ProviderClient returns for one call attempt. It
// describes the call's own outcome; Dispatch wraps it into a models.LlmUsage
// row and either the produced action or a fallback.
type Response struct {
	Action           action.Action
	Provider         string
	ResolvedModel    string
	PromptTokens     int
	CompletionTokens int
	LatencyMillis    int
}

// ProviderClient is the model-calling abstraction. The teacher's
// equivalent (pkg/llm.Client) talks gRPC to a generated stub this
// workspace cannot regenerate; this interface plays the same role as a
// plain Go boundary so HTTPProviderClient and RoutineProviderClient can
// sit behind it interchangeably.
type ProviderClient interface {
	// Call performs one attempt. A transient error (timeout, 5xx,
	// rate-limit) should be wrapped with NewTransient so the dispatcher
	// retries; a permanent error (auth, quota) should be wrapped with
	// NewPermanent so it is not retried.
	Call(ctx context.Context, provider, resolvedModel string, req Request) (Response, error)
}

// CallTimeout bounds a single provider attempt (spec §4.3 "per-call
// timeout").
const CallTimeout = 20 * time.Second

// MaxRetries bounds the number of additional attempts after the first, on
// transient errors only.
const MaxRetries = 2

// BaseBackoff is the first retry delay; subsequent retries double it
// (exponential backoff, spec §4.3).
const BaseBackoff = 250 * time.Millisecond
