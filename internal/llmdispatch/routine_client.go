package llmdispatch

import (
	"context"

	"github.com/drmixer/emergence/internal/action"
)

// RoutineProviderClient is the guaranteed fallback executor: it never
// fails and always returns a deterministic idle action, used when every
// real provider attempt has exhausted its retries (spec §4.3 "deterministic
// routine action from the routine executor").
type RoutineProviderClient struct{}

// NewRoutineProviderClient constructs the fallback client.
func NewRoutineProviderClient() *RoutineProviderClient { return &RoutineProviderClient{} }

// Call always succeeds with a deterministic idle action and zero token
// usage — there is nothing to charge for a call that never reached a
// model.
func (r *RoutineProviderClient) Call(_ context.Context, provider, resolvedModel string, _ Request) (Response, error) {
	return Response{
		Action:        action.Action{Kind: action.KindIdle},
		Provider:      provider,
		ResolvedModel: resolvedModel,
	}, nil
}
