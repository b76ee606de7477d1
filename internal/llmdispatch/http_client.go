package llmdispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/drmixer/emergence/internal/action"
)

// HTTPProviderClient calls a provider's HTTP completion endpoint directly.
// No first-party LLM SDK is present anywhere in the retrieval pack (the
// teacher talks to its model service over a generated gRPC stub this
// workspace cannot regenerate — see DESIGN.md), so this uses the
// standard library's net/http rather than fabricating a dependency.
type HTTPProviderClient struct {
	httpClient *http.Client
	endpoints  map[string]string // provider -> base URL
	apiKeys    map[string]string // provider -> API key, empty for BYOK calls
}

// NewHTTPProviderClient creates a client with per-provider endpoints and
// keys. Both maps are looked up by the provider label from resolve().
func NewHTTPProviderClient(endpoints, apiKeys map[string]string) *HTTPProviderClient {
	return &HTTPProviderClient{
		httpClient: &http.Client{Timeout: CallTimeout},
		endpoints:  endpoints,
		apiKeys:    apiKeys,
	}
}

type completionRequest struct {
	Model         string `json:"model"`
	SystemPrompt  string `json:"system_prompt"`
	ContextPrompt string `json:"context_prompt"`
}

type completionResponse struct {
	Action           json.RawMessage `json:"action"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
}

// Call issues one HTTP request to the resolved provider's endpoint. A
// 4xx response other than 429 (auth/quota/client error) is wrapped as
// Permanent; timeouts, network errors, 429 rate-limit responses, and 5xx
// responses are wrapped as Transient so the dispatcher retries.
func (c *HTTPProviderClient) Call(ctx context.Context, provider, resolvedModel string, req Request) (Response, error) {
	endpoint, ok := c.endpoints[provider]
	if !ok {
		return Response{}, NewPermanent(fmt.Errorf("no endpoint configured for provider %q", provider))
	}

	body, err := json.Marshal(completionRequest{
		Model:         resolvedModel,
		SystemPrompt:  req.SystemPrompt,
		ContextPrompt: req.ContextPrompt,
	})
	if err != nil {
		return Response{}, NewPermanent(fmt.Errorf("marshaling completion request: %w", err))
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, NewPermanent(fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := c.apiKeys[provider]; key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, NewTransient(fmt.Errorf("calling %s: %w", provider, err))
	}
	defer resp.Body.Close()

	latency := time.Since(started)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Response{}, NewTransient(fmt.Errorf("%s returned rate-limit status %d", provider, resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusPaymentRequired:
		return Response{}, NewPermanent(fmt.Errorf("%s returned auth/quota status %d", provider, resp.StatusCode))
	case resp.StatusCode >= 500:
		return Response{}, NewTransient(fmt.Errorf("%s returned server error status %d", provider, resp.StatusCode))
	case resp.StatusCode >= 400:
		return Response{}, NewPermanent(fmt.Errorf("%s returned client error status %d", provider, resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NewTransient(fmt.Errorf("reading response body: %w", err))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, NewPermanent(fmt.Errorf("decoding completion response: %w", err))
	}

	var act action.Action
	if err := json.Unmarshal(parsed.Action, &act); err != nil {
		return Response{}, NewPermanent(fmt.Errorf("decoding action payload: %w", err))
	}

	return Response{
		Action:           act,
		Provider:         provider,
		ResolvedModel:    resolvedModel,
		PromptTokens:     parsed.PromptTokens,
		CompletionTokens: parsed.CompletionTokens,
		LatencyMillis:    int(latency.Milliseconds()),
	}, nil
}
