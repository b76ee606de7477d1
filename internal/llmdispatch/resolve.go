package llmdispatch

import (
	"context"
	"fmt"

	"github.com/drmixer/emergence/internal/models"
	"github.com/drmixer/emergence/internal/runtimeconfig"
)

// providerTable maps a model_type to its concrete provider label. The
// resolved model name is the model_type itself — providers are
// distinguished by label only, matching how LlmUsage.provider and
// LlmUsage.resolved_model are stored separately (spec §3).
var providerTable = map[models.ModelType]string{
	models.ModelClaudeSonnet4:     "anthropic",
	models.ModelClaudeHaiku:       "anthropic",
	models.ModelGPT4oMini:         "openai",
	models.ModelLlama3_3_70B:      "meta",
	models.ModelLlama3_1_8B:       "meta",
	models.ModelGeminiFlash:       "google",
	models.ModelOpenRouterMixtral: "openrouter",
	models.ModelOpenRouterDBRX:    "openrouter",
	models.ModelGroqLlama3_70B:    "groq",
	models.ModelGroqMixtral:       "groq",
	models.ModelMistralLarge:      "mistral",
	models.ModelMistralSmall:      "mistral",
}

// resolve returns (provider, resolvedModel) for modelType, honoring a
// runtime config override keyed MODEL_PROVIDER_OVERRIDE_<model_type> (spec
// §4.3 "honors runtime overrides"). An override with an empty or unset
// value falls back to the static table.
func resolve(ctx context.Context, cfg *runtimeconfig.Service, modelType models.ModelType) (provider, resolvedModel string, err error) {
	if !models.ValidModelTypes[modelType] {
		return "", "", fmt.Errorf("unknown model_type %q", modelType)
	}

	resolvedModel = string(modelType)
	provider = providerTable[modelType]

	if cfg == nil {
		return provider, resolvedModel, nil
	}

	// Per-model overrides are not part of the fixed runtime-config
	// allowlist (that allowlist is a closed set of named operational
	// keys); GetEffectiveValue returns an "unknown key" error when no
	// override row exists, which here just means "use the static
	// table" rather than a real failure.
	overrideKey := "MODEL_PROVIDER_OVERRIDE_" + string(modelType)
	if override, err := cfg.GetEffectiveValue(ctx, overrideKey); err == nil && override != "" {
		provider = override
	}

	return provider, resolvedModel, nil
}
