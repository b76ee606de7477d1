package llmdispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmixer/emergence/internal/models"
)

func TestResolveUsesStaticTableWithoutConfig(t *testing.T) {
	provider, resolvedModel, err := resolve(context.Background(), nil, models.ModelGPT4oMini)
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o-mini", resolvedModel)
}

func TestResolveRejectsUnknownModelType(t *testing.T) {
	_, _, err := resolve(context.Background(), nil, models.ModelType("not-a-real-model"))
	assert.Error(t, err)
}

func TestResolveCoversEveryValidModelType(t *testing.T) {
	for mt := range models.ValidModelTypes {
		provider, resolvedModel, err := resolve(context.Background(), nil, mt)
		require.NoError(t, err)
		assert.NotEmpty(t, provider, "model %s must resolve to a provider", mt)
		assert.Equal(t, string(mt), resolvedModel)
	}
}
