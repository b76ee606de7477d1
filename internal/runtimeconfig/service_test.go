package runtimeconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateSettingsRejectsUnknownKey(t *testing.T) {
	s := New(nil)
	err := s.UpdateSettings(context.Background(),
		[]Update{{Key: "NOT_A_REAL_KEY", Value: "x"}},
		"operator", "test", "testing the allowlist")
	assert.ErrorContains(t, err, "not in the runtime config allowlist")
}

func TestUpdateSettingsNoOpOnEmpty(t *testing.T) {
	s := New(nil)
	err := s.UpdateSettings(context.Background(), nil, "operator", "test", "")
	assert.NoError(t, err)
}

func TestStaticDefaultsCoverAllowlist(t *testing.T) {
	for key := range allowedKeys {
		_, ok := staticDefaults[key]
		assert.True(t, ok, "allowlisted key %q must have a static default", key)
	}
}
