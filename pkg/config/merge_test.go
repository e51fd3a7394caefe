package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

func TestMergeAdaptersAppliesOnlyOverlaidFields(t *testing.T) {
	builtin := map[string]adapter.Config{
		"tracking-api": {
			Name:    "tracking-api",
			Enabled: false,
			Timeout: 10 * time.Second,
			Retry:   adapter.RetryPolicy{MaxAttempts: 2, BaseMS: 200, MaxMS: 2000},
		},
	}
	user := map[string]AdapterYAMLConfig{
		"tracking-api": {
			Enabled:  boolPtr(true),
			Endpoint: "https://tracking.example.com",
			Auth:     adapter.AuthAPIKey,
		},
	}

	merged, err := mergeAdapters(builtin, user)
	require.NoError(t, err)

	a := merged["tracking-api"]
	assert.True(t, a.Enabled)
	assert.Equal(t, "https://tracking.example.com", a.Endpoint)
	assert.Equal(t, adapter.AuthAPIKey, a.Auth)
	// Untouched fields keep the built-in value.
	assert.Equal(t, 10*time.Second, a.Timeout)
	assert.Equal(t, 2, a.Retry.MaxAttempts)
}

func TestMergeAdaptersOverridesRetryFieldByField(t *testing.T) {
	builtin := map[string]adapter.Config{
		"tracking-api": {
			Name:  "tracking-api",
			Retry: adapter.RetryPolicy{MaxAttempts: 2, BaseMS: 200, MaxMS: 2000},
		},
	}
	user := map[string]AdapterYAMLConfig{
		"tracking-api": {
			Retry: &RetryYAMLConfig{MaxAttempts: 5},
		},
	}

	merged, err := mergeAdapters(builtin, user)
	require.NoError(t, err)

	a := merged["tracking-api"]
	assert.Equal(t, 5, a.Retry.MaxAttempts)
	// BaseMS/MaxMS weren't named in the overlay so the built-in values survive.
	assert.Equal(t, 200, a.Retry.BaseMS)
	assert.Equal(t, 2000, a.Retry.MaxMS)
}

func TestMergeAdaptersAddsUserOnlyAdapter(t *testing.T) {
	builtin := map[string]adapter.Config{}
	user := map[string]AdapterYAMLConfig{
		"custom-adapter": {Enabled: boolPtr(true), Endpoint: "https://custom.example.com"},
	}

	merged, err := mergeAdapters(builtin, user)
	require.NoError(t, err)

	a, ok := merged["custom-adapter"]
	require.True(t, ok)
	assert.Equal(t, "custom-adapter", a.Name)
	assert.True(t, a.Enabled)
}

func boolPtr(b bool) *bool { return &b }
