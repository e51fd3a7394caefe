package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/pattern"
)

func TestConfigAdapterConfigLooksUpByName(t *testing.T) {
	cfg := &Config{
		Adapters: map[string]adapter.Config{
			"tracking-api": {Name: "tracking-api", Enabled: true},
		},
	}

	a, ok := cfg.AdapterConfig("tracking-api")
	assert.True(t, ok)
	assert.True(t, a.Enabled)

	_, ok = cfg.AdapterConfig("does-not-exist")
	assert.False(t, ok)
}

func TestConfigStatsReflectsRegistrySizes(t *testing.T) {
	cfg := &Config{
		configDir: "/tmp/cfg",
		Adapters: map[string]adapter.Config{
			"tracking-api":         {Name: "tracking-api"},
			"network-relationship": {Name: "network-relationship"},
		},
		Patterns: pattern.NewRegistry([]pattern.Pattern{
			{ID: "load-not-found", Category: "load_not_found"},
		}),
	}

	stats := cfg.Stats()
	assert.Equal(t, 2, stats.Adapters)
	assert.Equal(t, 1, stats.Patterns)
	assert.Equal(t, "/tmp/cfg", cfg.ConfigDir())
}
