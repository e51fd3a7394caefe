package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

// AdapterYAMLConfig is one adapter's entry in adapters.yaml: every field a
// user might want to override. Fields are left zero-valued when omitted so
// mergeAdapters can tell "not set" from "set to the zero value".
type AdapterYAMLConfig struct {
	Endpoint         string              `yaml:"endpoint,omitempty"`
	Auth             adapter.AuthMethod  `yaml:"auth,omitempty"`
	CredentialHandle string              `yaml:"credential_handle,omitempty"`
	TimeoutSeconds   int                 `yaml:"timeout_seconds,omitempty"`
	RateLimitPerSec  float64             `yaml:"rate_limit_per_sec,omitempty"`
	Retry            *RetryYAMLConfig    `yaml:"retry,omitempty"`
	Chunking         *ChunkingYAMLConfig `yaml:"chunking,omitempty"`
	Enabled          *bool               `yaml:"enabled,omitempty"`
}

type RetryYAMLConfig struct {
	MaxAttempts int `yaml:"max_attempts,omitempty"`
	BaseMS      int `yaml:"base_ms,omitempty"`
	MaxMS       int `yaml:"max_ms,omitempty"`
}

type ChunkingYAMLConfig struct {
	WindowDays int `yaml:"window_days,omitempty"`
}

// mergeAdapters merges built-in adapter defaults with user overrides (same
// shape as the teacher's mergeAgents/mergeChains: user entries override
// built-in entries of the same name field-by-field, via mergo, matching
// pattern.Merge's idiom) and resolves both into adapter.Config.
func mergeAdapters(builtin map[string]adapter.Config, user map[string]AdapterYAMLConfig) (map[string]adapter.Config, error) {
	result := make(map[string]adapter.Config, len(builtin))
	for name, cfg := range builtin {
		result[name] = cfg
	}

	for name, overlay := range user {
		base, ok := result[name]
		if !ok {
			base = adapter.Config{Name: name, Timeout: 10 * time.Second}
		}
		resolved, err := applyAdapterOverlay(base, overlay)
		if err != nil {
			return nil, fmt.Errorf("config: merge adapter %q: %w", name, err)
		}
		resolved.Name = name
		result[name] = resolved
	}

	return result, nil
}

func applyAdapterOverlay(base adapter.Config, overlay AdapterYAMLConfig) (adapter.Config, error) {
	if overlay.Endpoint != "" {
		base.Endpoint = overlay.Endpoint
	}
	if overlay.Auth != "" {
		base.Auth = overlay.Auth
	}
	if overlay.CredentialHandle != "" {
		base.CredentialHandle = overlay.CredentialHandle
	}
	if overlay.TimeoutSeconds > 0 {
		base.Timeout = time.Duration(overlay.TimeoutSeconds) * time.Second
	}
	if overlay.RateLimitPerSec > 0 {
		base.RateLimitPerSec = overlay.RateLimitPerSec
	}
	if overlay.Retry != nil {
		if err := mergo.Merge(&base.Retry, adapter.RetryPolicy{
			MaxAttempts: overlay.Retry.MaxAttempts,
			BaseMS:      overlay.Retry.BaseMS,
			MaxMS:       overlay.Retry.MaxMS,
		}, mergo.WithOverride); err != nil {
			return base, err
		}
	}
	if overlay.Chunking != nil {
		base.Chunking = adapter.ChunkingPolicy{WindowDays: overlay.Chunking.WindowDays}
	}
	if overlay.Enabled != nil {
		base.Enabled = *overlay.Enabled
	}
	return base, nil
}
