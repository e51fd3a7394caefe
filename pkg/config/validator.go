package config

import (
	"fmt"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

// Validator validates a resolved Config comprehensively, same fail-fast
// per-component idiom as the teacher's Validator.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates in dependency order: scoring → scheduler → stream →
// extractor → investigation → adapters → patterns → event log.
func (v *Validator) ValidateAll() error {
	if err := v.validateScoring(); err != nil {
		return fmt.Errorf("scoring validation failed: %w", err)
	}
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateStream(); err != nil {
		return fmt.Errorf("stream validation failed: %w", err)
	}
	if err := v.validateExtractor(); err != nil {
		return fmt.Errorf("extractor validation failed: %w", err)
	}
	if err := v.validateInvestigation(); err != nil {
		return fmt.Errorf("investigation validation failed: %w", err)
	}
	if err := v.validateAdapters(); err != nil {
		return fmt.Errorf("adapter validation failed: %w", err)
	}
	if err := v.validatePatterns(); err != nil {
		return fmt.Errorf("pattern validation failed: %w", err)
	}
	if err := v.validateEventLog(); err != nil {
		return fmt.Errorf("event log validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateScoring() error {
	s := v.cfg.Scoring
	if s.Alpha <= 0 {
		return NewValidationError("scoring", "", "alpha", fmt.Errorf("must be positive, got %v", s.Alpha))
	}
	if s.Beta <= 0 {
		return NewValidationError("scoring", "", "beta", fmt.Errorf("must be positive, got %v", s.Beta))
	}
	if s.AutoResolveThreshold <= 0 || s.AutoResolveThreshold > 1 {
		return NewValidationError("scoring", "", "auto_resolve_threshold", fmt.Errorf("must be in (0, 1], got %v", s.AutoResolveThreshold))
	}
	if s.EliminationThreshold < 0 || s.EliminationThreshold >= s.AutoResolveThreshold {
		return NewValidationError("scoring", "", "elimination_threshold", fmt.Errorf("must be non-negative and below auto_resolve_threshold, got elimination=%v auto_resolve=%v", s.EliminationThreshold, s.AutoResolveThreshold))
	}
	if s.TieBreakMargin < 0 {
		return NewValidationError("scoring", "", "tie_break_margin", fmt.Errorf("must be non-negative, got %v", s.TieBreakMargin))
	}
	if s.TieBreakWindow < 0 {
		return NewValidationError("scoring", "", "tie_break_window", fmt.Errorf("must be non-negative, got %v", s.TieBreakWindow))
	}
	return nil
}

func (v *Validator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s.ConcurrencyLimit < 1 {
		return NewValidationError("scheduler", "", "concurrency_limit", fmt.Errorf("must be at least 1, got %d", s.ConcurrencyLimit))
	}
	if s.TaskTimeout <= 0 {
		return NewValidationError("scheduler", "", "task_timeout", fmt.Errorf("must be positive, got %v", s.TaskTimeout))
	}
	return nil
}

func (v *Validator) validateStream() error {
	s := v.cfg.Stream
	if s.SubscriberQueueSize < 1 {
		return NewValidationError("stream", "", "subscriber_queue_size", fmt.Errorf("must be at least 1, got %d", s.SubscriberQueueSize))
	}
	if s.BufferLimit < 1 {
		return NewValidationError("stream", "", "buffer_limit", fmt.Errorf("must be at least 1, got %d", s.BufferLimit))
	}
	return nil
}

func (v *Validator) validateExtractor() error {
	e := v.cfg.Extractor
	if e.ConfidenceFloor < 0 || e.ConfidenceFloor > 1 {
		return NewValidationError("extractor", "", "confidence_floor", fmt.Errorf("must be in [0, 1], got %v", e.ConfidenceFloor))
	}
	return nil
}

func (v *Validator) validateInvestigation() error {
	i := v.cfg.Investigation
	if i.MaxIterations < 1 {
		return NewValidationError("investigation", "", "max_iterations", fmt.Errorf("must be at least 1, got %d", i.MaxIterations))
	}
	if i.HeartbeatInterval <= 0 {
		return NewValidationError("investigation", "", "heartbeat_interval", fmt.Errorf("must be positive, got %v", i.HeartbeatInterval))
	}
	if i.MaxEvidence < 1 {
		return NewValidationError("investigation", "", "max_evidence", fmt.Errorf("must be at least 1, got %d", i.MaxEvidence))
	}
	return nil
}

func (v *Validator) validateAdapters() error {
	for name, a := range v.cfg.Adapters {
		if !a.Enabled {
			continue
		}

		if a.Endpoint == "" {
			return NewValidationError("adapter", name, "endpoint", fmt.Errorf("endpoint required when adapter is enabled"))
		}

		switch a.Auth {
		case adapter.AuthHMACSHA1, adapter.AuthBasic, adapter.AuthAPIKey, adapter.AuthIAM:
		case "":
			return NewValidationError("adapter", name, "auth", fmt.Errorf("auth method required when adapter is enabled"))
		default:
			return NewValidationError("adapter", name, "auth", fmt.Errorf("invalid auth method: %s", a.Auth))
		}

		if a.Auth != adapter.AuthIAM && a.CredentialHandle == "" {
			return NewValidationError("adapter", name, "credential_handle", fmt.Errorf("credential_handle required for auth method %s", a.Auth))
		}

		if a.Timeout <= 0 {
			return NewValidationError("adapter", name, "timeout", fmt.Errorf("must be positive, got %v", a.Timeout))
		}
		if a.RateLimitPerSec < 0 {
			return NewValidationError("adapter", name, "rate_limit_per_sec", fmt.Errorf("must be non-negative, got %v", a.RateLimitPerSec))
		}
		if a.Retry.MaxAttempts < 1 {
			return NewValidationError("adapter", name, "retry.max_attempts", fmt.Errorf("must be at least 1, got %d", a.Retry.MaxAttempts))
		}
		if a.Retry.BaseMS < 1 {
			return NewValidationError("adapter", name, "retry.base_ms", fmt.Errorf("must be at least 1, got %d", a.Retry.BaseMS))
		}
		if a.Retry.MaxMS < a.Retry.BaseMS {
			return NewValidationError("adapter", name, "retry.max_ms", fmt.Errorf("must be at least base_ms, got max=%d base=%d", a.Retry.MaxMS, a.Retry.BaseMS))
		}
		if a.Chunking.WindowDays < 0 {
			return NewValidationError("adapter", name, "chunking.window_days", fmt.Errorf("must be non-negative, got %d", a.Chunking.WindowDays))
		}
	}
	return nil
}

func (v *Validator) validatePatterns() error {
	if v.cfg.Patterns == nil || v.cfg.Patterns.Len() == 0 {
		return fmt.Errorf("at least one pattern is required")
	}
	for _, p := range v.cfg.Patterns.All() {
		if p.Category == "" {
			return NewValidationError("pattern", p.ID, "category", fmt.Errorf("required"))
		}
		if len(p.Predicates) == 0 {
			return NewValidationError("pattern", p.ID, "predicates", fmt.Errorf("at least one predicate required"))
		}
		if len(p.RequiredEvidence) == 0 {
			return NewValidationError("pattern", p.ID, "required_evidence", fmt.Errorf("at least one required evidence source needed"))
		}
		if p.Prior < 0 || p.Prior > 1 {
			return NewValidationError("pattern", p.ID, "prior", fmt.Errorf("must be in [0, 1], got %v", p.Prior))
		}
		if p.ResolutionTemplate == "" {
			return NewValidationError("pattern", p.ID, "resolution_template", fmt.Errorf("required"))
		}
	}
	return nil
}

func (v *Validator) validateEventLog() error {
	el := v.cfg.EventLog
	if !el.Enabled {
		return nil
	}
	if el.Host == "" {
		return NewValidationError("event_log", "", "host", fmt.Errorf("required when event log is enabled"))
	}
	if el.Port < 1 || el.Port > 65535 {
		return NewValidationError("event_log", "", "port", fmt.Errorf("must be a valid port, got %d", el.Port))
	}
	if el.Database == "" {
		return NewValidationError("event_log", "", "database", fmt.Errorf("required when event log is enabled"))
	}
	if el.User == "" {
		return NewValidationError("event_log", "", "user", fmt.Errorf("required when event log is enabled"))
	}
	return nil
}
