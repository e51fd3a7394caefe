package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/pattern"
	"github.com/fourkites/rca-engine/pkg/scheduler"
)

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load engine.yaml, adapters.yaml, patterns.yaml from configDir (all optional)
//  2. Expand environment variables
//  3. Merge built-in + user-defined adapters and patterns
//  4. Resolve engine.yaml onto the built-in defaults
//  5. Build registries
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized successfully",
		"adapters", stats.Adapters,
		"patterns", stats.Patterns)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	engineYAML, err := loader.loadEngineYAML()
	if err != nil {
		return nil, NewLoadError("engine.yaml", err)
	}

	adaptersYAML, err := loader.loadAdaptersYAML()
	if err != nil {
		return nil, NewLoadError("adapters.yaml", err)
	}

	userPatterns, err := loader.loadPatternsYAML()
	if err != nil {
		return nil, NewLoadError("patterns.yaml", err)
	}

	adapters, err := mergeAdapters(GetBuiltinAdapters(), adaptersYAML)
	if err != nil {
		return nil, err
	}

	patterns, err := pattern.Merge(GetBuiltinPatterns(), userPatterns)
	if err != nil {
		return nil, fmt.Errorf("config: merge patterns: %w", err)
	}
	patternRegistry := pattern.NewRegistry(patterns)

	resolved := resolveEngineYAML(engineYAML)

	scoring, err := resolveScoring(resolved.Scoring)
	if err != nil {
		return nil, err
	}
	sched, err := resolveScheduler(resolved.Scheduler)
	if err != nil {
		return nil, err
	}
	investigation, err := resolveInvestigation(resolved.Investigation)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir: configDir,

		Scoring:   scoring,
		Scheduler: sched,
		Stream: StreamConfig{
			SubscriberQueueSize: resolved.Stream.SubscriberQueueSize,
			BufferLimit:         resolved.Stream.BufferLimit,
		},
		Extractor:     ExtractorConfig{ConfidenceFloor: resolved.Extractor.ConfidenceFloor},
		Server:        ServerConfig{Addr: resolved.Server.Addr},
		Investigation: investigation,
		EventLog:      resolveEventLog(resolved.EventLog),

		Adapters: adapters,
		Patterns: patternRegistry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadEngineYAML() (EngineYAMLConfig, error) {
	var cfg EngineYAMLConfig
	if err := l.loadYAML("engine.yaml", &cfg); err != nil {
		return EngineYAMLConfig{}, err
	}
	return cfg, nil
}

func (l *configLoader) loadAdaptersYAML() (map[string]AdapterYAMLConfig, error) {
	var doc struct {
		Adapters map[string]AdapterYAMLConfig `yaml:"adapters"`
	}
	doc.Adapters = make(map[string]AdapterYAMLConfig)
	if err := l.loadYAML("adapters.yaml", &doc); err != nil {
		return nil, err
	}
	return doc.Adapters, nil
}

func (l *configLoader) loadPatternsYAML() ([]pattern.Pattern, error) {
	path := filepath.Join(l.configDir, "patterns.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	data = ExpandEnv(data)
	patterns, err := pattern.LoadYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return patterns, nil
}

// resolveEngineYAML layers a user-supplied engine.yaml over the built-in
// defaults: every section the user omitted is filled from DefaultEngineYAML,
// every section the user specified is kept as given (not merged
// field-by-field — engine.yaml sections are small enough that "specify the
// whole section" is the simpler contract, unlike the per-adapter overlay).
func resolveEngineYAML(user EngineYAMLConfig) EngineYAMLConfig {
	def := DefaultEngineYAML()
	if user.Scoring == nil {
		user.Scoring = def.Scoring
	}
	if user.Scheduler == nil {
		user.Scheduler = def.Scheduler
	}
	if user.Stream == nil {
		user.Stream = def.Stream
	}
	if user.Extractor == nil {
		user.Extractor = def.Extractor
	}
	if user.Server == nil {
		user.Server = def.Server
	}
	if user.Investigation == nil {
		user.Investigation = def.Investigation
	}
	if user.EventLog == nil {
		user.EventLog = def.EventLog
	}
	return user
}

func resolveScoring(s *ScoringYAMLConfig) (hypothesis.Config, error) {
	return hypothesis.Config{
		Alpha:                s.Alpha,
		Beta:                 s.Beta,
		AutoResolveThreshold: s.AutoResolveThreshold,
		EliminationThreshold: s.EliminationThreshold,
		TieBreakMargin:       s.TieBreakMargin,
		TieBreakWindow:       s.TieBreakWindow,
	}, nil
}

func resolveScheduler(s *SchedulerYAMLConfig) (scheduler.Config, error) {
	d, err := time.ParseDuration(s.TaskTimeout)
	if err != nil {
		return scheduler.Config{}, NewValidationError("scheduler", "", "task_timeout", err)
	}
	return scheduler.Config{ConcurrencyLimit: s.ConcurrencyLimit, TaskTimeout: d}, nil
}

func resolveInvestigation(i *InvestigationYAMLConfig) (InvestigationConfig, error) {
	d, err := time.ParseDuration(i.HeartbeatInterval)
	if err != nil {
		return InvestigationConfig{}, NewValidationError("investigation", "", "heartbeat_interval", err)
	}
	return InvestigationConfig{MaxIterations: i.MaxIterations, HeartbeatInterval: d, MaxEvidence: i.MaxEvidence}, nil
}

func resolveEventLog(e *EventLogYAMLConfig) EventLogConfig {
	return EventLogConfig{
		Enabled:  e.Enabled,
		Host:     e.Host,
		Port:     e.Port,
		User:     e.User,
		Password: e.Password,
		Database: e.Database,
		SSLMode:  e.SSLMode,
	}
}
