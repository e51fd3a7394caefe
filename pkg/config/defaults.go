package config

import (
	"time"

	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/scheduler"
)

// EngineYAMLConfig is the shape of engine.yaml: everything that isn't an
// adapter or pattern definition — scoring thresholds, scheduler limits, the
// stream/extractor/server/investigation knobs, and the optional event log.
// Every field is a pointer or zero-valued so a user file only needs to name
// what it wants to override; Initialize fills the rest from DefaultEngineYAML.
type EngineYAMLConfig struct {
	Scoring       *ScoringYAMLConfig       `yaml:"scoring,omitempty"`
	Scheduler     *SchedulerYAMLConfig     `yaml:"scheduler,omitempty"`
	Stream        *StreamYAMLConfig        `yaml:"stream,omitempty"`
	Extractor     *ExtractorYAMLConfig     `yaml:"extractor,omitempty"`
	Server        *ServerYAMLConfig        `yaml:"server,omitempty"`
	Investigation *InvestigationYAMLConfig `yaml:"investigation,omitempty"`
	EventLog      *EventLogYAMLConfig      `yaml:"event_log,omitempty"`
}

type ScoringYAMLConfig struct {
	Alpha                float64 `yaml:"alpha,omitempty"`
	Beta                 float64 `yaml:"beta,omitempty"`
	AutoResolveThreshold float64 `yaml:"auto_resolve_threshold,omitempty"`
	EliminationThreshold float64 `yaml:"elimination_threshold,omitempty"`
	TieBreakMargin       float64 `yaml:"tie_break_margin,omitempty"`
	TieBreakWindow       float64 `yaml:"tie_break_window,omitempty"`
}

type SchedulerYAMLConfig struct {
	ConcurrencyLimit int    `yaml:"concurrency_limit,omitempty"`
	TaskTimeout      string `yaml:"task_timeout,omitempty"`
}

type StreamYAMLConfig struct {
	SubscriberQueueSize int `yaml:"subscriber_queue_size,omitempty"`
	BufferLimit         int `yaml:"buffer_limit,omitempty"`
}

type ExtractorYAMLConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor,omitempty"`
}

type ServerYAMLConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

type InvestigationYAMLConfig struct {
	MaxIterations     int    `yaml:"max_iterations,omitempty"`
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`
	MaxEvidence       int    `yaml:"max_evidence,omitempty"`
}

type EventLogYAMLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// DefaultEngineYAML returns the built-in engine defaults (§6's documented
// defaults: scoring α=0.15/β=1.2/auto-resolve 0.80/eliminate 0.10, 8
// concurrent tasks, 15s task timeout).
func DefaultEngineYAML() EngineYAMLConfig {
	hc := hypothesis.DefaultConfig()
	sc := scheduler.DefaultConfig()
	return EngineYAMLConfig{
		Scoring: &ScoringYAMLConfig{
			Alpha:                hc.Alpha,
			Beta:                 hc.Beta,
			AutoResolveThreshold: hc.AutoResolveThreshold,
			EliminationThreshold: hc.EliminationThreshold,
			TieBreakMargin:       hc.TieBreakMargin,
			TieBreakWindow:       hc.TieBreakWindow,
		},
		Scheduler: &SchedulerYAMLConfig{
			ConcurrencyLimit: sc.ConcurrencyLimit,
			TaskTimeout:      sc.TaskTimeout.String(),
		},
		Stream: &StreamYAMLConfig{
			SubscriberQueueSize: 64,
			BufferLimit:         500,
		},
		Extractor: &ExtractorYAMLConfig{ConfidenceFloor: 0.6},
		Server:    &ServerYAMLConfig{Addr: ":8080"},
		Investigation: &InvestigationYAMLConfig{
			MaxIterations:     5,
			HeartbeatInterval: (1 * time.Second).String(),
			MaxEvidence:       10000,
		},
		EventLog: &EventLogYAMLConfig{Enabled: false, SSLMode: "disable"},
	}
}
