package config

import (
	"time"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/pattern"
	"github.com/fourkites/rca-engine/pkg/scheduler"
)

// StreamConfig holds the resolved per-investigation event bus sizing.
type StreamConfig struct {
	SubscriberQueueSize int
	BufferLimit         int
}

// ExtractorConfig holds the resolved identifier-extraction knobs.
type ExtractorConfig struct {
	ConfidenceFloor float64
}

// ServerConfig holds the resolved HTTP/WS listener address.
type ServerConfig struct {
	Addr string
}

// InvestigationConfig holds the resolved investigation-loop knobs (§4.1,
// §6 "max_iterations").
type InvestigationConfig struct {
	MaxIterations     int
	HeartbeatInterval time.Duration
	// MaxEvidence caps how many distinct evidence items one investigation
	// may accumulate (§5 resource caps); additional items are dropped with
	// evidence.Store.Dropped incremented rather than failing the run.
	MaxEvidence int
}

// EventLogConfig holds the resolved optional-persistence connection
// parameters. Enabled is false unless engine.yaml's event_log.enabled is
// explicitly set — the investigation engine runs entirely in-memory by
// default.
type EventLogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Config is the umbrella object returned by Initialize: every registry and
// resolved setting the engine needs to run one investigation end to end.
type Config struct {
	configDir string

	Scoring       hypothesis.Config
	Scheduler     scheduler.Config
	Stream        StreamConfig
	Extractor     ExtractorConfig
	Server        ServerConfig
	Investigation InvestigationConfig
	EventLog      EventLogConfig

	Adapters map[string]adapter.Config
	Patterns *pattern.Registry
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	Adapters int
	Patterns int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{Adapters: len(c.Adapters), Patterns: c.Patterns.Len()}
}

// AdapterConfig retrieves one adapter's resolved configuration by name.
func (c *Config) AdapterConfig(name string) (adapter.Config, bool) {
	a, ok := c.Adapters[name]
	return a, ok
}
