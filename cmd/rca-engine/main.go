// rca-engine runs the root-cause-analysis investigation engine: an HTTP/WS
// API in front of the in-memory investigation supervisor.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/adapter/builtin"
	"github.com/fourkites/rca-engine/pkg/adapter/mcptransport"
	"github.com/fourkites/rca-engine/pkg/api"
	"github.com/fourkites/rca-engine/pkg/config"
	"github.com/fourkites/rca-engine/pkg/decisiontree"
	"github.com/fourkites/rca-engine/pkg/eventlog"
	"github.com/fourkites/rca-engine/pkg/extractor"
	"github.com/fourkites/rca-engine/pkg/investigation"
	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	dashboardDir := flag.String("dashboard-dir",
		getEnv("DASHBOARD_DIR", ""),
		"Path to a built dashboard directory (empty disables static serving)")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	log.Printf("Starting %s", version.Full())
	log.Printf("Config Directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	log.Printf("Configuration loaded: %d adapters configured, %d patterns", stats.Adapters, stats.Patterns)

	registry := buildAdapterRegistry(cfg)
	bus := stream.NewBus(cfg.Stream.SubscriberQueueSize, cfg.Stream.BufferLimit)

	llmClient := buildLLMClient()

	deps := investigation.Deps{
		Extractor:         extractor.New(llmClient, extractor.WithConfidenceFloor(cfg.Extractor.ConfidenceFloor)),
		AdapterRegistry:   registry,
		SchedulerConfig:   cfg.Scheduler,
		HypothesisConfig:  cfg.Scoring,
		Patterns:          cfg.Patterns,
		DecisionTrees:     decisiontree.NewRegistry(nil),
		LLM:               llmClient,
		Bus:               bus,
		HeartbeatInterval: cfg.Investigation.HeartbeatInterval,
		MaxEvidence:       cfg.Investigation.MaxEvidence,
	}
	supervisor := investigation.New(deps)

	server := api.NewServer(supervisor, bus)
	defaultOpts := investigation.DefaultOptions()
	if cfg.Investigation.MaxIterations > 0 {
		defaultOpts.MaxIterations = cfg.Investigation.MaxIterations
	}
	server.SetDefaultOptions(defaultOpts)
	if *dashboardDir != "" {
		server.SetDashboardDir(*dashboardDir)
	}

	if cfg.EventLog.Enabled {
		store, err := eventlog.Open(ctx, eventlog.Config{
			Host:     cfg.EventLog.Host,
			Port:     cfg.EventLog.Port,
			User:     cfg.EventLog.User,
			Password: cfg.EventLog.Password,
			Database: cfg.EventLog.Database,
			SSLMode:  cfg.EventLog.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("Error closing event log: %v", err)
			}
		}()
		server.SetEventLog(store)
		log.Println("Event log persistence enabled")
	} else {
		log.Println("Event log persistence disabled — running in-memory only")
	}

	addr := cfg.Server.Addr
	log.Printf("HTTP server listening on %s", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatalf("HTTP server failed: %v", err)
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during graceful shutdown: %v", err)
	}
}

// buildLLMClient returns the configured classifier/reasoner. No vendor SDK
// is wired here (§1 Non-goal 2): the engine ships only the deterministic
// stub, and a real implementation is a drop-in behind llmclient.Client.
func buildLLMClient() llmclient.Client {
	return &llmclient.StubClient{}
}

// buildAdapterRegistry constructs every enabled built-in adapter. MCP-backed
// adapters (documentation-search, chat-history, ticket-system) additionally
// require an MCP server endpoint; they are skipped with a warning when none
// is configured, rather than failing startup, since §1 treats adapter
// reachability as a per-task runtime concern, not a boot-time requirement.
func buildAdapterRegistry(cfg *config.Config) *adapter.Registry {
	httpBuilders := map[string]func(adapter.Config) adapter.Adapter{
		"tracking-api":          builtin.NewTrackingAPI,
		"network-relationship":  builtin.NewNetworkRelationship,
		"historical-warehouse":  builtin.NewHistoricalWarehouse,
		"recent-logs":           builtin.NewRecentLogs,
		"historical-logs":       builtin.NewHistoricalLogs,
		"rpa-scraper":           builtin.NewRPAScraper,
		"internal-config":       builtin.NewInternalConfig,
		"callback-history":      builtin.NewCallbackHistory,
		"ocean-events":          builtin.NewOceanEvents,
	}

	var adapters []adapter.Adapter
	for name, build := range httpBuilders {
		adapterCfg, ok := cfg.AdapterConfig(name)
		if !ok || !adapterCfg.Enabled {
			continue
		}
		adapters = append(adapters, build(adapterCfg))
	}

	mcpBuilders := map[string]func(*mcptransport.Client, string) adapter.Adapter{
		"documentation-search": builtin.NewDocumentationSearch,
		"chat-history":         builtin.NewChatHistory,
		"ticket-system":        builtin.NewTicketSystem,
	}

	mcpURL := getEnv("MCP_SERVER_URL", "")
	if mcpURL == "" {
		for name := range mcpBuilders {
			if adapterCfg, ok := cfg.AdapterConfig(name); ok && adapterCfg.Enabled {
				slog.Warn("adapter enabled but MCP_SERVER_URL not set, skipping", "adapter", name)
			}
		}
		return adapter.NewRegistry(adapters)
	}

	mcpClient := mcptransport.New(
		[]mcptransport.ServerConfig{{
			ID:        "default",
			Transport: &mcpsdk.StreamableClientTransport{Endpoint: mcpURL},
		}},
		version.AppName, version.GitCommit,
	)
	for name, build := range mcpBuilders {
		adapterCfg, ok := cfg.AdapterConfig(name)
		if !ok || !adapterCfg.Enabled {
			continue
		}
		adapters = append(adapters, build(mcpClient, "default"))
	}

	return adapter.NewRegistry(adapters)
}
