// Package builtin instantiates the closed set of 12 named data-source
// adapters described in §4.4: tracking-api, network-relationship,
// historical-warehouse, recent-logs, historical-logs, rpa-scraper,
// internal-config, callback-history, ocean-events, documentation-search,
// chat-history, ticket-system.
//
// Each adapter wraps a generic executor (httptransport or mcptransport);
// the concrete wire format of each underlying system is explicitly out of
// scope (§1) so interpretation is intentionally generic: a 200 response
// becomes a single neutral finding carrying the raw body for audit, a 404
// becomes positive evidence of absence, anything else is classified by the
// shared error taxonomy. Adapters that need a sharper verdict (e.g.
// tracking-api's not-found case) override the default interpretation.
package builtin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/adapter/httptransport"
	"github.com/fourkites/rca-engine/pkg/adapter/mcptransport"
)

// Names are the 12 built-in adapter identifiers, in the order listed in
// §4.4.
var Names = []string{
	"tracking-api",
	"network-relationship",
	"historical-warehouse",
	"recent-logs",
	"historical-logs",
	"rpa-scraper",
	"internal-config",
	"callback-history",
	"ocean-events",
	"documentation-search",
	"chat-history",
	"ticket-system",
}

func defaultInterpret(name string) func(resp *http.Response, body []byte) (adapter.Result, error) {
	return func(resp *http.Response, body []byte) (adapter.Result, error) {
		return adapter.Result{
			Findings: []adapter.Finding{{
				Finding:          fmt.Sprintf("%s responded", name),
				Supports:         false,
				Weight:           3,
				SourceConfidence: 0.5,
				Raw:              body,
			}},
			Raw: body,
		}, nil
	}
}

func getRequest(path string) func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error) {
	return func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error) {
		url := cfg.Endpoint
		if path != "" {
			url += path
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

// NewTrackingAPI builds the tracking-api adapter: the primary lookup by
// tracking_id/load_number. A not-found result is strong positive evidence
// for the load_not_found hypothesis (§8 scenario 2); a scheduler-level
// KindNotFound classification is translated into that finding here since
// the generic executor only emits the taxonomy error for not-found.
func NewTrackingAPI(cfg adapter.Config) adapter.Adapter {
	return notFoundAsEvidence(httptransport.NewExecutor(cfg,
		[]string{"tracking_id", "load_number"}, nil,
		getRequest("/shipments/lookup"),
		func(resp *http.Response, body []byte) (adapter.Result, error) {
			return adapter.Result{Findings: []adapter.Finding{{
				Finding: "shipment record found", Supports: false, Weight: 2, SourceConfidence: 0.6, Raw: body,
			}}}, nil
		},
	), "load_not_found")
}

// NewNetworkRelationship builds the network-relationship adapter: checks
// whether a shipper/carrier relationship exists in the network. A
// not-found here is strong evidence for network_relationship_missing (§8
// scenario 1).
func NewNetworkRelationship(cfg adapter.Config) adapter.Adapter {
	return notFoundAsEvidence(httptransport.NewExecutor(cfg,
		[]string{"shipper_id", "carrier_id"}, nil,
		getRequest("/relationships"),
		func(resp *http.Response, body []byte) (adapter.Result, error) {
			return adapter.Result{Findings: []adapter.Finding{{
				Finding: "active network relationship", Supports: false, Weight: 2, SourceConfidence: 0.6, Raw: body,
			}}}, nil
		},
	), "network_relationship_missing")
}

// NewHistoricalWarehouse builds the historical-warehouse adapter (chunked
// date-range queries over warehouse events).
func NewHistoricalWarehouse(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"tracking_id"}, nil,
		getRequest("/warehouse/history"), defaultInterpret("historical-warehouse"))
}

// NewRecentLogs builds the recent-logs adapter (low-latency recent
// telemetry window).
func NewRecentLogs(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"tracking_id"}, nil,
		getRequest("/logs/recent"), defaultInterpret("recent-logs"))
}

// NewHistoricalLogs builds the historical-logs adapter (chunked date-range
// queries over long-tail log storage).
func NewHistoricalLogs(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"tracking_id"}, nil,
		getRequest("/logs/historical"), defaultInterpret("historical-logs"))
}

// NewRPAScraper builds the rpa-scraper adapter, which queries a carrier
// portal via a browser-automation layer outside this engine's scope.
func NewRPAScraper(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"carrier_id", "tracking_id"}, nil,
		getRequest("/scrape/carrier-portal"), defaultInterpret("rpa-scraper"))
}

// NewInternalConfig builds the internal-config adapter: surfaces
// configuration-level findings (e.g. feature flags, integration toggles).
func NewInternalConfig(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, nil, nil,
		getRequest("/config"), defaultInterpret("internal-config"))
}

// NewCallbackHistory builds the callback-history adapter: checks whether
// carrier webhook callbacks are being delivered, depending on
// network-relationship having run first so a relationship id is available.
func NewCallbackHistory(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"carrier_id"}, []string{"network-relationship"},
		getRequest("/callbacks/history"), defaultInterpret("callback-history"))
}

// NewOceanEvents builds the ocean-events adapter: vessel/port milestone
// events for ocean mode.
func NewOceanEvents(cfg adapter.Config) adapter.Adapter {
	return httptransport.NewExecutor(cfg, []string{"container_number", "booking_number"}, nil,
		getRequest("/ocean/events"), defaultInterpret("ocean-events"))
}

// NewDocumentationSearch builds the documentation-search adapter over an
// MCP-exposed documentation tool.
func NewDocumentationSearch(client *mcptransport.Client, serverID string) adapter.Adapter {
	return mcptransport.NewExecutor(client, "documentation-search", serverID, "search_docs",
		nil, nil,
		func(execCtx adapter.Context) map[string]any {
			return map[string]any{"mode": execCtx.Mode}
		},
		interpretToolResult("documentation-search"),
	)
}

// NewChatHistory builds the chat-history adapter over an MCP-exposed
// support-chat search tool.
func NewChatHistory(client *mcptransport.Client, serverID string) adapter.Adapter {
	return mcptransport.NewExecutor(client, "chat-history", serverID, "search_chat_history",
		nil, nil,
		func(execCtx adapter.Context) map[string]any {
			return map[string]any{"identifiers": execCtx.Identifiers}
		},
		interpretToolResult("chat-history"),
	)
}

// NewTicketSystem builds the ticket-system adapter over an MCP-exposed
// ticket-search tool — related or duplicate tickets for the same shipment.
func NewTicketSystem(client *mcptransport.Client, serverID string) adapter.Adapter {
	return mcptransport.NewExecutor(client, "ticket-system", serverID, "search_tickets",
		nil, nil,
		func(execCtx adapter.Context) map[string]any {
			return map[string]any{"identifiers": execCtx.Identifiers}
		},
		interpretToolResult("ticket-system"),
	)
}

func interpretToolResult(name string) func(result *mcpsdk.CallToolResult) (adapter.Result, error) {
	return func(result *mcpsdk.CallToolResult) (adapter.Result, error) {
		if result.IsError {
			return adapter.Result{}, adapter.NewError(adapter.KindMalformed, name+" tool call returned an error result", nil)
		}
		return adapter.Result{Findings: []adapter.Finding{{
			Finding:          fmt.Sprintf("%s returned %d content items", name, len(result.Content)),
			Supports:         false,
			Weight:           3,
			SourceConfidence: 0.5,
		}}}, nil
	}
}

// notFoundAsEvidence wraps an adapter so that a KindNotFound taxonomy error
// from the inner executor is converted into a single, strong piece of
// positive evidence for the given hypothesis category instead of
// propagating as an error — the concrete shape the "not-found is a normal
// outcome" rule (§4.4) takes for these two lookup-style adapters.
func notFoundAsEvidence(inner adapter.Adapter, hypothesisCategory string) adapter.Adapter {
	return &notFoundWrapper{inner: inner, category: hypothesisCategory}
}

type notFoundWrapper struct {
	inner    adapter.Adapter
	category string
}

func (w *notFoundWrapper) Name() string                  { return w.inner.Name() }
func (w *notFoundWrapper) RequiredIdentifiers() []string { return w.inner.RequiredIdentifiers() }
func (w *notFoundWrapper) Dependencies() []string        { return w.inner.Dependencies() }

func (w *notFoundWrapper) Execute(ctx context.Context, execCtx adapter.Context, deadline time.Time) (adapter.Result, error) {
	res, err := w.inner.Execute(ctx, execCtx, deadline)
	if err == nil {
		return res, nil
	}
	ae := adapter.AsAdapterError(err)
	if ae.Kind != adapter.KindNotFound {
		return adapter.Result{}, err
	}
	return adapter.Result{Findings: []adapter.Finding{{
		Finding:          fmt.Sprintf("%s: resource not found", w.inner.Name()),
		Supports:         true,
		Weight:           10,
		SourceConfidence: 1.0,
		HypothesisID:     w.category,
	}}}, nil
}
