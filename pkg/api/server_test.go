package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/extractor"
	"github.com/fourkites/rca-engine/pkg/hypothesis"
	"github.com/fourkites/rca-engine/pkg/investigation"
	"github.com/fourkites/rca-engine/pkg/llmclient"
	"github.com/fourkites/rca-engine/pkg/pattern"
	"github.com/fourkites/rca-engine/pkg/scheduler"
	"github.com/fourkites/rca-engine/pkg/stream"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := stream.NewBus(32, 100)
	deps := investigation.Deps{
		Extractor:         extractor.New(&llmclient.StubClient{}),
		AdapterRegistry:   adapter.NewRegistry(nil),
		SchedulerConfig:   scheduler.Config{ConcurrencyLimit: 2, TaskTimeout: time.Second},
		HypothesisConfig:  hypothesis.DefaultConfig(),
		Patterns:          pattern.NewRegistry(nil),
		LLM:               &llmclient.StubClient{},
		Bus:               bus,
		HeartbeatInterval: 20 * time.Millisecond,
	}
	sup := investigation.New(deps)
	return NewServer(sup, bus)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSubmitInvestigationStreamsToComplete(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"id":"tkt-api-1","subject":"help","body":"no identifiers in this ticket at all"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/investigations", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "needs_human")
	assert.Contains(t, rec.Body.String(), "complete")
}

func TestGetInvestigationReturnsNotFoundForUnknownID(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/investigations/does-not-exist", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelInvestigationReturnsNotFoundForUnknownID(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/investigations/does-not-exist/cancel", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHumanInputRequiresAnswer(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"answer":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/investigations/does-not-exist/human-input", body)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
