package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

func buildReq(server *httptest.Server) func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error) {
	return func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	}
}

func TestExecutorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := adapter.Config{Name: "tracking-api", Enabled: true, Timeout: 2 * time.Second, Retry: adapter.RetryPolicy{MaxAttempts: 1}}
	exec := NewExecutor(cfg, nil, nil, buildReq(srv), func(resp *http.Response, body []byte) (adapter.Result, error) {
		return adapter.Result{Findings: []adapter.Finding{{Finding: "ok", Supports: true, Weight: 5, SourceConfidence: 1}}}, nil
	})

	res, err := exec.Execute(context.Background(), adapter.Context{}, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
}

func TestExecutorNotFoundClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := adapter.Config{Name: "tracking-api", Enabled: true, Timeout: 2 * time.Second, Retry: adapter.RetryPolicy{MaxAttempts: 1}}
	exec := NewExecutor(cfg, nil, nil, buildReq(srv), func(resp *http.Response, body []byte) (adapter.Result, error) {
		t.Fatal("interpret should not be called on a not-found status")
		return adapter.Result{}, nil
	})

	_, err := exec.Execute(context.Background(), adapter.Context{}, time.Now().Add(time.Second))
	require.Error(t, err)
	ae := adapter.AsAdapterError(err)
	assert.Equal(t, adapter.KindNotFound, ae.Kind)
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := adapter.Config{
		Name: "tracking-api", Enabled: true, Timeout: 2 * time.Second,
		Retry: adapter.RetryPolicy{MaxAttempts: 3, BaseMS: 1, MaxMS: 5},
	}
	exec := NewExecutor(cfg, nil, nil, buildReq(srv), func(resp *http.Response, body []byte) (adapter.Result, error) {
		return adapter.Result{}, nil
	})

	_, err := exec.Execute(context.Background(), adapter.Context{}, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestExecutorDisabledReturnsAuthError(t *testing.T) {
	cfg := adapter.Config{Name: "tracking-api", Enabled: false}
	exec := NewExecutor(cfg, nil, nil, func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error) {
		t.Fatal("buildRequest should not be called when disabled")
		return nil, nil
	}, nil)

	_, err := exec.Execute(context.Background(), adapter.Context{}, time.Now().Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, adapter.KindAuth, adapter.AsAdapterError(err).Kind)
}
