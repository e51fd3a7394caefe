// Package httptransport implements a generic single-endpoint HTTP executor
// for adapters with a narrower shape than an MCP tool call — every built-in
// adapter that is not an MCP tool call, e.g. tracking-api,
// network-relationship, callback-history, internal-config. Authentication,
// rate limiting and retry follow the adapter.Config contract (§4.4).
package httptransport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is a named auth method in §4.4, not a hashing choice made here
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

// Executor performs one HTTP request/response cycle per Execute call,
// applying the configured auth method, rate limit and retry budget.
type Executor struct {
	name      string
	cfg       adapter.Config
	required  []string
	deps      []string
	client    *http.Client
	limiter   *rate.Limiter

	buildRequest func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error)
	interpret    func(resp *http.Response, body []byte) (adapter.Result, error)
}

// NewExecutor builds an Executor. buildRequest constructs the outbound
// request from adapter context; interpret converts the HTTP response into
// findings (or a taxonomy error, e.g. for a 404 → KindNotFound).
func NewExecutor(
	cfg adapter.Config,
	required, deps []string,
	buildRequest func(ctx context.Context, execCtx adapter.Context, cfg adapter.Config) (*http.Request, error),
	interpret func(resp *http.Response, body []byte) (adapter.Result, error),
) *Executor {
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), int(math.Max(1, cfg.RateLimitPerSec)))
	}
	return &Executor{
		name:         cfg.Name,
		cfg:          cfg,
		required:     required,
		deps:         deps,
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      limiter,
		buildRequest: buildRequest,
		interpret:    interpret,
	}
}

func (e *Executor) Name() string                  { return e.name }
func (e *Executor) RequiredIdentifiers() []string { return e.required }
func (e *Executor) Dependencies() []string        { return e.deps }

func (e *Executor) Execute(ctx context.Context, execCtx adapter.Context, deadline time.Time) (adapter.Result, error) {
	if !e.cfg.Enabled {
		return adapter.Result{}, adapter.NewError(adapter.KindAuth, "adapter disabled by configuration", nil)
	}

	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	attempts := e.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(callCtx); err != nil {
				return adapter.Result{}, adapter.NewError(adapter.KindDeadline, "rate limiter wait", err)
			}
		}

		res, err := e.attempt(callCtx, execCtx)
		if err == nil {
			return res, nil
		}

		ae := adapter.AsAdapterError(err)
		lastErr = ae
		if ae.Kind != adapter.KindTransient {
			return adapter.Result{}, ae
		}

		if attempt == attempts-1 {
			break
		}
		backoff := exponentialBackoff(e.cfg.Retry.BaseMS, e.cfg.Retry.MaxMS, attempt)
		select {
		case <-time.After(backoff):
		case <-callCtx.Done():
			return adapter.Result{}, adapter.NewError(adapter.KindDeadline, "deadline during retry backoff", callCtx.Err())
		}
	}
	return adapter.Result{}, lastErr
}

// exponentialBackoff implements §4.4's `exponential(base_ms, max_ms)` curve.
func exponentialBackoff(baseMS, maxMS, attempt int) time.Duration {
	if baseMS <= 0 {
		baseMS = 100
	}
	if maxMS <= 0 {
		maxMS = 5000
	}
	ms := float64(baseMS) * math.Pow(2, float64(attempt))
	if ms > float64(maxMS) {
		ms = float64(maxMS)
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Executor) attempt(ctx context.Context, execCtx adapter.Context) (adapter.Result, error) {
	req, err := e.buildRequest(ctx, execCtx, e.cfg)
	if err != nil {
		return adapter.Result{}, adapter.NewError(adapter.KindMalformed, "build request", err)
	}
	if err := applyAuth(req, e.cfg); err != nil {
		return adapter.Result{}, adapter.NewError(adapter.KindAuth, "apply auth", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return adapter.Result{}, adapter.NewError(adapter.KindDeadline, "request deadline exceeded", err)
		}
		return adapter.Result{}, adapter.NewError(adapter.KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.Result{}, adapter.NewError(adapter.KindMalformed, "read response body", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return adapter.Result{}, adapter.NewError(adapter.KindNotFound, "resource not found", nil)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return adapter.Result{}, adapter.NewError(adapter.KindAuth, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 500 {
		return adapter.Result{}, adapter.NewError(adapter.KindTransient, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return adapter.Result{}, adapter.NewError(adapter.KindMalformed, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	return e.interpret(resp, body)
}

// applyAuth mutates req in place according to the configured auth method.
func applyAuth(req *http.Request, cfg adapter.Config) error {
	switch cfg.Auth {
	case adapter.AuthBasic:
		user, pass, err := splitCredential(cfg.CredentialHandle)
		if err != nil {
			return err
		}
		req.SetBasicAuth(user, pass)
	case adapter.AuthAPIKey:
		req.Header.Set("X-Api-Key", cfg.CredentialHandle)
	case adapter.AuthHMACSHA1:
		sig := signHMACSHA1(cfg.CredentialHandle, req)
		req.Header.Set("Authorization", "HMAC-SHA1 "+sig)
	case adapter.AuthIAM:
		req.Header.Set("Authorization", "IAM "+cfg.CredentialHandle)
	}
	return nil
}

func splitCredential(handle string) (user, pass string, err error) {
	for i := 0; i < len(handle); i++ {
		if handle[i] == ':' {
			return handle[:i], handle[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("httptransport: credential handle missing ':' separator")
}

func signHMACSHA1(secret string, req *http.Request) string {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(req.Method))
	mac.Write(body)
	mac.Write([]byte(strconv.FormatInt(time.Now().Unix(), 10)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DecodeJSON is a small helper for interpret functions that expect a JSON
// body.
func DecodeJSON(body []byte, v any) error {
	return json.Unmarshal(body, v)
}
