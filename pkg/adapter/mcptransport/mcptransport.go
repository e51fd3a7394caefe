// Package mcptransport implements the MCP-backed executor used by adapters
// whose data source is best modeled as "call a named tool on a registered
// MCP server" — documentation-search, ticket-system, chat-history.
//
// Adapted from the teacher's pkg/mcp client: per-server session cache,
// per-server mutex to serialize (re)initialization and prevent a thundering
// herd, and a classify-then-retry-once recovery path on tool-call failure.
package mcptransport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fourkites/rca-engine/pkg/adapter"
)

const (
	initTimeout    = 10 * time.Second
	operationTimeout = 15 * time.Second
	reinitTimeout  = 10 * time.Second
	retryBackoffMin = 100 * time.Millisecond
	retryBackoffMax = 500 * time.Millisecond
)

// RetryAction is the classification of a tool-call failure.
type RetryAction int

const (
	NoRetry RetryAction = iota
	Retry
	RetryNewSession
)

// ClassifyError maps a tool-call error to a retry action. Context
// cancellation/deadline errors are never retried (the caller is already
// giving up); everything else gets one retry on a fresh session, since
// transport-level errors are not told apart here.
func ClassifyError(err error) RetryAction {
	if err == nil {
		return NoRetry
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return NoRetry
	}
	// Without a way to introspect transport-level errors from the SDK
	// here, default to the safer recovery path: recreate the session.
	return RetryNewSession
}

// ServerConfig names one MCP server endpoint to connect to.
type ServerConfig struct {
	ID        string
	Transport mcpsdk.Transport
}

// Client manages MCP sessions for multiple servers. One Client is built at
// startup and shared by every investigation in the process.
type Client struct {
	servers map[string]ServerConfig

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
	clients  map[string]*mcpsdk.Client
	failed   map[string]string

	toolCacheMu sync.RWMutex
	toolCache   map[string][]*mcpsdk.Tool

	reinitMu sync.Map // serverID -> *sync.Mutex

	appName, appVersion string
}

// New builds a Client around the given server configs.
func New(servers []ServerConfig, appName, appVersion string) *Client {
	byID := make(map[string]ServerConfig, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}
	return &Client{
		servers:    byID,
		sessions:   make(map[string]*mcpsdk.ClientSession),
		clients:    make(map[string]*mcpsdk.Client),
		failed:     make(map[string]string),
		toolCache:  make(map[string][]*mcpsdk.Tool),
		appName:    appName,
		appVersion: appVersion,
	}
}

// Initialize connects to every named server, recording per-server failures
// rather than aborting (partial initialization is acceptable per-session).
func (c *Client) Initialize(ctx context.Context, serverIDs []string) {
	for _, id := range serverIDs {
		if err := c.InitializeServer(ctx, id); err != nil {
			c.mu.Lock()
			c.failed[id] = err.Error()
			c.mu.Unlock()
		}
	}
}

// InitializeServer connects to a single server, serialized per-server to
// avoid concurrent (re)initialization of the same session.
func (c *Client) InitializeServer(ctx context.Context, serverID string) error {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return c.initializeServerLocked(ctx, serverID)
}

func (c *Client) initializeServerLocked(ctx context.Context, serverID string) error {
	c.mu.RLock()
	if _, ok := c.sessions[serverID]; ok {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	cfg, ok := c.servers[serverID]
	if !ok {
		return fmt.Errorf("mcptransport: server %q not configured", serverID)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: c.appName, Version: c.appVersion}, nil)
	session, err := client.Connect(initCtx, cfg.Transport, nil)
	if err != nil {
		return fmt.Errorf("mcptransport: connect %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.clients[serverID] = client
	delete(c.failed, serverID)
	c.mu.Unlock()
	return nil
}

// ListTools returns the server's tools, cache-first.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	c.toolCacheMu.RLock()
	if cached, ok := c.toolCache[serverID]; ok {
		c.toolCacheMu.RUnlock()
		return cached, nil
	}
	c.toolCacheMu.RUnlock()

	c.mu.RLock()
	session, ok := c.sessions[serverID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcptransport: no session for %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: list tools from %q: %w", serverID, err)
	}
	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}

	c.toolCacheMu.Lock()
	c.toolCache[serverID] = tools
	c.toolCacheMu.Unlock()
	return tools, nil
}

// CallTool executes a tool call, retrying once (optionally against a fresh
// session) on a classified-retryable failure.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{Name: toolName, Arguments: args}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}

	backoff := retryBackoffMin + time.Duration(rand.Int64N(int64(retryBackoffMax-retryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		if rerr := c.recreateSession(ctx, serverID); rerr != nil {
			return nil, fmt.Errorf("mcptransport: session recreation failed for %q: %w", serverID, rerr)
		}
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: retry failed for %q.%s: %w", serverID, toolName, err)
	}
	return result, nil
}

func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	c.mu.RLock()
	session, ok := c.sessions[serverID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcptransport: no session for %q", serverID)
	}
	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	return session.CallTool(opCtx, params)
}

func (c *Client) recreateSession(ctx context.Context, serverID string) error {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	c.mu.Lock()
	if session, ok := c.sessions[serverID]; ok {
		_ = session.Close()
		delete(c.sessions, serverID)
		delete(c.clients, serverID)
	}
	c.mu.Unlock()

	c.toolCacheMu.Lock()
	delete(c.toolCache, serverID)
	c.toolCacheMu.Unlock()

	reinitCtx, cancel := context.WithTimeout(ctx, reinitTimeout)
	defer cancel()
	return c.initializeServerLocked(reinitCtx, serverID)
}

// Close shuts down every session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcptransport: close %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	c.clients = make(map[string]*mcpsdk.Client)
	c.failed = make(map[string]string)

	c.toolCacheMu.Lock()
	c.toolCache = make(map[string][]*mcpsdk.Tool)
	c.toolCacheMu.Unlock()
	return firstErr
}

// HasSession reports whether a server currently has an active session.
func (c *Client) HasSession(serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[serverID]
	return ok
}

// FailedServers returns a copy of the per-server initialization failures.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}

// Executor adapts one MCP tool call into the adapter.Adapter contract.
type Executor struct {
	client     *Client
	name       string
	serverID   string
	toolName   string
	required   []string
	deps       []string
	argsFn     func(execCtx adapter.Context) map[string]any
	interpret  func(result *mcpsdk.CallToolResult) (adapter.Result, error)
}

// NewExecutor builds an Executor. argsFn maps adapter context to MCP tool
// arguments; interpret maps a tool result to findings.
func NewExecutor(client *Client, name, serverID, toolName string, required, deps []string,
	argsFn func(execCtx adapter.Context) map[string]any,
	interpret func(result *mcpsdk.CallToolResult) (adapter.Result, error),
) *Executor {
	return &Executor{client: client, name: name, serverID: serverID, toolName: toolName, required: required, deps: deps, argsFn: argsFn, interpret: interpret}
}

func (e *Executor) Name() string                  { return e.name }
func (e *Executor) RequiredIdentifiers() []string { return e.required }
func (e *Executor) Dependencies() []string        { return e.deps }

func (e *Executor) Execute(ctx context.Context, execCtx adapter.Context, deadline time.Time) (adapter.Result, error) {
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	args := e.argsFn(execCtx)
	result, err := e.client.CallTool(callCtx, e.serverID, e.toolName, args)
	if err != nil {
		if callCtx.Err() != nil {
			return adapter.Result{}, adapter.NewError(adapter.KindDeadline, "tool call deadline exceeded", err)
		}
		return adapter.Result{}, adapter.NewError(adapter.KindTransient, "tool call failed", err)
	}
	return e.interpret(result)
}
