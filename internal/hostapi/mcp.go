package hostapi

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// ServerSpec describes one MCP server a plugin registers: a child process
// launched over stdio.
type ServerSpec struct {
	ID      string
	Command string
	Args    []string
	Env     []string
}

// mcpConn tracks one running (or backed-off) MCP child connection.
type mcpConn struct {
	spec    ServerSpec
	client  *client.Client
	mu      sync.Mutex
	backoff time.Duration
}

const (
	mcpInitialBackoff = 100 * time.Millisecond
	mcpMaxBackoff     = 30 * time.Second
	mcpDefaultRate    = 10 // calls/sec per plugin; token bucket with burst equal to the rate, not a sliding window
)

// McpAPI implements the mcp.* namespace: server registration, tool/
// resource/prompt discovery, and invocation, each gated by a capability
// check plus, for invoke_tool/read_resource, an additional scope check
// against the granted Tools/resource-URI-prefix patterns.
//
// Grounded on the teacher-adjacent emergent-company-specmcp's server.go
// (method surface: tools/list, tools/call, resources/list,
// resources/read, prompts/list, prompts/get — here issued as client
// calls against an external server instead of served locally) and
// original_source's plugin_runtime/apis/mcp module for the child-process
// lifecycle and per-plugin rate limiting shape.
type McpAPI struct {
	perms *permission.Manager

	mu        sync.Mutex
	servers   map[string]*mcpConn      // serverID -> conn
	owners    map[string]string        // serverID -> owning plugin id
	limiter   map[string]*rate.Limiter // pluginID -> limiter
	rateLimit float64                  // calls/sec granted to newly created limiters
}

// NewMcpAPI returns an empty McpAPI rate-limited at mcpDefaultRate
// calls/sec per plugin.
func NewMcpAPI(perms *permission.Manager) *McpAPI {
	return &McpAPI{
		perms:     perms,
		servers:   make(map[string]*mcpConn),
		owners:    make(map[string]string),
		limiter:   make(map[string]*rate.Limiter),
		rateLimit: mcpDefaultRate,
	}
}

// SetRateLimit overrides the per-plugin call rate for limiters created
// from this point on, letting internal/config apply an
// operator-configured value in place of mcpDefaultRate. Limiters
// already handed out to a plugin keep their original rate.
func (m *McpAPI) SetRateLimit(callsPerSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = callsPerSecond
}

func (m *McpAPI) limiterFor(pluginID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiter[pluginID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.rateLimit), int(m.rateLimit))
		m.limiter[pluginID] = l
	}
	return l
}

func (m *McpAPI) checkRate(pluginID string) error {
	if !m.limiterFor(pluginID).Allow() {
		return vaulterr.New(vaulterr.RateLimited, "plugin %s exceeded MCP call rate", pluginID)
	}
	return nil
}

// RegisterServer launches spec's child process over stdio and performs
// the MCP initialize handshake, retrying with exponential backoff
// (100ms -> 30s) on launch failure up to the context deadline.
func (m *McpAPI) RegisterServer(ctx context.Context, pluginID string, spec ServerSpec) error {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{"*"}}); err != nil {
		return err
	}

	conn := &mcpConn{spec: spec, backoff: mcpInitialBackoff}
	if err := m.dialWithBackoff(ctx, conn); err != nil {
		return err
	}

	m.mu.Lock()
	m.servers[spec.ID] = conn
	m.owners[spec.ID] = pluginID
	m.mu.Unlock()
	return nil
}

func (m *McpAPI) dialWithBackoff(ctx context.Context, conn *mcpConn) error {
	backoff := mcpInitialBackoff
	for {
		c, err := client.NewStdioMCPClient(conn.spec.Command, conn.spec.Env, conn.spec.Args...)
		if err == nil {
			if _, initErr := c.Initialize(ctx, mcp.InitializeRequest{}); initErr == nil {
				conn.mu.Lock()
				conn.client = c
				conn.mu.Unlock()
				return nil
			}
			_ = c.Close()
		}

		select {
		case <-ctx.Done():
			return vaulterr.Wrap(vaulterr.IoError, ctx.Err(), "launch mcp server %s", conn.spec.ID)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > mcpMaxBackoff {
			backoff = mcpMaxBackoff
		}
	}
}

func (m *McpAPI) connFor(serverID string) (*mcpConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.servers[serverID]
	if !ok {
		return nil, vaulterr.New(vaulterr.NotFound, "no such mcp server: %s", serverID)
	}
	return conn, nil
}

// GetServerInfo returns the registered spec for serverID.
func (m *McpAPI) GetServerInfo(serverID string) (ServerSpec, error) {
	conn, err := m.connFor(serverID)
	if err != nil {
		return ServerSpec{}, err
	}
	return conn.spec, nil
}

// ListServers returns every registered server id.
func (m *McpAPI) ListServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	return ids
}

// ListTools returns the tools serverID exposes.
func (m *McpAPI) ListTools(ctx context.Context, pluginID, serverID string) ([]mcp.Tool, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{"*"}}); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	result, err := conn.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "list tools on %s", serverID)
	}
	return result.Tools, nil
}

// InvokeTool calls toolName on serverID with args, enforcing both the
// McpInvoke capability and a scope check against its granted Tools
// patterns, plus the plugin's token-bucket rate limit.
func (m *McpAPI) InvokeTool(ctx context.Context, pluginID, serverID, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{toolName}}); err != nil {
		return nil, err
	}
	if err := m.checkRate(pluginID); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	result, err := conn.client.CallTool(ctx, req)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "invoke tool %s on %s", toolName, serverID)
	}
	return result, nil
}

// ListResources returns the resources serverID exposes.
func (m *McpAPI) ListResources(ctx context.Context, pluginID, serverID string) ([]mcp.Resource, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{"*"}}); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	result, err := conn.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "list resources on %s", serverID)
	}
	return result.Resources, nil
}

// ReadResource reads uri from serverID, scope-checked against the
// plugin's granted Tools patterns (reused here as a resource-URI-prefix
// scope, matching spec §4.H's "additional scoping for invoke_tool/
// read_resource").
func (m *McpAPI) ReadResource(ctx context.Context, pluginID, serverID, uri string) ([]mcp.ResourceContents, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{uri}}); err != nil {
		return nil, err
	}
	if err := m.checkRate(pluginID); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := conn.client.ReadResource(ctx, req)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "read resource %s on %s", uri, serverID)
	}
	return result.Contents, nil
}

// SubscribeResource requests update notifications for uri. This call only
// performs the permission check and the subscribe handshake. McpAPI
// registers no notification handler on the mcp-go client and takes no
// sink, so update notifications the server sends are not delivered to
// the plugin.
func (m *McpAPI) SubscribeResource(ctx context.Context, pluginID, serverID, uri string) error {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{uri}}); err != nil {
		return err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return err
	}
	req := mcp.SubscribeRequest{}
	req.Params.URI = uri
	if err := conn.client.Subscribe(ctx, req); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "subscribe to %s on %s", uri, serverID)
	}
	return nil
}

// ListPrompts returns the prompts serverID exposes.
func (m *McpAPI) ListPrompts(ctx context.Context, pluginID, serverID string) ([]mcp.Prompt, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{"*"}}); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	result, err := conn.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "list prompts on %s", serverID)
	}
	return result.Prompts, nil
}

// GetPrompt fetches promptName rendered with args.
func (m *McpAPI) GetPrompt(ctx context.Context, pluginID, serverID, promptName string, args map[string]string) (*mcp.GetPromptResult, error) {
	if err := m.perms.RequireCapability(pluginID, permission.Capability{Kind: permission.McpInvoke, Tools: []string{"*"}}); err != nil {
		return nil, err
	}
	conn, err := m.connFor(serverID)
	if err != nil {
		return nil, err
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = promptName
	req.Params.Arguments = args
	result, err := conn.client.GetPrompt(ctx, req)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, err, "get prompt %s on %s", promptName, serverID)
	}
	return result, nil
}

// CloseServer tears down serverID's child process.
func (m *McpAPI) CloseServer(serverID string) error {
	m.mu.Lock()
	conn, ok := m.servers[serverID]
	if ok {
		delete(m.servers, serverID)
		delete(m.owners, serverID)
	}
	m.mu.Unlock()
	if !ok {
		return vaulterr.New(vaulterr.NotFound, "no such mcp server: %s", serverID)
	}
	if conn.client != nil {
		return conn.client.Close()
	}
	return nil
}
