// Package mcpproxy speaks MCP JSON-RPC 2.0 toward a single subprocess or
// HTTP provider, normalizing tool names and converting transport/remote
// failures into the uniform {content, isError} envelope instead of
// propagating them as Go errors past this boundary (spec §4.4).
package mcpproxy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/mcp"
	mcpschema "github.com/viant/mcp-protocol/schema"
	mcpclient "github.com/viant/mcp/client"

	"github.com/tooldock/tooldock/internal/toolerr"
)

// Result is the uniform envelope returned by CallTool (spec §4.4).
type Result struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// ContentBlock mirrors MCP's tagged content union, collapsed to the
// subset ToolDock surfaces (text is the common case; anything else is
// carried through as opaque data).
type ContentBlock struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Proxy wraps an MCP client bound to one external server (one namespace).
type Proxy struct {
	cli    mcpclient.Interface
	server string

	mu          sync.RWMutex
	connected   bool
	toolCatalog []mcpschema.Tool
}

// New constructs a Proxy bound to server (the namespace/server name used
// in tool-name normalization), wrapping an already-built MCP client.
func New(server string, cli mcpclient.Interface) *Proxy {
	return &Proxy{cli: cli, server: strings.TrimSpace(server)}
}

// DialHTTP builds a Proxy over a streamable-HTTP transport pointed at
// serverURL (the supervisor's spawned subprocess, or a bare `http`
// install_method's remote endpoint). It does not connect; call Connect.
func DialHTTP(server, serverURL string) (*Proxy, error) {
	opts := &mcp.ClientOptions{
		Name: server,
		Transport: mcp.ClientTransport{
			Type: "streaming",
			ClientTransportHTTP: mcp.ClientTransportHTTP{
				URL: serverURL,
			},
		},
	}
	cli, err := mcp.NewClient(nil, opts)
	if err != nil {
		return nil, fmt.Errorf("mcpproxy: dialing %s at %s: %w", server, serverURL, err)
	}
	return New(server, cli), nil
}

// DialStdio builds a Proxy that speaks MCP over the stdin/stdout of a
// subprocess the client library itself spawns from command/args.
func DialStdio(server, command string, args []string) (*Proxy, error) {
	opts := &mcp.ClientOptions{
		Name: server,
		Transport: mcp.ClientTransport{
			Type: "stdio",
			ClientTransportStdio: mcp.ClientTransportStdio{
				Command:   command,
				Arguments: args,
			},
		},
	}
	cli, err := mcp.NewClient(nil, opts)
	if err != nil {
		return nil, fmt.Errorf("mcpproxy: dialing %s via stdio %s: %w", server, command, err)
	}
	return New(server, cli), nil
}

// Connect performs the one-shot initialize -> initialized -> tools/list
// handshake (spec §4.4). A Proxy that is already connected treats a
// second Connect call as a no-op.
func (p *Proxy) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}

	if _, err := p.cli.Initialize(ctx); err != nil {
		return toolerr.Wrap(toolerr.NotConnected, err, "initializing %s", p.server)
	}
	// notifications/initialized has no reply to wait on; the underlying
	// client issues it as part of its own handshake sequence.

	tools, err := p.listAllToolsLocked(ctx)
	if err != nil {
		return toolerr.Wrap(toolerr.NotConnected, err, "listing tools for %s", p.server)
	}
	p.toolCatalog = tools
	p.connected = true
	return nil
}

// Disconnect idempotently tears down transport resources.
func (p *Proxy) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.connected = false
	p.toolCatalog = nil
	if closer, ok := p.cli.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Connected reports whether Connect has completed successfully.
func (p *Proxy) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Tools returns the cached tool catalog captured at Connect time.
func (p *Proxy) Tools() []mcpschema.Tool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mcpschema.Tool, len(p.toolCatalog))
	copy(out, p.toolCatalog)
	return out
}

// hasTool reports whether name appears in the cached tool catalog.
func (p *Proxy) hasTool(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.toolCatalog {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool forwards a tools/call for originalName. It never returns a
// transport/remote error: any failure the remote call itself raises is
// folded into Result{IsError:true} per spec §4.4, so callers always
// receive a renderable envelope. A Go error is only returned when the
// proxy has never connected, or when originalName is not present in the
// cached tool catalog (spec §4.4's tool_not_found category).
func (p *Proxy) CallTool(ctx context.Context, originalName string, args map[string]interface{}) (interface{}, error) {
	if !p.Connected() {
		return nil, toolerr.New(toolerr.NotConnected, "proxy for %s is not connected", p.server)
	}
	trimmed := strings.TrimSpace(originalName)
	if !p.hasTool(trimmed) {
		return nil, toolerr.New(toolerr.ToolNotFound, "tool %s not found on server %s", trimmed, p.server)
	}

	name := normalizeToolName(p.server, trimmed)
	params := &mcpschema.CallToolRequestParams{
		Name:      name,
		Arguments: mcpschema.CallToolRequestParamsArguments(args),
	}
	res, err := p.cli.CallTool(ctx, params)
	if err != nil {
		return errorEnvelope(err), nil
	}
	return translate(res), nil
}

func errorEnvelope(err error) Result {
	return Result{
		IsError: true,
		Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
	}
}

// translate maps MCP content blocks onto ToolDock's envelope. The
// mcp-protocol schema's Content entries carry Type/Text directly for the
// text case (see client usage in the retrieval pack); anything whose
// Type isn't "text" is carried through as opaque data.
func translate(res *mcpschema.CallToolResult) Result {
	if res == nil {
		return Result{IsError: true, Content: []ContentBlock{{Type: "text", Text: "Error: empty response"}}}
	}
	out := Result{IsError: res.IsError != nil && *res.IsError}
	for _, c := range res.Content {
		if c.Type == "text" {
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: c.Text})
			continue
		}
		out.Content = append(out.Content, ContentBlock{Type: c.Type, Data: c})
	}
	return out
}

// ListAllTools pages through cursors returning the full catalog.
func (p *Proxy) ListAllTools(ctx context.Context) ([]mcpschema.Tool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listAllToolsLocked(ctx)
}

func (p *Proxy) listAllToolsLocked(ctx context.Context) ([]mcpschema.Tool, error) {
	var (
		tools  []mcpschema.Tool
		cursor *string
	)
	for {
		res, err := p.cli.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == nil || *res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return tools, nil
}

// normalizeToolName strips a server-qualifying prefix (a leading
// "namespace/" or "namespace:" segment) so the remote call carries the
// bare tool name the subprocess itself registered, not the namespace-
// qualified name the registry exposes to callers.
func normalizeToolName(server, name string) string {
	if name == "" {
		return name
	}
	if i := strings.IndexByte(name, '/'); i != -1 {
		return name[i+1:]
	}
	if i := strings.LastIndexByte(name, ':'); i != -1 {
		return name[i+1:]
	}
	return name
}
