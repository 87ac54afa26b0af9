// Package mcphttp implements the Streamable-HTTP MCP protocol surface
// (spec §4.5): JSON-RPC 2.0 request handling, session binding via
// Mcp-Session-Id, SSE fan-out, and the reserved-namespace guard. The
// wire mechanics are hand-rolled rather than delegated to an opaque
// framework, following paularlott-mcp's plain net/http MCPRequest/
// MCPResponse/MCPError shape and dispatch loop — adapted to ToolDock's
// namespace-scoped routing and multi-tenant tool registry.
package mcphttp

import "encoding/json"

// JSON-RPC 2.0 envelope types (spec §4.5.1).
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// isNotification reports whether req carries no id (spec §4.5.1:
// "Requests with id absent are notifications").
func (r *rpcRequest) isNotification() bool {
	return r.ID == nil
}

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      map[string]interface{} `json:"clientInfo,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      map[string]interface{} `json:"serverInfo"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolsCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}
