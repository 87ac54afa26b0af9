package mcphttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// handleRPC is the JSON-RPC 2.0 POST endpoint, global or namespace-scoped
// depending on namespace (spec §4.5.1-§4.5.4).
func (s *Server) handleRPC(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptCompatible(r.Header.Get("Accept")) {
			http.Error(w, `{"error":"not acceptable"}`, http.StatusNotAcceptable)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "" && !contentTypeCompatible(ct) {
			writeRPCError(w, http.StatusOK, nil, toolerr.ParseError, "unsupported Content-Type")
			return
		}
		if v := r.Header.Get("MCP-Protocol-Version"); v != "" && !s.protocolSupported[v] {
			logUnknownProtocolVersion(v)
		}

		raw, err := readBody(r)
		if err != nil {
			writeRPCError(w, http.StatusOK, nil, toolerr.ParseError, "could not read request body")
			return
		}

		if isBatch(raw) {
			writeRPCError(w, http.StatusOK, nil, toolerr.InvalidRequest, "batch requests are not supported")
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			writeRPCError(w, http.StatusOK, nil, toolerr.ParseError, "malformed JSON-RPC envelope")
			return
		}
		if req.JSONRPC != "2.0" {
			writeRPCError(w, http.StatusOK, req.ID, toolerr.InvalidRequest, `"jsonrpc" must equal "2.0"`)
			return
		}

		if req.Method != "initialize" {
			if _, sessErr := s.resolveSession(r); sessErr != nil {
				writeRPCError(w, http.StatusNotFound, req.ID, toolerr.InvalidRequest, sessErr.Error())
				return
			}
		}

		result, rpcErr := s.dispatch(r.Context(), namespace, &req, w)
		if req.isNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr}
		if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			writeSSEEvent(w, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// resolveSession validates an Mcp-Session-Id header if present (spec
// §4.5.3). Absence is lenient-accepted; an unknown or expired id is an
// error the caller turns into a 404.
func (s *Server) resolveSession(r *http.Request) (*session, error) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		return nil, nil
	}
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, fmt.Errorf("unknown or expired session %q", id)
	}
	return sess, nil
}

// dispatch routes a validated JSON-RPC request to its method handler.
// On success it writes nothing itself for the happy path (the caller
// wraps the returned result), but initialize writes the Mcp-Session-Id
// response header as a side effect since that header does not fit the
// JSON-RPC result envelope.
func (s *Server) dispatch(ctx context.Context, namespace string, req *rpcRequest, w http.ResponseWriter) (interface{}, *rpcError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(namespace, req, w)
	case "initialized", "notifications/initialized":
		return nil, nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return s.handleToolsList(namespace)
	case "tools/call":
		return s.handleToolsCall(ctx, namespace, req)
	default:
		if req.isNotification() {
			return nil, nil // unknown notifications are dropped silently
		}
		return nil, &rpcError{Code: toolerr.MethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func (s *Server) handleInitialize(namespace string, req *rpcRequest, w http.ResponseWriter) (interface{}, *rpcError) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &rpcError{Code: toolerr.InvalidParams, Message: "malformed initialize params"}
		}
	}

	version := s.protocolDefault
	if params.ProtocolVersion != "" {
		if !s.protocolSupported[params.ProtocolVersion] {
			supported := make([]string, 0, len(s.protocolSupported))
			for v := range s.protocolSupported {
				supported = append(supported, v)
			}
			return nil, &rpcError{
				Code:    toolerr.InvalidParams,
				Message: fmt.Sprintf("unsupported protocolVersion %q", params.ProtocolVersion),
				Data:    map[string]interface{}{"supported": supported},
			}
		}
		version = params.ProtocolVersion
	}

	sess := s.sessions.create(version, namespace, params.ClientInfo)
	w.Header().Set("Mcp-Session-Id", sess.ID)

	return initializeResult{
		ProtocolVersion: version,
		Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
		ServerInfo:      map[string]interface{}{"name": s.serverName, "version": "1.0"},
	}, nil
}

func (s *Server) handleToolsList(namespace string) (interface{}, *rpcError) {
	var descriptors []registry.Descriptor
	if namespace == "" {
		descriptors = s.reg.ListAll()
	} else {
		descriptors = s.reg.ListForNamespace(namespace)
	}
	tools := make([]toolDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, toolDescriptor{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return toolsListResult{Tools: tools}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, namespace string, req *rpcRequest) (interface{}, *rpcError) {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &rpcError{Code: toolerr.InvalidParams, Message: "malformed tools/call params"}
	}

	if namespace != "" && !s.reg.ToolInNamespace(namespace, params.Name) {
		return nil, &rpcError{
			Code:    toolerr.InvalidParams,
			Message: fmt.Sprintf("Tool %q not found in namespace %q", params.Name, namespace),
		}
	}

	value, err := s.reg.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		return toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	text, err := registry.StringifyResult(value)
	if err != nil {
		return toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	return toolsCallResult{Content: []contentBlock{{Type: "text", Text: text}}, IsError: false}, nil
}

func writeRPCError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	writeJSON(w, status, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

// acceptCompatible implements spec §4.5.6's POST Accept rules: absent,
// application/json, */*, application/*, or text/event-stream (which
// triggers an SSE-wrapped single-event response) are all acceptable;
// anything else is an explicit incompatible type.
func acceptCompatible(accept string) bool {
	if accept == "" {
		return true
	}
	for _, want := range []string{"application/json", "*/*", "application/*", "text/event-stream"} {
		if strings.Contains(accept, want) {
			return true
		}
	}
	return false
}

func contentTypeCompatible(ct string) bool {
	for _, want := range []string{"application/json", "application/*", "*/*"} {
		if strings.Contains(ct, want) {
			return true
		}
	}
	return false
}

func isBatch(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
