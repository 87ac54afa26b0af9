package mcphttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/registry"
)

func testServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(time.Second)
	require.NoError(t, reg.Register("weather", "weather:forecast", "forecast", map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "sunny", nil
	}))

	srv := New(reg, Config{
		ServerName:        "tooldock",
		ProtocolDefault:   "2024-11-05",
		ProtocolSupported: []string{"2024-11-05", "2025-03-26"},
		CORSOrigins:       []string{"*"},
		Auth:              authn.New("", ""),
	})
	return srv, reg
}

func doRPC(t *testing.T, h http.Handler, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReservedNamespacePrefixIs404(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp/mcp", map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "ping"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadJSONRPCVersionRejected(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{"jsonrpc": "1.0", "id": 1, "method": "ping"})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestBatchRequestRejected(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("[]")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestNotificationReturns202(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{"jsonrpc": "2.0", "method": "notifications/initialized"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "bogus"})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestInitializeNegotiatesSupportedVersion(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]interface{}{"protocolVersion": "2025-03-26"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestInitializeRejectsUnknownVersion(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]interface{}{"protocolVersion": "1999-01-01"},
	})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestUnknownSessionIdIs404(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(mustJSON(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "ping",
	})))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", "nonexistent")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolsListGlobal(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/mcp", map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestToolsCallNamespaceScopingRejectsForeignTool(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/files/mcp", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": map[string]interface{}{"name": "weather:forecast", "arguments": map[string]interface{}{}},
	})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestToolsCallSucceeds(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRPC(t, srv.Handler(), "/weather/mcp", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": map[string]interface{}{"name": "weather:forecast", "arguments": map[string]interface{}{}},
	})
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestDeleteWithoutSessionIdIs400(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOriginOutsideCORSIsForbidden(t *testing.T) {
	reg := registry.New(time.Second)
	srv := New(reg, Config{
		ServerName:        "tooldock",
		ProtocolDefault:   "2024-11-05",
		ProtocolSupported: []string{"2024-11-05"},
		CORSOrigins:       []string{"https://allowed.example"},
		Auth:              authn.New("", ""),
	})
	req2 := httptest.NewRequest(http.MethodGet, "/mcp/namespaces", nil)
	req2.Header.Set("Origin", "https://evil.example")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
