package admin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/hotreload"
	"github.com/tooldock/tooldock/internal/loader"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/supervisor"
	"github.com/viant/afs"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New(time.Second)
	st, err := store.Open(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	toolsDir := t.TempDir()
	l := loader.New(afs.New(), toolsDir, reg)
	engine := hotreload.New(toolsDir, l, hotreload.KindFromRegistry(reg), 0, nil)
	sup := supervisor.New(t.TempDir(), st, reg, false)

	return New(reg, engine, sup, st, Config{
		DataDir:     t.TempDir(),
		OpenAPIPort: 1,
		MCPPort:     2,
		WebPort:     3,
		Auth:        authn.New("secret", ""),
	})
}

func doReq(t *testing.T, srv *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresAuth(t *testing.T) {
	srv := testServer(t)
	rec := doReq(t, srv, http.MethodGet, "/api/admin/info", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminHealthUnreachableSiblingsDegraded(t *testing.T) {
	srv := testServer(t)
	rec := doReq(t, srv, http.MethodGet, "/api/admin/health", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestAggregatedHealthReportsReachableSibling(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer up.Close()

	srv := testServer(t)
	_, portStr, err := net.SplitHostPort(up.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	srv.openapiPort = port

	report := srv.AggregatedHealth(context.Background())
	require.Len(t, report.Services, 3)
	assert.Equal(t, "healthy", report.Services[0].Status)
}

func TestAdminInfoListsNamespaces(t *testing.T) {
	srv := testServer(t)
	require.NoError(t, srv.reg.Register("weather", "weather:forecast", "forecast", map[string]interface{}{
		"type": "object",
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return "ok", nil }))

	rec := doReq(t, srv, http.MethodGet, "/api/admin/info", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "weather")
}

func TestAdminReloadAllEmpty(t *testing.T) {
	srv := testServer(t)
	rec := doReq(t, srv, http.MethodPost, "/api/admin/reload", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminListServersEmpty(t *testing.T) {
	srv := testServer(t)
	rec := doReq(t, srv, http.MethodGet, "/api/admin/servers", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"servers":[]`)
}

func TestAdminStartUnknownNamespaceFails(t *testing.T) {
	srv := testServer(t)
	rec := doReq(t, srv, http.MethodPost, "/api/admin/servers/ghost/start", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
