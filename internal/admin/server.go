// Package admin implements the mutation and operations surface an
// administrative dashboard would call: folder/tool reload, external
// server install/start/stop/delete, and an aggregated multi-frontend
// health probe. The HTML dashboard itself is out of scope (spec §1's
// Non-goals exclude the UI); only the API boundary it would drive is
// implemented here, using plain net/http routes under `/api/admin/*`.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/hotreload"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/supervisor"
)

// healthProbeTimeout mirrors original_source's
// `httpx.AsyncClient(timeout=2.0)` for the sibling-frontend health probe.
const healthProbeTimeout = 2 * time.Second

// ServiceHealth is one sibling frontend's reported status (spec §11,
// original admin.py's ServiceHealth model).
type ServiceHealth struct {
	Name    string                 `json:"name"`
	Status  string                 `json:"status"`
	Port    int                    `json:"port"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Server implements the admin mutation/operations API.
type Server struct {
	reg     *registry.Registry
	engine  *hotreload.Engine
	sup     *supervisor.Supervisor
	store   *store.Store
	auth    authn.Checker
	client  *http.Client
	dataDir string

	openapiPort int
	mcpPort     int
	webPort     int
}

// Config carries the values Server needs to reach its sibling frontends
// and locate data on disk (spec §6.5, §11).
type Config struct {
	DataDir     string
	OpenAPIPort int
	MCPPort     int
	WebPort     int
	Auth        authn.Checker
}

// New builds a Server.
func New(reg *registry.Registry, engine *hotreload.Engine, sup *supervisor.Supervisor, st *store.Store, cfg Config) *Server {
	return &Server{
		reg:         reg,
		engine:      engine,
		sup:         sup,
		store:       st,
		auth:        cfg.Auth,
		client:      &http.Client{Timeout: healthProbeTimeout},
		dataDir:     cfg.DataDir,
		openapiPort: cfg.OpenAPIPort,
		mcpPort:     cfg.MCPPort,
		webPort:     cfg.WebPort,
	}
}

// Handler returns the wired http.Handler. Every route requires bearer
// auth; there is no unauthenticated admin surface (unlike /health on
// the tool-facing transports).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/health", s.handleHealth)
	mux.HandleFunc("GET /api/admin/info", s.handleInfo)
	mux.HandleFunc("POST /api/admin/reload", s.handleReloadAll)
	mux.HandleFunc("POST /api/admin/reload/{namespace}", s.handleReloadNamespace)
	mux.HandleFunc("GET /api/admin/servers", s.handleListServers)
	mux.HandleFunc("POST /api/admin/servers/assess", s.handleAssess)
	mux.HandleFunc("POST /api/admin/servers", s.handleInstall)
	mux.HandleFunc("POST /api/admin/servers/{namespace}/start", s.handleStart)
	mux.HandleFunc("POST /api/admin/servers/{namespace}/stop", s.handleStop)
	mux.HandleFunc("DELETE /api/admin/servers/{namespace}", s.handleDelete)

	return s.requireAuth(mux)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error": map[string]interface{}{"code": "unauthorized", "message": "missing or invalid credentials"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AggregatedHealthReport is the result of polling every sibling
// frontend (spec §11, original admin.py's SystemHealthResponse).
type AggregatedHealthReport struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

// AggregatedHealth polls the OpenAPI and MCP frontends' own /health
// endpoints with a 2s timeout (original admin.py's get_system_health /
// httpx.AsyncClient(timeout=2.0)), plus reports the web surface always
// healthy since it is the one answering the request.
func (s *Server) AggregatedHealth(ctx context.Context) AggregatedHealthReport {
	services := []ServiceHealth{
		s.probe(ctx, "openapi", s.openapiPort),
		s.probe(ctx, "mcp", s.mcpPort),
		{Name: "web", Status: "healthy", Port: s.webPort, Details: map[string]interface{}{"service": "web-gui"}},
	}

	overall := "healthy"
	for _, svc := range services {
		if svc.Status != "healthy" {
			overall = "degraded"
			break
		}
	}
	return AggregatedHealthReport{Status: overall, Services: services}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.AggregatedHealth(r.Context()))
}

func (s *Server) probe(ctx context.Context, name string, port int) ServiceHealth {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return ServiceHealth{Name: name, Status: "unreachable", Port: port}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return ServiceHealth{Name: name, Status: "unreachable", Port: port}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ServiceHealth{Name: name, Status: "unhealthy", Port: port}
	}
	var details map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&details)
	return ServiceHealth{Name: name, Status: "healthy", Port: port, Details: details}
}

// handleInfo reports system information (spec §11, original admin.py's
// SystemInfoResponse, minus the Python-specific version field).
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.reg.Stats()
	namespaces := make([]string, 0, len(stats.Namespaces))
	for ns := range stats.Namespaces {
		namespaces = append(namespaces, ns)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data_dir":   s.dataDir,
		"namespaces": namespaces,
		"stats":      stats,
	})
}

func (s *Server) handleReloadAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.ReloadAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleReloadNamespace(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	result, err := s.engine.ReloadNamespace(r.Context(), ns)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListExternalServers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"servers": records})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req supervisor.InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed request body"})
		return
	}
	writeJSON(w, http.StatusOK, supervisor.AssessSafety(req))
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req supervisor.InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "malformed request body"})
		return
	}
	rec, err := s.sup.Install(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	if err := s.sup.Start(r.Context(), ns); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"namespace": ns, "status": "running"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	if err := s.sup.Stop(r.Context(), ns); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"namespace": ns, "status": "stopped"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	if err := s.sup.Delete(r.Context(), ns); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
