package mcphttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/registry"
)

// Server implements the MCP streamable-HTTP transport (spec §4.5): a
// global endpoint plus one namespace-scoped endpoint per registered
// namespace, JSON-RPC 2.0 request/response handling, session binding,
// and SSE fan-out. It is deliberately built on net/http's routing
// rather than a framework, the way paularlott-mcp's Server.HandleRequest
// does — extended here with namespace scoping, Mcp-Session-Id lifecycle
// and SSE support that reference implementation does not provide.
type Server struct {
	reg               *registry.Registry
	auth              authn.Checker
	sessions          *sessionStore
	hub               *sseHub
	serverName        string
	protocolDefault   string
	protocolSupported map[string]bool
	corsOrigins       []string
}

// Config carries the values Server needs from the process environment
// (spec §4.5, §6.5); callers pass config.Runtime's relevant fields in.
type Config struct {
	ServerName        string
	ProtocolDefault   string
	ProtocolSupported []string
	CORSOrigins       []string
	Auth              authn.Checker
}

// New builds a Server bound to reg. reg is consulted live on every
// request, so tools registered or removed after New returns are picked
// up immediately (no caching).
func New(reg *registry.Registry, cfg Config) *Server {
	supported := make(map[string]bool, len(cfg.ProtocolSupported))
	for _, v := range cfg.ProtocolSupported {
		supported[v] = true
	}
	if len(supported) == 0 {
		supported[cfg.ProtocolDefault] = true
	}
	return &Server{
		reg:               reg,
		auth:              cfg.Auth,
		sessions:          newSessionStore(sessionTTL),
		hub:               newSSEHub(),
		serverName:        cfg.ServerName,
		protocolDefault:   cfg.ProtocolDefault,
		protocolSupported: supported,
		corsOrigins:       cfg.CORSOrigins,
	}
}

// Handler returns the fully wired http.Handler: auth middleware wrapped
// around the route mux.
func (s *Server) Handler() http.Handler {
	return s.auth.Middleware(s.mux())
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /mcp", s.withCORS(s.handleRPC("")))
	mux.HandleFunc("GET /mcp", s.withCORS(s.handleStream("")))
	mux.HandleFunc("DELETE /mcp", s.withCORS(s.handleDelete))
	mux.HandleFunc("GET /mcp/namespaces", s.withCORS(s.handleNamespaces))
	mux.HandleFunc("GET /mcp/info", s.withCORS(s.handleInfo("")))
	mux.HandleFunc("GET /mcp/sse", s.withCORS(s.handleStream("")))
	mux.HandleFunc("POST /mcp/sse", s.withCORS(s.handleRPC("")))

	mux.HandleFunc("POST /{namespace}/mcp", s.withCORS(s.namespaced(s.handleRPC)))
	mux.HandleFunc("GET /{namespace}/mcp", s.withCORS(s.namespaced(s.handleStream)))
	mux.HandleFunc("DELETE /{namespace}/mcp", s.withCORS(s.namespaced(func(string) http.HandlerFunc { return s.handleDelete })))
	mux.HandleFunc("GET /{namespace}/mcp/info", s.withCORS(s.namespaced(s.handleInfo)))
	mux.HandleFunc("GET /{namespace}/mcp/sse", s.withCORS(s.namespaced(s.handleStream)))
	mux.HandleFunc("POST /{namespace}/mcp/sse", s.withCORS(s.namespaced(s.handleRPC)))

	return mux
}

// namespaced wraps a (namespace string) -> handler factory, enforcing
// the reserved-prefix guard (spec §4.5 "returns 404 before any further
// processing") before dispatch.
func (s *Server) namespaced(factory func(string) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := r.PathValue("namespace")
		if registry.IsReserved(ns) {
			http.NotFound(w, r)
			return
		}
		factory(ns)(w, r)
	}
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.originAllowed(origin) {
			http.Error(w, `{"error":"origin not allowed"}`, http.StatusForbidden)
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.corsOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return len(s.corsOrigins) == 0
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.reg.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tools":  stats.Total,
	})
}

func (s *Server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	stats := s.reg.Stats()
	namespaces := make([]string, 0, len(stats.Namespaces))
	for ns := range stats.Namespaces {
		namespaces = append(namespaces, ns)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"namespaces": namespaces})
}

// handleInfo is the non-standard discovery endpoint (spec §4.5 "Non-
// standard discovery"): server identity plus protocol support, scoped
// to namespace when non-empty.
func (s *Server) handleInfo(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tools []registry.Descriptor
		if namespace == "" {
			tools = s.reg.ListAll()
		} else {
			tools = s.reg.ListForNamespace(namespace)
		}
		supported := make([]string, 0, len(s.protocolSupported))
		for v := range s.protocolSupported {
			supported = append(supported, v)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":              s.serverName,
			"namespace":         namespace,
			"protocolVersion":   s.protocolDefault,
			"protocolSupported": supported,
			"toolCount":         len(tools),
		})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		http.Error(w, `{"error":"missing Mcp-Session-Id"}`, http.StatusBadRequest)
		return
	}
	if !s.sessions.delete(id) {
		http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleStream serves the SSE surface (spec §4.5.5). A GET without an
// SSE-compatible Accept header is answered with 406 Not Acceptable.
func (s *Server) handleStream(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsEventStream(r) {
			http.Error(w, `{"error":"expected Accept: text/event-stream"}`, http.StatusNotAcceptable)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		sub, cancel := s.hub.subscribe(namespace)
		defer cancel()

		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.mailbox:
				fmt.Fprintf(w, "data: %s\n\n", msg)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	// No charset parameter (spec §4.5.7: "strict clients reject the
	// parameter") — a deliberate divergence from the more common
	// "application/json; charset=utf-8".
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeSSEEvent serves a single JSON-RPC response as one SSE event
// (spec §4.5.6: an Accept: text/event-stream POST "will produce an
// SSE-wrapped single-event response").
func writeSSEEvent(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	data, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(w, ": error encoding response\n\n")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func logUnknownProtocolVersion(v string) {
	slog.Debug("mcphttp: unknown MCP-Protocol-Version header, ignoring", "version", v)
}
