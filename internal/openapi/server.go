// Package openapi implements ToolDock's REST/OpenAPI transport (spec
// §4.6): every registered tool exposed as a plain POST endpoint, global
// and namespace-scoped, for clients (OpenWebUI and similar) that speak
// REST rather than JSON-RPC. Error handling follows a fixed status
// mapping (unauthorized->401, validation->422, other tool errors->400,
// unhandled panic->500), implemented as an explicit Go handler chain
// rather than a framework's declarative route/exception-handler
// registration.
package openapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// Server implements the OpenAPI/REST tool transport.
type Server struct {
	reg  *registry.Registry
	auth authn.Checker
}

// New builds a Server bound to reg.
func New(reg *registry.Registry, auth authn.Checker) *Server {
	return &Server{reg: reg, auth: auth}
}

// Handler returns the wired http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth(""))
	mux.HandleFunc("GET /tools", s.requireAuth(s.handleList("")))
	mux.HandleFunc("POST /tools/{name}", s.requireAuth(s.handleCall("")))

	mux.HandleFunc("GET /{namespace}/openapi/health", s.namespaced(s.handleHealth))
	mux.HandleFunc("GET /{namespace}/openapi/tools", s.namespaced(func(ns string) http.HandlerFunc { return s.requireAuth(s.handleList(ns)) }))
	mux.HandleFunc("POST /{namespace}/openapi/tools/{name}", s.namespaced(func(ns string) http.HandlerFunc { return s.requireAuth(s.handleCall(ns)) }))

	return s.recoverPanics(mux)
}

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

// requireAuth enforces bearer/basic auth on every endpoint except
// health (spec §4.6: "All non-health endpoints require bearer auth when
// configured").
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Authorized(r) {
			writeToolError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
			return
		}
		next(w, r)
	}
}

// recoverPanics maps an unhandled exception to a 500 ToolError envelope
// (spec §4.6 "unhandled exception -> 500"), mirroring
// openapi_server.py's `@app.exception_handler(Exception)`.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("openapi: unhandled panic", "error", rec, "path", r.URL.Path)
				writeToolError(w, http.StatusInternalServerError, "internal_error", "unhandled exception")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"namespace": namespace,
			"transport": "openapi",
		})
	}
}

func (s *Server) handleList(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var descriptors []registry.Descriptor
		if namespace == "" {
			descriptors = s.reg.ListAll()
		} else {
			descriptors = s.reg.ListForNamespace(namespace)
		}
		tools := make([]map[string]interface{}, 0, len(descriptors))
		for _, d := range descriptors {
			tools = append(tools, map[string]interface{}{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": d.InputSchema,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"namespace": namespace, "tools": tools})
	}
}

// handleCall implements `POST /tools/{name}` and
// `POST /{ns}/openapi/tools/{name}` (spec §4.6).
func (s *Server) handleCall(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if namespace != "" && !s.reg.ToolInNamespace(namespace, name) {
			writeToolError(w, http.StatusNotFound, string(toolerr.ToolNotFound), "tool not found in namespace")
			return
		}

		body := map[string]interface{}{}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeToolError(w, http.StatusUnprocessableEntity, string(toolerr.ValidationError), "malformed JSON body")
				return
			}
		}

		result, err := s.reg.Call(r.Context(), name, body)
		if err != nil {
			writeCallError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tool": name, "result": result})
	}
}

// writeCallError maps a registry.Call failure onto the status codes
// spec §4.6 specifies: unknown tool -> 404, schema validation -> 422,
// anything else the tool itself raised -> 400.
func writeCallError(w http.ResponseWriter, err error) {
	code := toolerr.CodeOf(err)
	switch code {
	case toolerr.ToolNotFound, toolerr.NamespaceNotFound:
		writeToolError(w, http.StatusNotFound, string(code), err.Error())
	case toolerr.ValidationError:
		writeToolError(w, http.StatusUnprocessableEntity, string(code), err.Error())
	default:
		writeToolError(w, http.StatusBadRequest, string(code), err.Error())
	}
}

func writeToolError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
