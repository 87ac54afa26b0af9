// Package config holds ToolDock's runtime configuration (parsed once from
// process environment at startup) and the durable external-server recipe
// document persisted under <data_dir>/external/config.yaml.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Runtime is the immutable set of values derived from process environment
// at startup (spec §6.5). It is built once in cmd/tooldock and threaded
// through every component by the caller; nothing in this package re-reads
// the environment after Load returns.
type Runtime struct {
	BearerToken          string
	DataDir              string
	DatabaseURL          string
	CORSOrigins          []string
	MCPProtocolVersion   string
	MCPProtocolVersions  []string
	MCPServerName        string
	ToolTimeout          time.Duration
	OpenAPIPort          int
	MCPPort              int
	WebPort              int
	Host                 string
	AdminUsername        string
}

// Load builds a Runtime from the current process environment, applying the
// defaults spec.md names for each variable.
func Load() Runtime {
	r := Runtime{
		BearerToken:   strings.TrimSpace(os.Getenv("BEARER_TOKEN")),
		DataDir:       envOr("DATA_DIR", "omnimcp_data"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MCPServerName: envOr("MCP_SERVER_NAME", "tooldock"),
		OpenAPIPort:   envInt("OPENAPI_PORT", 8006),
		MCPPort:       envInt("MCP_PORT", 8007),
		WebPort:       envInt("WEB_PORT", 8080),
		AdminUsername: envOr("ADMIN_USERNAME", "admin"),
	}

	r.Host = normalizeHost(envOr("HOST", "0.0.0.0"))
	r.CORSOrigins = splitCSV(envOr("CORS_ORIGINS", "*"))

	r.MCPProtocolVersion = envOr("MCP_PROTOCOL_VERSION", "2025-03-26")
	if versions := strings.TrimSpace(os.Getenv("MCP_PROTOCOL_VERSIONS")); versions != "" {
		r.MCPProtocolVersions = splitCSV(versions)
	} else {
		r.MCPProtocolVersions = []string{"2024-11-05", "2025-03-26"}
		if r.MCPProtocolVersion != "2024-11-05" && r.MCPProtocolVersion != "2025-03-26" {
			r.MCPProtocolVersions = append(r.MCPProtocolVersions, r.MCPProtocolVersion)
		}
	}

	secs := envInt("TOOL_TIMEOUT_SECONDS", 30)
	r.ToolTimeout = time.Duration(secs) * time.Second

	return r
}

// AuthEnabled reports whether a bearer token has been configured; per
// spec §4.7 auth is disabled entirely when the token is unset or blank.
func (r Runtime) AuthEnabled() bool {
	return strings.TrimSpace(r.BearerToken) != ""
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeHost rewrites the wildcard bind address to a loopback address
// suitable for the sibling-service fan-out client (spec §6.5: "0.0.0.0
// normalized to 127.0.0.1").
func normalizeHost(h string) string {
	if h == "0.0.0.0" || h == "" {
		return "127.0.0.1"
	}
	return h
}
