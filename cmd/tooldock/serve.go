package tooldock

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/viant/afs"

	"github.com/tooldock/tooldock/internal/admin"
	"github.com/tooldock/tooldock/internal/authn"
	"github.com/tooldock/tooldock/internal/config"
	"github.com/tooldock/tooldock/internal/hotreload"
	"github.com/tooldock/tooldock/internal/loader"
	"github.com/tooldock/tooldock/internal/mcphttp"
	"github.com/tooldock/tooldock/internal/obs"
	"github.com/tooldock/tooldock/internal/openapi"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/supervisor"
)

// ServeCmd starts the OpenAPI, MCP, and admin frontends in one process
// (spec §2, §6): three separate listeners, each bound to its own mux,
// sharing one in-memory Registry.
type ServeCmd struct {
	ToolsDir string `long:"tools-dir" description:"directory of namespace tool manifests" default:"tools"`
	JSONLogs bool   `long:"json-logs" description:"emit structured JSON logs instead of text"`
}

func (c *ServeCmd) Execute(_ []string) error {
	obs.InitLogger(slog.LevelInfo, c.JSONLogs)
	cfg := config.Load()
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.DataDir, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := registry.New(cfg.ToolTimeout)
	fs := afs.New()
	l := loader.New(fs, c.ToolsDir, reg)

	if _, err := l.ReloadAll(ctx); err != nil {
		slog.Warn("serve: initial tool load failed", "error", err)
	}

	sup := supervisor.New(cfg.DataDir, st, reg, true)
	if err := sup.SyncFromDB(ctx); err != nil {
		slog.Warn("serve: syncing external servers from db failed", "error", err)
	}

	fanout := hotreload.NewFanout(
		hotreload.SiblingTargets(cfg.Host, []int{cfg.OpenAPIPort, cfg.MCPPort}),
		false,
	)
	engine := hotreload.New(c.ToolsDir, l, hotreload.KindFromRegistry(reg), 500*time.Millisecond, fanout)
	if err := engine.Watch(ctx); err != nil {
		slog.Warn("serve: starting filesystem watch failed", "error", err)
	}
	defer engine.Stop()

	auth := authn.New(cfg.BearerToken, cfg.AdminUsername)

	openapiSrv := openapi.New(reg, auth)
	mcpSrv := mcphttp.New(reg, mcphttp.Config{
		ServerName:        cfg.MCPServerName,
		ProtocolDefault:   cfg.MCPProtocolVersion,
		ProtocolSupported: cfg.MCPProtocolVersions,
		CORSOrigins:       cfg.CORSOrigins,
		Auth:              auth,
	})
	adminSrv := admin.New(reg, engine, sup, st, admin.Config{
		DataDir:     cfg.DataDir,
		OpenAPIPort: cfg.OpenAPIPort,
		MCPPort:     cfg.MCPPort,
		WebPort:     cfg.WebPort,
		Auth:        auth,
	})

	errCh := make(chan error, 3)
	go listenAndServe(errCh, "openapi", cfg.Host, cfg.OpenAPIPort, openapiSrv.Handler())
	go listenAndServe(errCh, "mcp", cfg.Host, cfg.MCPPort, mcpSrv.Handler())
	go listenAndServe(errCh, "admin", cfg.Host, cfg.WebPort, adminSrv.Handler())

	return <-errCh
}

func listenAndServe(errCh chan<- error, name, host string, port int, handler http.Handler) {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("serve: listening", "frontend", name, "addr", addr)
	errCh <- srv.ListenAndServe()
}
