package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// fanoutTimeout bounds the sibling-process broadcast (spec §4.8: "short
// timeout (≤ 500 ms) and best-effort semantics").
const fanoutTimeout = 500 * time.Millisecond

// Fanout emits a best-effort reload-broadcast POST to sibling frontend
// processes after an admin mutation (spec §4.8). Failures are logged and
// never propagated to the caller.
type Fanout struct {
	client   *http.Client
	targets  []string
	disabled bool
}

// NewFanout builds a Fanout that POSTs to each of targets (absolute URLs,
// e.g. "http://127.0.0.1:8006/admin/fastmcp/reload"). Pass disabled=true
// under test to suppress fan-out entirely (spec §4.8: "Fan-out is
// suppressed under test").
func NewFanout(targets []string, disabled bool) *Fanout {
	return &Fanout{
		client:   &http.Client{Timeout: fanoutTimeout},
		targets:  targets,
		disabled: disabled,
	}
}

// Broadcast fires the fan-out POSTs concurrently, swallowing every error.
func (f *Fanout) Broadcast(ctx context.Context) {
	if f == nil || f.disabled {
		return
	}
	for _, target := range f.targets {
		go f.post(ctx, target)
	}
}

func (f *Fanout) post(ctx context.Context, target string) {
	reqCtx, cancel := context.WithTimeout(ctx, fanoutTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, nil)
	if err != nil {
		slog.Warn("hotreload: building fan-out request failed", "target", target, "error", err)
		return
	}
	resp, err := f.client.Do(req)
	if err != nil {
		slog.Warn("hotreload: fan-out request failed", "target", target, "error", err)
		return
	}
	_ = resp.Body.Close()
}

// SiblingTargets builds the two fan-out URLs spec §4.8 names
// (/admin/fastmcp/reload and /admin/servers/reload), rooted at host for
// each of the given ports.
func SiblingTargets(host string, ports []int) []string {
	var out []string
	for _, port := range ports {
		base := fmt.Sprintf("http://%s:%d", host, port)
		out = append(out, base+"/admin/fastmcp/reload", base+"/admin/servers/reload")
	}
	return out
}
