package hotreload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tooldock/tooldock/internal/loader"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/viant/afs"
)

func writeManifest(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestReloadNamespaceRefusesExternal(t *testing.T) {
	toolsDir := t.TempDir()
	reg := registry.New(time.Second)
	l := loader.New(afs.New(), toolsDir, reg)
	e := New(toolsDir, l, func(namespace string) (bool, bool) { return true, true }, 0, nil)

	_, err := e.ReloadNamespace(context.Background(), "weather")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot_reload_external")
}

func TestReloadNamespaceNative(t *testing.T) {
	toolsDir := t.TempDir()
	nsDir := filepath.Join(toolsDir, "demo")
	writeManifest(t, nsDir, "echo.yaml", "name: echo\nhandler: core.echo\ninput_schema: {type: object}\n")

	reg := registry.New(time.Second)
	l := loader.New(afs.New(), toolsDir, reg)
	e := New(toolsDir, l, func(namespace string) (bool, bool) { return false, true }, 0, nil)

	res, err := e.ReloadNamespace(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Loaded)
}

func TestFanoutBroadcastBestEffort(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFanout([]string{srv.URL + "/admin/fastmcp/reload"}, false)
	f.Broadcast(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hits)
}

func TestFanoutDisabledUnderTest(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	f := NewFanout([]string{srv.URL}, true)
	f.Broadcast(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, hits)
}

// TestWatchReloadsNamespaceSubdirectory guards against a regression where
// Watch only watched toolsDir itself: fsnotify does not recurse, and the
// Loader's manifests live one level below that (toolsDir/<namespace>/...),
// so an edit inside an existing namespace directory must still trigger an
// automatic reload.
func TestWatchReloadsNamespaceSubdirectory(t *testing.T) {
	toolsDir := t.TempDir()
	nsDir := filepath.Join(toolsDir, "demo")
	writeManifest(t, nsDir, "echo.yaml", "name: echo\nhandler: core.echo\ninput_schema: {type: object}\n")

	reg := registry.New(time.Second)
	l := loader.New(afs.New(), toolsDir, reg)
	ctx := context.Background()
	_, err := l.ReloadAll(ctx)
	require.NoError(t, err)
	require.Len(t, reg.ListForNamespace("demo"), 1)

	e := New(toolsDir, l, func(namespace string) (bool, bool) { return false, true }, 0, nil)
	require.NoError(t, e.Watch(ctx))
	defer e.Stop()

	writeManifest(t, nsDir, "ping.yaml", "name: ping\nhandler: core.echo\ninput_schema: {type: object}\n")

	require.Eventually(t, func() bool {
		return len(reg.ListForNamespace("demo")) == 2
	}, 2*time.Second, 10*time.Millisecond, "expected a new ping.yaml in the demo namespace to trigger an automatic reload of it")
}

// TestWatchAddsWatchForNewNamespaceDirectory guards the other half of the
// same fix: a namespace directory created after Watch has already started
// must itself get a watch, or later edits inside it would never surface.
func TestWatchAddsWatchForNewNamespaceDirectory(t *testing.T) {
	toolsDir := t.TempDir()
	reg := registry.New(time.Second)
	l := loader.New(afs.New(), toolsDir, reg)
	ctx := context.Background()

	e := New(toolsDir, l, func(namespace string) (bool, bool) { return false, true }, 0, nil)
	require.NoError(t, e.Watch(ctx))
	defer e.Stop()

	nsDir := filepath.Join(toolsDir, "fresh")
	require.NoError(t, os.MkdirAll(nsDir, 0o755))
	time.Sleep(100 * time.Millisecond) // let the watch loop pick up and watch the new directory
	writeManifest(t, nsDir, "echo.yaml", "name: echo\nhandler: core.echo\ninput_schema: {type: object}\n")

	require.Eventually(t, func() bool {
		return len(reg.ListForNamespace("fresh")) == 1
	}, 2*time.Second, 10*time.Millisecond, "expected a namespace directory created after Watch started to pick up its own manifest")
}

func TestSiblingTargets(t *testing.T) {
	targets := SiblingTargets("127.0.0.1", []int{8006})
	assert.Equal(t, []string{
		"http://127.0.0.1:8006/admin/fastmcp/reload",
		"http://127.0.0.1:8006/admin/servers/reload",
	}, targets)
}
