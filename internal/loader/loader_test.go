package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/viant/afs"
)

func writeManifest(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestLoadNamespace(t *testing.T) {
	toolsDir := t.TempDir()
	nsDir := filepath.Join(toolsDir, "demo")
	writeManifest(t, nsDir, "echo.yaml", `
name: echo
description: echoes text
handler: core.echo
input_schema:
  type: object
  additionalProperties: false
  properties:
    text: {type: string}
  required: [text]
`)
	writeManifest(t, nsDir, "_ignored.yaml", `name: ignored
handler: core.echo`)
	writeManifest(t, nsDir, "broken.yaml", `name: broken
handler: core.nonexistent`)

	reg := registry.New(time.Second)
	l := New(afs.New(), toolsDir, reg)

	n, err := l.LoadNamespace(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, reg.ToolInNamespace("demo", "echo"))
}

func TestLoadNamespaceMissingDir(t *testing.T) {
	reg := registry.New(time.Second)
	l := New(afs.New(), t.TempDir(), reg)
	_, err := l.LoadNamespace(context.Background(), "nope")
	require.Error(t, err)
}

func TestReloadNamespace(t *testing.T) {
	toolsDir := t.TempDir()
	nsDir := filepath.Join(toolsDir, "demo")
	writeManifest(t, nsDir, "echo.yaml", `
name: echo
handler: core.echo
input_schema: {type: object}
`)

	reg := registry.New(time.Second)
	l := New(afs.New(), toolsDir, reg)
	_, err := l.LoadNamespace(context.Background(), "demo")
	require.NoError(t, err)

	res := l.ReloadNamespace(context.Background(), "demo")
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Unloaded)
	assert.Equal(t, 1, res.Loaded)
}

func TestListNamespaces(t *testing.T) {
	toolsDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(toolsDir, "alpha"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(toolsDir, "beta"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(toolsDir, "_hidden"), 0o755))

	l := New(afs.New(), toolsDir, registry.New(time.Second))
	ns, err := l.ListNamespaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ns)
}
