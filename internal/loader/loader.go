// Package loader scans a directory of namespaces containing YAML tool
// manifests and registers the resulting ToolDefinitions into a registry
// (spec §4.2). Native tool "source" is a compiled-in handler id resolved
// against internal/builtin rather than a dynamically imported file — Go
// has no runtime equivalent of importing arbitrary source, so each
// manifest references a handler id instead of naming a source file
// (see SPEC_FULL.md §4.2).
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tooldock/tooldock/internal/builtin"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// filenamePattern matches a valid manifest filename; files starting with
// "_" are ignored (spec §4.2).
var filenamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*\.yaml$`)

// Manifest is the on-disk shape of one native tool definition.
type Manifest struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Handler     string                 `yaml:"handler"`
	InputSchema map[string]interface{} `yaml:"input_schema"`
}

// Result reports what a (re)load pass did, mirroring spec §4.8's
// {unloaded, loaded, success, error} reload contract.
type Result struct {
	Namespace string `json:"namespace"`
	Unloaded  int    `json:"unloaded"`
	Loaded    int    `json:"loaded"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Loader scans toolsDir/<namespace>/*.yaml and registers entries into reg.
type Loader struct {
	fs       afs.Service
	toolsDir string
	reg      *registry.Registry
}

// New constructs a Loader bound to toolsDir and reg.
func New(fs afs.Service, toolsDir string, reg *registry.Registry) *Loader {
	return &Loader{fs: fs, toolsDir: toolsDir, reg: reg}
}

// LoadNamespace scans a single namespace directory, registering every
// valid manifest. Broken files are skipped, never aborting their
// siblings (spec §4.2). Returns the number of tools registered.
func (l *Loader) LoadNamespace(ctx context.Context, namespace string) (int, error) {
	dir := filepath.Join(l.toolsDir, namespace)
	exists, err := l.fs.Exists(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("checking %s: %w", dir, err)
	}
	if !exists {
		return 0, fmt.Errorf("namespace directory %s does not exist", dir)
	}

	objs, err := l.fs.List(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, o := range objs {
		if o.IsDir() {
			continue
		}
		names = append(names, filepath.Base(o.Name()))
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if !filenamePattern.MatchString(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := l.loadFile(ctx, namespace, path); err != nil {
			// A single broken manifest must not abort its siblings (spec §4.2).
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (l *Loader) loadFile(ctx context.Context, namespace, path string) error {
	data, err := l.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	if m.Name == "" || m.Handler == "" {
		return fmt.Errorf("manifest %s missing name or handler", path)
	}
	handler, ok := builtin.Lookup(m.Handler)
	if !ok {
		return fmt.Errorf("manifest %s references unknown handler %q", path, m.Handler)
	}
	adapted := registry.Handler(handler)
	return l.reg.Register(namespace, m.Name, m.Description, m.InputSchema, adapted)
}

// ReloadNamespace implements spec §4.8's reload_namespace(ns): unregister
// every currently-registered tool in ns, then re-scan and re-register.
// ns must be a native (non-external) namespace; callers are responsible
// for refusing external namespaces before calling this (the loader has no
// notion of "external").
func (l *Loader) ReloadNamespace(ctx context.Context, namespace string) Result {
	res := Result{Namespace: namespace}
	res.Unloaded = l.reg.UnregisterNamespace(namespace)

	loaded, err := l.LoadNamespace(ctx, namespace)
	if err != nil {
		res.Error = err.Error()
		res.Success = false
		return res
	}
	res.Loaded = loaded
	res.Success = true
	return res
}

// ListNamespaces returns the namespace directory names under toolsDir,
// excluding those starting with "_".
func (l *Loader) ListNamespaces(ctx context.Context) ([]string, error) {
	objs, err := l.fs.List(ctx, l.toolsDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", l.toolsDir, err)
	}
	var out []string
	for _, o := range objs {
		if !o.IsDir() {
			continue
		}
		name := filepath.Base(o.Name())
		if strings.HasPrefix(name, "_") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ReloadAll applies ReloadNamespace to every native namespace (spec
// §4.8 reload_all()).
func (l *Loader) ReloadAll(ctx context.Context) ([]Result, error) {
	namespaces, err := l.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(namespaces))
	for _, ns := range namespaces {
		results = append(results, l.ReloadNamespace(ctx, ns))
	}
	return results, nil
}
