// Package hotreload implements the Hot-Reload Engine (spec §4.8):
// namespace re-scan without restart, driven either by an explicit admin
// call or by an fsnotify directory watch, plus best-effort cross-process
// fan-out, under one contract scoped to ToolDock's tool namespaces.
package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tooldock/tooldock/internal/loader"
	"github.com/tooldock/tooldock/internal/registry"
)

// NamespaceKind tells the engine whether a namespace is native (reloadable
// from disk) or external (owned by the supervisor; reload is refused).
type NamespaceKind func(namespace string) (external bool, known bool)

// Engine drives the Loader's reload operations and watches toolsDir for
// changes, debouncing rapid-fire events per namespace.
type Engine struct {
	toolsDir string
	loader   *loader.Loader
	kind     NamespaceKind
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu         sync.Mutex
	lastReload map[string]time.Time

	fanout *Fanout
}

// New constructs an Engine. kind may be nil, in which case every namespace
// is treated as native (useful for tests / single-process setups without
// external servers configured).
func New(toolsDir string, l *loader.Loader, kind NamespaceKind, debounce time.Duration, fanout *Fanout) *Engine {
	return &Engine{
		toolsDir:   toolsDir,
		loader:     l,
		kind:       kind,
		debounce:   debounce,
		lastReload: map[string]time.Time{},
		fanout:     fanout,
	}
}

// ReloadNamespace implements reload_namespace(ns) (spec §4.8): refuses
// external namespaces, then delegates to the Loader.
func (e *Engine) ReloadNamespace(ctx context.Context, namespace string) (loader.Result, error) {
	if e.kind != nil {
		if external, known := e.kind(namespace); known && external {
			return loader.Result{Namespace: namespace}, fmt.Errorf("cannot_reload_external: %s is an external namespace", namespace)
		}
	}
	res := e.loader.ReloadNamespace(ctx, namespace)
	if e.fanout != nil {
		e.fanout.Broadcast(ctx)
	}
	return res, nil
}

// ReloadAll applies ReloadNamespace to every native namespace.
func (e *Engine) ReloadAll(ctx context.Context) ([]loader.Result, error) {
	namespaces, err := e.loader.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]loader.Result, 0, len(namespaces))
	for _, ns := range namespaces {
		if e.kind != nil {
			if external, known := e.kind(ns); known && external {
				continue
			}
		}
		results = append(results, e.loader.ReloadNamespace(ctx, ns))
	}
	if e.fanout != nil {
		e.fanout.Broadcast(ctx)
	}
	return results, nil
}

// Watch starts an fsnotify watch over toolsDir and every namespace
// subdirectory it currently holds, triggering debounced reloads of
// whichever namespace directory changed. fsnotify does not watch
// recursively, and the Loader's manifests live two levels down
// (<tools_dir>/<namespace>/<file>.yaml), so each namespace directory
// needs its own explicit watch; Watch adds one for each directory
// found at startup, and the event loop adds one for any namespace
// directory created afterward. It returns immediately; call Stop to
// tear down.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hotreload: creating watcher: %w", err)
	}
	if err := w.Add(e.toolsDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("hotreload: watching %s: %w", e.toolsDir, err)
	}
	e.watcher = w

	entries, err := os.ReadDir(e.toolsDir)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("hotreload: listing %s: %w", e.toolsDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			e.addNamespaceWatch(filepath.Join(e.toolsDir, entry.Name()))
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.loopWatch(watchCtx)
	return nil
}

// addNamespaceWatch adds a watch for a namespace directory discovered
// either at startup or via a Create event under toolsDir. Failures are
// logged rather than fatal: a namespace directory removed between
// discovery and Add, for instance, should not take the whole watch down.
func (e *Engine) addNamespaceWatch(dir string) {
	if err := e.watcher.Add(dir); err != nil {
		slog.Warn("hotreload: watching namespace directory failed", "dir", dir, "error", err)
	}
}

// Stop tears down the watcher, if any.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.watcher != nil {
		_ = e.watcher.Close()
	}
}

func (e *Engine) loopWatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 && e.isNewNamespaceDir(ev.Name) {
				e.addNamespaceWatch(ev.Name)
				continue
			}
			ns := e.namespaceFromEvent(ev.Name)
			if ns == "" {
				continue
			}
			if e.shouldSkipDebounce(ns) {
				continue
			}
			_, _ = e.ReloadNamespace(ctx, ns)
		case _, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (e *Engine) namespaceFromEvent(path string) string {
	rel, err := filepath.Rel(e.toolsDir, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// isNewNamespaceDir reports whether path is a directory created directly
// under toolsDir, i.e. a new namespace that needs its own watch before
// file-level events inside it will ever reach fsnotify.
func (e *Engine) isNewNamespaceDir(path string) bool {
	rel, err := filepath.Rel(e.toolsDir, path)
	if err != nil {
		return false
	}
	if len(strings.Split(filepath.ToSlash(rel), "/")) != 1 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (e *Engine) shouldSkipDebounce(namespace string) bool {
	if e.debounce <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastReload[namespace]; ok && time.Since(last) < e.debounce {
		return true
	}
	e.lastReload[namespace] = time.Now()
	return false
}

// KindFromRegistry adapts a registry.Registry into a NamespaceKind that
// reports every namespace it currently holds entries for as native (never
// external) — suitable when the caller has no external namespaces to
// distinguish, e.g. in isolated unit tests.
func KindFromRegistry(reg *registry.Registry) NamespaceKind {
	return func(namespace string) (bool, bool) {
		return false, reg.HasNamespace(namespace)
	}
}
