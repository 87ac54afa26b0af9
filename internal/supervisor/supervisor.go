package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tooldock/tooldock/internal/mcpproxy"
	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// runningProcess tracks the live OS process backing a "running" record.
type runningProcess struct {
	proc    *process
	proxy   *mcpproxy.Proxy
	port    int
	started time.Time
}

// Supervisor bridges durable ExternalServerRecords to live subprocess or
// remote MCP providers (spec §4.3).
type Supervisor struct {
	dataDir         string
	store           *store.Store
	reg             *registry.Registry
	manageProcesses bool
	namespaceMaxCC  int64

	mu        sync.Mutex
	running   map[string]*runningProcess    // namespace -> live process/proxy
	sems      map[string]*semaphore.Weighted // namespace -> RPC concurrency bound
	recordMus map[string]*sync.Mutex         // namespace -> per-record serialization lock
}

// New constructs a Supervisor rooted at dataDir. manageProcesses=false
// makes Start refuse (read-only sidecar mode, spec §4.3.2); Stop does not
// check it.
func New(dataDir string, st *store.Store, reg *registry.Registry, manageProcesses bool) *Supervisor {
	return &Supervisor{
		dataDir:         dataDir,
		store:           st,
		reg:             reg,
		manageProcesses: manageProcesses,
		namespaceMaxCC:  namespaceMaxConcurrencyDefault,
		running:         map[string]*runningProcess{},
		sems:            map[string]*semaphore.Weighted{},
		recordMus:       map[string]*sync.Mutex{},
	}
}

func (s *Supervisor) serverDir(namespace string) string {
	return filepath.Join(s.dataDir, "external", "servers", namespace)
}

func (s *Supervisor) venvDir(namespace string) string {
	return filepath.Join(s.dataDir, "venvs", namespace)
}

func (s *Supervisor) logPath(namespace string) string {
	return filepath.Join(s.dataDir, "logs", namespace+".log")
}

// recordLock returns the per-namespace lock serializing state transitions
// (spec §5: "Supervisor state transitions per server_id are serialized
// under a per-record lock").
func (s *Supervisor) recordLock(namespace string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.recordMus[namespace]
	if !ok {
		l = &sync.Mutex{}
		s.recordMus[namespace] = l
	}
	return l
}

func (s *Supervisor) semaphoreFor(namespace string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.sems[namespace]
	if !ok {
		sem = semaphore.NewWeighted(s.namespaceMaxCC)
		s.sems[namespace] = sem
	}
	return sem
}

// Proxy returns the live proxy for namespace, if connected.
func (s *Supervisor) Proxy(namespace string) (*mcpproxy.Proxy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.running[namespace]
	if !ok {
		return nil, false
	}
	return rp.proxy, true
}

// CallTool acquires the namespace's concurrency bound and forwards to the
// live proxy (spec §4.3.2: "Each subprocess gets a bounded semaphore...
// requests beyond the bound queue").
func (s *Supervisor) CallTool(ctx context.Context, namespace, originalName string, args map[string]interface{}) (interface{}, error) {
	sem := s.semaphoreFor(namespace)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, toolerr.Wrap(toolerr.WorkerTimeout, err, "acquiring concurrency slot for %s", namespace)
	}
	defer sem.Release(1)

	proxy, ok := s.Proxy(namespace)
	if !ok {
		return nil, toolerr.New(toolerr.NotConnected, "namespace %s has no live proxy", namespace)
	}
	return proxy.CallTool(ctx, originalName, args)
}

// Delete stops (if running) the record and removes it plus its on-disk
// tree and venv. Both removals are confined to their respective base
// directories (spec §4.3.2).
func (s *Supervisor) Delete(ctx context.Context, namespace string) error {
	lock := s.recordLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	if err := s.stopLocked(ctx, namespace); err != nil {
		return err
	}
	if err := s.store.DeleteExternalServer(ctx, namespace); err != nil {
		return err
	}
	if err := removeConfined(s.dataDir, s.serverDir(namespace)); err != nil {
		return err
	}
	if err := removeConfined(s.dataDir, s.venvDir(namespace)); err != nil {
		return err
	}
	return nil
}

// removeConfined deletes target only if it is a descendant of base,
// refusing otherwise (spec §4.3.2: "MUST be confined to their respective
// base directories").
func removeConfined(base, target string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to delete %s: escapes base %s", target, base)
	}
	if _, err := os.Stat(absTarget); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(absTarget)
}
