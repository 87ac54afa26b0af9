package supervisor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tooldock/tooldock/internal/mcpproxy"
	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// process wraps the spawned *exec.Cmd and its log file.
type process struct {
	cmd     *exec.Cmd
	logFile *os.File
}

// portForNamespace deterministically assigns a loopback port (spec
// §4.3.2: "30000 + hash(namespace) mod 20000").
func portForNamespace(namespace string) int {
	sum := sha256.Sum256([]byte(namespace))
	h := binary.BigEndian.Uint32(sum[:4])
	return 30000 + int(h%20000)
}

// freePort finds any available loopback TCP port, used as a fallback
// when the deterministic port is already occupied.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func portAvailable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Start transitions a record stopped -> starting -> running (spec
// §4.3.2). It refuses when the supervisor is in read-only (sidecar) mode.
func (s *Supervisor) Start(ctx context.Context, namespace string) error {
	if !s.manageProcesses {
		return toolerr.New(toolerr.InstallFailed, "supervisor is read-only (manage_processes=false)")
	}

	lock := s.recordLock(namespace)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.GetExternalServer(ctx, namespace)
	if err != nil {
		return toolerr.Wrap(toolerr.NamespaceNotFound, err, "loading record for %s", namespace)
	}

	if rec.PackageType == "http" {
		return s.startHTTPLocked(ctx, rec)
	}
	if rec.TransportType == "stdio" {
		return s.startStdioLocked(ctx, rec)
	}
	return s.startSpawnedLocked(ctx, rec)
}

// startStdioLocked dials a manual install's command directly over its own
// stdin/stdout: the MCP client library owns the subprocess, so there is no
// loopback port to assign and no PID for crash detection to track (spec
// §4.3.2's crash-demotion sweep skips HTTP-backed records the same way).
func (s *Supervisor) startStdioLocked(ctx context.Context, rec store.ExternalServerRecord) error {
	if err := s.store.UpdateStatus(ctx, rec.Namespace, string(StateStarting), 0, ""); err != nil {
		return err
	}

	proxy, err := mcpproxy.DialStdio(rec.Namespace, rec.StartupCommand, decodeArgs(rec.CommandArgs))
	if err != nil {
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}
	if err := proxy.Connect(ctx); err != nil {
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}

	s.mu.Lock()
	s.running[rec.Namespace] = &runningProcess{proxy: proxy, started: time.Now()}
	s.mu.Unlock()

	if err := s.publish(rec.Namespace, proxy); err != nil {
		return err
	}
	return s.store.UpdateStatus(ctx, rec.Namespace, string(StateRunning), 0, "")
}

// startHTTPLocked wires a proxy to an already-running remote endpoint;
// no process is spawned (spec §4.3.1 "http").
func (s *Supervisor) startHTTPLocked(ctx context.Context, rec store.ExternalServerRecord) error {
	proxy, err := mcpproxy.DialHTTP(rec.Namespace, rec.ServerURL)
	if err != nil {
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}
	if err := proxy.Connect(ctx); err != nil {
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}
	s.mu.Lock()
	s.running[rec.Namespace] = &runningProcess{proxy: proxy, started: time.Now()}
	s.mu.Unlock()

	if err := s.publish(rec.Namespace, proxy); err != nil {
		return err
	}
	return s.store.UpdateStatus(ctx, rec.Namespace, string(StateRunning), 0, "")
}

func (s *Supervisor) startSpawnedLocked(ctx context.Context, rec store.ExternalServerRecord) error {
	if err := s.store.UpdateStatus(ctx, rec.Namespace, string(StateStarting), 0, ""); err != nil {
		return err
	}

	port := portForNamespace(rec.Namespace)
	if !portAvailable(port) {
		fallback, err := freePort()
		if err != nil {
			return s.markErrorLocked(ctx, rec.Namespace, fmt.Errorf("no free port available: %w", err))
		}
		port = fallback
	}

	env := buildEnv(rec, port)
	args := decodeArgs(rec.CommandArgs)

	logFile, err := openLogFile(s.logPath(rec.Namespace))
	if err != nil {
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}

	cmd := exec.Command(rec.StartupCommand, args...)
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if rec.VenvPath != "" {
		cmd.Dir = rec.VenvPath
	}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return s.markErrorLocked(ctx, rec.Namespace, fmt.Errorf("spawning %s: %w", rec.StartupCommand, err))
	}

	proc := &process{cmd: cmd, logFile: logFile}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d/mcp", port)

	proxy, err := mcpproxy.DialHTTP(rec.Namespace, serverURL)
	if err != nil {
		_ = killProcess(proc)
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}

	if err := waitUntilReady(ctx, proc, proxy); err != nil {
		_ = killProcess(proc)
		return s.markErrorLocked(ctx, rec.Namespace, err)
	}

	s.mu.Lock()
	s.running[rec.Namespace] = &runningProcess{proc: proc, proxy: proxy, port: port, started: time.Now()}
	s.mu.Unlock()

	if err := s.publish(rec.Namespace, proxy); err != nil {
		return err
	}

	rec.Port = port
	rec.ServerURL = serverURL
	if err := s.store.UpsertExternalServer(ctx, rec); err != nil {
		return err
	}
	return s.store.UpdateStatus(ctx, rec.Namespace, string(StateRunning), cmd.Process.Pid, "")
}

// buildEnv inherits the host process environment, overlays the record's
// own env_vars, and sets the FASTMCP_* variables the spawned provider
// reads to bind its own streamable-HTTP listener (spec §4.3.2).
func buildEnv(rec store.ExternalServerRecord, port int) []string {
	env := os.Environ()
	for k, v := range decodeEnv(rec.EnvVars) {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"FASTMCP_HOST=127.0.0.1",
		fmt.Sprintf("FASTMCP_PORT=%d", port),
		"FASTMCP_STREAMABLE_HTTP_PATH=/mcp",
	)
	return env
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// waitUntilReady polls initialize+tools/list up to readinessAttempts
// times (spec §4.3.2).
func waitUntilReady(ctx context.Context, proc *process, proxy *mcpproxy.Proxy) error {
	var lastErr error
	for attempt := 0; attempt < readinessAttempts; attempt++ {
		if !processAlive(proc) {
			return toolerr.New(toolerr.WorkerCrashed, "worker exited before becoming ready")
		}
		probeCtx, cancel := context.WithTimeout(ctx, readinessInterval)
		err := proxy.Connect(probeCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(readinessInterval)
	}
	return toolerr.Wrap(toolerr.WorkerTimeout, lastErr, "worker did not become ready within %d attempts", readinessAttempts)
}

func processAlive(p *process) bool {
	if p == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func killProcess(p *process) error {
	if p == nil || p.cmd.Process == nil {
		return nil
	}
	_ = p.cmd.Process.Kill()
	_, _ = p.cmd.Process.Wait()
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
	return nil
}

func (s *Supervisor) markErrorLocked(ctx context.Context, namespace string, cause error) error {
	_ = s.store.UpdateStatus(ctx, namespace, string(StateError), 0, cause.Error())
	return cause
}

// Stop sends a graceful terminate, waiting up to stopGraceTimeout before
// escalating to kill, and unpublishes the namespace's tools (spec §4.3.2).
func (s *Supervisor) Stop(ctx context.Context, namespace string) error {
	lock := s.recordLock(namespace)
	lock.Lock()
	defer lock.Unlock()
	return s.stopLocked(ctx, namespace)
}

func (s *Supervisor) stopLocked(ctx context.Context, namespace string) error {
	s.mu.Lock()
	rp, ok := s.running[namespace]
	delete(s.running, namespace)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	s.unpublish(namespace)
	if rp.proxy != nil {
		_ = rp.proxy.Disconnect()
	}
	if rp.proc != nil {
		terminateGracefully(rp.proc)
	}
	return s.store.UpdateStatus(ctx, namespace, string(StateStopped), 0, "")
}

func terminateGracefully(p *process) {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = p.cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGraceTimeout):
		_ = p.cmd.Process.Kill()
		<-done
	}
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
}

// DetectCrashes demotes any "running" record whose PID is no longer
// alive to "stopped" (spec §4.3.2: "A record marked running whose PID is
// no longer alive is demoted to stopped on the next sync tick").
func (s *Supervisor) DetectCrashes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	candidates := make(map[string]*runningProcess, len(s.running))
	for ns, rp := range s.running {
		candidates[ns] = rp
	}
	s.mu.Unlock()

	var demoted []string
	for ns, rp := range candidates {
		if rp.proc == nil {
			continue // HTTP-backed (no spawned process to crash-check)
		}
		if processAlive(rp.proc) {
			continue
		}
		lock := s.recordLock(ns)
		lock.Lock()
		err := s.stopLocked(ctx, ns)
		lock.Unlock()
		if err != nil {
			return demoted, err
		}
		demoted = append(demoted, ns)
	}
	return demoted, nil
}
