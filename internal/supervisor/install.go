package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tooldock/tooldock/internal/store"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// Install materializes a runnable recipe for req and persists a record
// with status "stopped" (spec §4.3.1). It does not start the process.
func (s *Supervisor) Install(ctx context.Context, req InstallRequest) (store.ExternalServerRecord, error) {
	report := AssessSafety(req)
	if report.Blocked && !req.Override {
		return store.ExternalServerRecord{}, toolerr.New(toolerr.InstallFailed,
			"install blocked by safety check (risk=%s score=%d): %s", report.RiskLevel, report.RiskScore, report.Reason)
	}

	rec := store.ExternalServerRecord{
		Namespace:     req.Namespace,
		ServerName:    req.ServerName,
		InstallMethod: string(req.Method),
		AutoStart:     req.AutoStart,
		Status:        string(StateInstalling),
		EnvVars:       encodeEnv(req.Env),
		TransportType: "streamable_http",
	}

	var err error
	switch req.Method {
	case MethodPyPI:
		err = s.installPyPI(&rec, req)
	case MethodNPM:
		err = s.installNPM(ctx, &rec, req)
	case MethodOCI:
		err = s.installOCI(&rec, req)
	case MethodRepo:
		err = s.installRepo(ctx, &rec, req)
	case MethodManual:
		err = s.installManual(&rec, req)
	case MethodHTTP:
		err = s.installHTTP(&rec, req)
	default:
		err = toolerr.New(toolerr.InstallFailed, "unknown install method %q", req.Method)
	}

	if err != nil {
		rec.Status = string(StateError)
		rec.LastError = err.Error()
		_ = s.store.UpsertExternalServer(ctx, rec)
		return rec, err
	}

	rec.Status = string(StateStopped)
	if uerr := s.store.UpsertExternalServer(ctx, rec); uerr != nil {
		return rec, fmt.Errorf("persisting installed record: %w", uerr)
	}
	return rec, nil
}

// installPyPI uses `uvx <ident>[==ver]`, which needs no local virtualenv
// (spec §4.3.1: "new code SHOULD use uvx").
func (s *Supervisor) installPyPI(rec *store.ExternalServerRecord, req InstallRequest) error {
	ident := req.PackageIdent
	if req.PackageVersion != "" {
		ident = fmt.Sprintf("%s==%s", ident, req.PackageVersion)
	}
	rec.PackageInfo = req.PackageIdent
	rec.Version = req.PackageVersion
	rec.PackageType = "pypi"
	rec.StartupCommand = "uvx"
	rec.CommandArgs = encodeArgs([]string{ident})
	return nil
}

// installNPM uses `npx -y <ident>[@ver]`, probing the npm registry first
// and rejecting with package_not_found if absent (spec §4.3.1).
func (s *Supervisor) installNPM(ctx context.Context, rec *store.ExternalServerRecord, req InstallRequest) error {
	if err := probeNPMRegistry(ctx, req.PackageIdent); err != nil {
		return err
	}
	ident := req.PackageIdent
	if req.PackageVersion != "" {
		ident = fmt.Sprintf("%s@%s", ident, req.PackageVersion)
	}
	rec.PackageInfo = req.PackageIdent
	rec.Version = req.PackageVersion
	rec.PackageType = "npm"
	rec.StartupCommand = "npx"
	rec.CommandArgs = encodeArgs([]string{"-y", ident})
	return nil
}

func probeNPMRegistry(ctx context.Context, ident string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := "https://registry.npmjs.org/" + strings.TrimPrefix(ident, "/")
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return toolerr.Wrap(toolerr.PackageNotFound, err, "building npm registry probe for %s", ident)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return toolerr.Wrap(toolerr.PackageNotFound, err, "probing npm registry for %s", ident)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return toolerr.New(toolerr.PackageNotFound, "npm package %q not found", ident)
	}
	if resp.StatusCode >= 400 {
		return toolerr.New(toolerr.PackageNotFound, "npm registry returned %d for %q", resp.StatusCode, ident)
	}
	return nil
}

// installOCI uses `docker run -i --rm <ident>` (spec §4.3.1).
func (s *Supervisor) installOCI(rec *store.ExternalServerRecord, req InstallRequest) error {
	rec.PackageInfo = req.PackageIdent
	rec.Version = req.PackageVersion
	rec.PackageType = "oci"
	rec.StartupCommand = "docker"
	rec.CommandArgs = encodeArgs([]string{"run", "-i", "--rm", req.PackageIdent})
	return nil
}

// installRepo shallow-clones repo_url under
// <data_dir>/external/servers/<namespace>/repo and records `python
// <entrypoint>` as the recipe, auto-detecting a __main__-bearing file
// when entrypoint is not supplied (spec §4.3.1).
func (s *Supervisor) installRepo(ctx context.Context, rec *store.ExternalServerRecord, req InstallRequest) error {
	dest := filepath.Join(s.serverDir(req.Namespace), "repo")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return toolerr.Wrap(toolerr.InstallFailed, err, "creating server dir for %s", req.Namespace)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", req.RepoURL, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return toolerr.Wrap(toolerr.InstallFailed, err, "cloning %s: %s", req.RepoURL, strings.TrimSpace(string(out)))
	}

	entrypoint := req.Entrypoint
	if entrypoint == "" {
		found, err := detectEntrypoint(dest)
		if err != nil {
			return toolerr.Wrap(toolerr.InstallFailed, err, "auto-detecting entrypoint under %s", dest)
		}
		entrypoint = found
	}

	rec.RepoURL = req.RepoURL
	rec.Entrypoint = entrypoint
	rec.PackageType = "repo"
	rec.StartupCommand = "python"
	rec.CommandArgs = encodeArgs([]string{entrypoint})
	return nil
}

// detectEntrypoint scans dest for a file containing a `__main__` guard,
// returning the first match in lexical order.
func detectEntrypoint(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".py") {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(dest, e.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(string(contents), `__name__ == "__main__"`) {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("no __main__-bearing entrypoint found under %s", dest)
}

// installManual records the operator-supplied command/args/env verbatim
// (spec §4.3.1). Unlike the package/repo methods, which are always spawned
// wrapped in FASTMCP_* env vars and addressed over a local HTTP port, a
// manual command is dialed directly over its own stdin/stdout: the
// operator supplies a ready-made MCP binary, not a bare tool script that
// needs a transport imposed on it.
func (s *Supervisor) installManual(rec *store.ExternalServerRecord, req InstallRequest) error {
	if strings.TrimSpace(req.Command) == "" {
		return toolerr.New(toolerr.InstallFailed, "manual install requires a command")
	}
	rec.PackageType = "manual"
	rec.StartupCommand = req.Command
	rec.CommandArgs = encodeArgs(req.Args)
	rec.TransportType = "stdio"
	return nil
}

// installHTTP points directly at a remote MCP endpoint; no process is
// spawned (spec §4.3.1).
func (s *Supervisor) installHTTP(rec *store.ExternalServerRecord, req InstallRequest) error {
	if strings.TrimSpace(req.ServerURL) == "" {
		return toolerr.New(toolerr.InstallFailed, "http install requires server_url")
	}
	rec.PackageType = "http"
	rec.ServerURL = req.ServerURL
	return nil
}

// encodeArgs JSON-encodes args so CommandArgs round-trips exactly,
// including entries with internal whitespace or an empty string — a
// space-joined string loses both on the way back out (strings.Fields
// splits on whitespace and drops empty tokens).
func encodeArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeEnv(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	b, err := json.Marshal(env)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeEnv(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
