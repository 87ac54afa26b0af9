package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"
)

// ServerEntry mirrors the per-namespace fields of spec §3.4 as persisted in
// <data_dir>/external/config.yaml.
type ServerEntry struct {
	Namespace      string            `yaml:"namespace" json:"namespace"`
	ServerName     string            `yaml:"server_name" json:"server_name"`
	InstallMethod  string            `yaml:"install_method" json:"install_method"`
	PackageInfo    string            `yaml:"package_info,omitempty" json:"package_info,omitempty"`
	RepoURL        string            `yaml:"repo_url,omitempty" json:"repo_url,omitempty"`
	Entrypoint     string            `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	StartupCommand string            `yaml:"startup_command,omitempty" json:"startup_command,omitempty"`
	CommandArgs    []string          `yaml:"command_args,omitempty" json:"command_args,omitempty"`
	EnvVars        map[string]string `yaml:"env_vars,omitempty" json:"env_vars,omitempty"`
	TransportType  string            `yaml:"transport_type,omitempty" json:"transport_type,omitempty"`
	ServerURL      string            `yaml:"server_url,omitempty" json:"server_url,omitempty"`
	AutoStart      bool              `yaml:"auto_start" json:"auto_start"`
}

// Document is the full shape of external/config.yaml: one ServerEntry per
// namespace, keyed by namespace.
type Document struct {
	Servers map[string]ServerEntry `yaml:"servers"`
}

// ExternalConfig persists Document to <data_dir>/external/config.yaml
// using an afs.Service so the same code path works against local disk
// or a remote object store.
type ExternalConfig struct {
	fs   afs.Service
	path string
}

// NewExternalConfig binds an ExternalConfig to <dataDir>/external/config.yaml.
func NewExternalConfig(fs afs.Service, dataDir string) *ExternalConfig {
	return &ExternalConfig{fs: fs, path: dataDir + "/external/config.yaml"}
}

// Load reads and decodes the document. A missing file is not an error: it
// is treated as an empty document so a fresh data_dir boots cleanly.
func (c *ExternalConfig) Load(ctx context.Context) (*Document, error) {
	exists, err := c.fs.Exists(ctx, c.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Document{Servers: map[string]ServerEntry{}}, nil
	}
	data, err := c.fs.DownloadWithURL(ctx, c.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", c.path, err)
	}
	if doc.Servers == nil {
		doc.Servers = map[string]ServerEntry{}
	}
	return &doc, nil
}

// Save serializes doc back to disk.
func (c *ExternalConfig) Save(ctx context.Context, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return c.fs.Upload(ctx, c.path, file.DefaultFileOsMode, strings.NewReader(string(data)))
}

// ResolveEnv substitutes ${VAR} references in v from the process
// environment, as required for env values read from config.yaml (spec
// §4.4 "Environment resolution", §4.10).
func ResolveEnv(v string) string {
	return envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// secretKeyPattern matches config keys that must be masked on serialization
// (spec §4.10): token, secret, password, key, credential, or a
// "connection...string"-shaped key.
var secretKeyPattern = regexp.MustCompile(`(?i)(token|secret|password|key|credential|connection.*string)`)

const maskedValue = "***MASKED***"

// MaskEnvVars returns a copy of env with secret-looking values replaced by
// "***MASKED***", except values that are themselves a literal ${VAR}
// reference (those are preserved verbatim so the operator can still see
// the indirection, per spec §4.10).
func MaskEnvVars(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if secretKeyPattern.MatchString(k) && !isEnvVarReference(v) {
			out[k] = maskedValue
		} else {
			out[k] = v
		}
	}
	return out
}

func isEnvVarReference(v string) bool {
	trimmed := strings.TrimSpace(v)
	return envVarPattern.MatchString(trimmed) && envVarPattern.ReplaceAllString(trimmed, "") == ""
}

// Masked returns a copy of e with EnvVars masked for admin-read responses.
func (e ServerEntry) Masked() ServerEntry {
	m := e
	m.EnvVars = MaskEnvVars(e.EnvVars)
	return m
}
