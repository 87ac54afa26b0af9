package tooldock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jessevdk/go-flags"

	"github.com/tooldock/tooldock/internal/config"
)

// ServersCmd groups the external-server lifecycle sub-commands, all of
// which are thin HTTP clients against the running process's admin
// frontend: ToolDock's server state lives in the database, so these
// sub-commands call the admin API rather than editing a local file.
type ServersCmd struct {
	List    *ServersListCmd    `command:"list" description:"List installed external servers"`
	Install *ServersInstallCmd `command:"install" description:"Install an external MCP server"`
	Start   *ServersStartCmd   `command:"start" description:"Start an installed external server"`
	Stop    *ServersStopCmd    `command:"stop" description:"Stop a running external server"`
	Delete  *ServersDeleteCmd  `command:"delete" description:"Delete an installed external server"`
}

func (c *ServersCmd) Execute(_ []string) error {
	return flags.ErrHelp
}

func adminClient(method, addr, path string, body interface{}) (map[string]interface{}, int, error) {
	cfg := config.Load()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, addr+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out, resp.StatusCode, nil
}

// ServersListCmd lists installed external servers.
type ServersListCmd struct {
	AdminAddr string `long:"admin-addr" default:"http://127.0.0.1:8080"`
}

func (c *ServersListCmd) Execute(_ []string) error {
	body, status, err := adminClient(http.MethodGet, c.AdminAddr, "/api/admin/servers", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list failed: %v (status %d)", body, status)
	}
	fmt.Printf("%v\n", body["servers"])
	return nil
}

// ServersInstallCmd installs an external server by namespace + package
// identity (spec §4.3.1).
type ServersInstallCmd struct {
	Namespace    string `long:"namespace" required:"true"`
	ServerName   string `long:"server-name" required:"true"`
	Method       string `long:"method" description:"pypi|npm|oci|repo|manual|http" required:"true"`
	PackageIdent string `long:"package" description:"package identifier for pypi/npm/oci"`
	RepoURL      string `long:"repo-url"`
	ServerURL    string `long:"server-url"`
	AutoStart    bool   `long:"auto-start"`
	Override     bool   `long:"override" description:"bypass a blocked safety verdict"`
	AdminAddr    string `long:"admin-addr" default:"http://127.0.0.1:8080"`
}

func (c *ServersInstallCmd) Execute(_ []string) error {
	req := map[string]interface{}{
		"Namespace":    c.Namespace,
		"ServerName":   c.ServerName,
		"Method":       c.Method,
		"PackageIdent": c.PackageIdent,
		"RepoURL":      c.RepoURL,
		"ServerURL":    c.ServerURL,
		"AutoStart":    c.AutoStart,
		"Override":     c.Override,
	}
	body, status, err := adminClient(http.MethodPost, c.AdminAddr, "/api/admin/servers", req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("install failed: %v (status %d)", body, status)
	}
	fmt.Printf("%v\n", body)
	return nil
}

// ServersStartCmd starts an installed external server.
type ServersStartCmd struct {
	Args struct {
		Namespace string `positional-arg-name:"namespace" required:"true"`
	} `positional-args:"yes"`
	AdminAddr string `long:"admin-addr" default:"http://127.0.0.1:8080"`
}

func (c *ServersStartCmd) Execute(_ []string) error {
	body, status, err := adminClient(http.MethodPost, c.AdminAddr, "/api/admin/servers/"+c.Args.Namespace+"/start", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("start failed: %v (status %d)", body, status)
	}
	fmt.Printf("%v\n", body)
	return nil
}

// ServersStopCmd stops a running external server.
type ServersStopCmd struct {
	Args struct {
		Namespace string `positional-arg-name:"namespace" required:"true"`
	} `positional-args:"yes"`
	AdminAddr string `long:"admin-addr" default:"http://127.0.0.1:8080"`
}

func (c *ServersStopCmd) Execute(_ []string) error {
	body, status, err := adminClient(http.MethodPost, c.AdminAddr, "/api/admin/servers/"+c.Args.Namespace+"/stop", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("stop failed: %v (status %d)", body, status)
	}
	fmt.Printf("%v\n", body)
	return nil
}

// ServersDeleteCmd removes an installed external server entirely.
type ServersDeleteCmd struct {
	Args struct {
		Namespace string `positional-arg-name:"namespace" required:"true"`
	} `positional-args:"yes"`
	AdminAddr string `long:"admin-addr" default:"http://127.0.0.1:8080"`
}

func (c *ServersDeleteCmd) Execute(_ []string) error {
	_, status, err := adminClient(http.MethodDelete, c.AdminAddr, "/api/admin/servers/"+c.Args.Namespace, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("delete failed (status %d)", status)
	}
	fmt.Printf("deleted %s\n", c.Args.Namespace)
	return nil
}
