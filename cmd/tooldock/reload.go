package tooldock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tooldock/tooldock/internal/config"
)

// ReloadCmd calls the running process's admin reload endpoint (spec
// §4.8): bare `reload` reloads every native namespace, `reload <ns>`
// reloads just one.
type ReloadCmd struct {
	Args struct {
		Namespace string `positional-arg-name:"namespace"`
	} `positional-args:"yes"`
	AdminAddr string `long:"admin-addr" description:"admin frontend base URL" default:"http://127.0.0.1:8080"`
}

func (c *ReloadCmd) Execute(_ []string) error {
	cfg := config.Load()
	path := "/api/admin/reload"
	if ns := strings.TrimSpace(c.Args.Namespace); ns != "" {
		path += "/" + ns
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.AdminAddr+path, nil)
	if err != nil {
		return err
	}
	if cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reload request failed: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload failed: %v (status %d)", body, resp.StatusCode)
	}
	fmt.Printf("%v\n", body)
	return nil
}
