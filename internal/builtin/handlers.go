// Package builtin holds the compiled-in native tool handlers that a tool
// manifest (internal/loader) may reference by id. ToolDock has no runtime
// equivalent of dynamically importing arbitrary source files, so native
// tools name one of these ids instead of shipping their own code (see
// SPEC_FULL.md §4.2 and DESIGN.md for the re-architecture rationale).
package builtin

import (
	"context"
	"fmt"
	"time"
)

// Handler matches registry.Handler's shape without importing the registry
// package, keeping builtin dependency-free and reusable from tests.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Registry maps a manifest's "handler" id to its implementation.
var Registry = map[string]Handler{
	"core.echo":     echo,
	"core.greet":    greet,
	"core.time_now": timeNow,
}

// Lookup resolves a handler id, reporting whether it exists.
func Lookup(id string) (Handler, bool) {
	h, ok := Registry[id]
	return h, ok
}

func echo(_ context.Context, args map[string]interface{}) (interface{}, error) {
	text, _ := args["text"].(string)
	return text, nil
}

func greet(_ context.Context, args map[string]interface{}) (interface{}, error) {
	name, _ := args["name"].(string)
	if name == "" {
		name = "world"
	}
	return fmt.Sprintf("Hello, %s!", name), nil
}

func timeNow(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}
