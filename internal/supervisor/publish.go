package supervisor

import (
	mcpschema "github.com/viant/mcp-protocol/schema"

	"github.com/tooldock/tooldock/internal/mcpproxy"
	"github.com/tooldock/tooldock/internal/toolerr"
)

// publish registers every tool reported by proxy under namespace (spec
// §4.3.3: "On transition to running ... for each reported tool registers
// an ExternalToolEntry").
func (s *Supervisor) publish(namespace string, proxy *mcpproxy.Proxy) error {
	for _, t := range proxy.Tools() {
		schema := toolInputSchema(t)
		if err := s.reg.RegisterExternal(namespace, t.Name, toolDescription(t), schema, namespace, proxy); err != nil {
			return toolerr.Wrap(toolerr.DuplicateTool, err, "publishing %s from %s", t.Name, namespace)
		}
	}
	return nil
}

// unpublish removes every entry this namespace's server owns (spec
// §4.3.3: "On transition out of running, the supervisor unregisters all
// entries owned by that server_id").
func (s *Supervisor) unpublish(namespace string) {
	s.reg.UnregisterServer(namespace)
}

func toolDescription(t mcpschema.Tool) string {
	if t.Description != nil {
		return *t.Description
	}
	return ""
}

// toolInputSchema flattens mcp-protocol's typed ToolInputSchema into the
// plain map[string]interface{} shape the Registry compiles via
// gojsonschema (spec §4.3.3 display/validation boundary).
func toolInputSchema(t mcpschema.Tool) map[string]interface{} {
	props := map[string]interface{}{}
	for k, v := range t.InputSchema.Properties {
		props[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   t.InputSchema.Required,
	}
}
