// Package registry implements ToolDock's namespace-partitioned tool
// catalog: the map of (namespace, tool name) to a callable entry, with
// at-most-one-name semantics, strict JSON-Schema argument validation, and
// the tie-break name resolution external clients rely on.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tooldock/tooldock/internal/toolerr"
	"github.com/xeipuuv/gojsonschema"
)

// Handler is a native tool implementation. It receives validated
// arguments and a context carrying the caller's deadline.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ExternalCaller dispatches a call to an already-connected external
// provider. It returns the uniform {content, isError} style result used by
// the MCP proxy client (internal/mcpproxy) rather than a raw Go error for
// remote failures; a non-nil error here means the registry itself could
// not even reach the proxy (e.g. disconnected).
type ExternalCaller interface {
	CallTool(ctx context.Context, originalName string, args map[string]interface{}) (interface{}, error)
}

// Entry is a single registered tool, native or external.
type Entry struct {
	Name         string // display name, "<namespace>:<original>" for external entries
	Namespace    string
	Description  string
	InputSchema  map[string]interface{}
	External     bool
	OriginalName string // unprefixed name, used for external dispatch
	ServerID     string // owning ExternalServerRecord id, for external entries

	handler  Handler
	proxy    ExternalCaller
	compiled *gojsonschema.Schema
}

// Descriptor is the client-facing shape returned by listing operations.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Kind        string                 `json:"kind,omitempty"` // "native" | "external", set by list_all
}

// Stats summarizes registry contents (spec §4.1 stats()).
type Stats struct {
	Native     int            `json:"native"`
	External   int            `json:"external"`
	Total      int            `json:"total"`
	Namespaces map[string]int `json:"namespaces"`
}

// Registry is the concurrent tool catalog. Zero value is not usable; use New.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]map[string]*Entry // namespace -> name -> entry
	timeout    time.Duration
}

// New constructs an empty Registry. toolTimeout is the default per-call
// deadline (spec §4.1, TOOL_TIMEOUT_SECONDS).
func New(toolTimeout time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]map[string]*Entry),
		timeout: toolTimeout,
	}
}

func compileSchema(schema map[string]interface{}) (*gojsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}
	loader := gojsonschema.NewGoLoader(schema)
	return gojsonschema.NewSchema(loader)
}

// Register adds a native entry. Fails with duplicate_tool if the
// (namespace, name) pair already exists.
func (r *Registry) Register(namespace, name, description string, schema map[string]interface{}, handler Handler) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return toolerr.Wrap(toolerr.ValidationError, err, "compiling schema for %s", name)
	}
	entry := &Entry{
		Name:        name,
		Namespace:   namespace,
		Description: description,
		InputSchema: schema,
		handler:     handler,
		compiled:    compiled,
	}
	return r.insert(namespace, name, entry)
}

// RegisterExternal adds an entry whose execution is delegated to proxy.
// displayName follows spec §3.2: "<namespace>:<originalName>".
func (r *Registry) RegisterExternal(namespace, originalName, description string, schema map[string]interface{}, serverID string, proxy ExternalCaller) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return toolerr.Wrap(toolerr.ValidationError, err, "compiling schema for %s", originalName)
	}
	displayName := namespace + ":" + originalName
	entry := &Entry{
		Name:         displayName,
		Namespace:    namespace,
		Description:  description,
		InputSchema:  schema,
		External:     true,
		OriginalName: originalName,
		ServerID:     serverID,
		proxy:        proxy,
		compiled:     compiled,
	}
	return r.insert(namespace, displayName, entry)
}

func (r *Registry) insert(namespace, name string, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.entries[namespace]
	if !ok {
		ns = make(map[string]*Entry)
		r.entries[namespace] = ns
	}
	if _, exists := ns[name]; exists {
		return toolerr.New(toolerr.DuplicateTool, "tool %q already registered in namespace %q", name, namespace)
	}
	ns[name] = entry
	return nil
}

// Unregister removes a single entry by display name, searching every
// namespace (native callers pass the bare name, external callers pass the
// prefixed display name). The namespace index entry is dropped once empty.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ns, tools := range r.entries {
		if _, ok := tools[name]; ok {
			delete(tools, name)
			if len(tools) == 0 {
				delete(r.entries, ns)
			}
			return true
		}
	}
	return false
}

// UnregisterNamespace removes every entry owned by namespace, returning
// the count removed (used by the Loader's hot-reload path).
func (r *Registry) UnregisterNamespace(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	tools, ok := r.entries[namespace]
	if !ok {
		return 0
	}
	n := len(tools)
	delete(r.entries, namespace)
	return n
}

// UnregisterServer removes every external entry owned by serverID,
// returning the count removed (supervisor publication teardown, §4.3.3).
func (r *Registry) UnregisterServer(serverID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for ns, tools := range r.entries {
		for name, e := range tools {
			if e.External && e.ServerID == serverID {
				delete(tools, name)
				removed++
			}
		}
		if len(tools) == 0 {
			delete(r.entries, ns)
		}
	}
	return removed
}

// resolve implements the tie-break name resolution of spec §4.1: exact
// match, then default__/<ns>__ prefix-stripped retry, then a unique
// "*:name" suffix match.
func (r *Registry) resolve(name string) (*Entry, error) {
	if e, ok := r.lookupExact(name); ok {
		return e, nil
	}
	if stripped, ok := stripDoubleUnderscorePrefix(name); ok {
		if e, ok := r.lookupExact(stripped); ok {
			return e, nil
		}
	}
	if e, ok := r.lookupUniqueSuffix(name); ok {
		return e, nil
	}
	return nil, toolerr.New(toolerr.ToolNotFound, "no tool resolves to %q", name)
}

func (r *Registry) lookupExact(name string) (*Entry, bool) {
	for _, tools := range r.entries {
		if e, ok := tools[name]; ok {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) lookupUniqueSuffix(name string) (*Entry, bool) {
	suffix := ":" + name
	var match *Entry
	count := 0
	for _, tools := range r.entries {
		for toolName, e := range tools {
			if strings.HasSuffix(toolName, suffix) {
				match = e
				count++
			}
		}
	}
	if count == 1 {
		return match, true
	}
	return nil, false
}

// stripDoubleUnderscorePrefix removes a "default__" or "<anything>__"
// prefix from name. Returns ok=false if there is no "__" separator.
func stripDoubleUnderscorePrefix(name string) (string, bool) {
	idx := strings.Index(name, "__")
	if idx < 0 {
		return "", false
	}
	return name[idx+2:], true
}

// Call resolves name, validates arguments against its schema, and invokes
// the handler (native) or proxy (external), enforcing the registry's
// default timeout with cooperative cancellation via ctx.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	entry, err := r.resolve(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if err := validateArgs(entry.compiled, args); err != nil {
		return nil, err
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		if entry.External {
			v, err := entry.proxy.CallTool(callCtx, entry.OriginalName, args)
			done <- result{v, err}
			return
		}
		v, err := entry.handler(callCtx, args)
		done <- result{v, err}
	}()

	select {
	case <-callCtx.Done():
		return nil, toolerr.New(toolerr.ToolTimeout, "tool %q exceeded its deadline", name)
	case res := <-done:
		return res.val, res.err
	}
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return toolerr.Wrap(toolerr.ValidationError, err, "validating arguments")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return toolerr.New(toolerr.ValidationError, "%s", strings.Join(msgs, "; "))
	}
	return nil
}

// ListForNamespace returns descriptors for one namespace, sorted by name.
func (r *Registry) ListForNamespace(namespace string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools, ok := r.entries[namespace]
	if !ok {
		return nil
	}
	out := make([]Descriptor, 0, len(tools))
	for _, e := range tools {
		out = append(out, Descriptor{Name: e.Name, Description: e.Description, InputSchema: e.InputSchema})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAll returns descriptors across every namespace, each tagged with
// its kind ("native" or "external"), sorted by name.
func (r *Registry) ListAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, tools := range r.entries {
		for _, e := range tools {
			kind := "native"
			if e.External {
				kind = "external"
			}
			out = append(out, Descriptor{Name: e.Name, Description: e.Description, InputSchema: e.InputSchema, Kind: kind})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasNamespace reports whether namespace currently owns any entries.
func (r *Registry) HasNamespace(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[namespace]
	return ok
}

// ToolInNamespace reports whether name is registered within namespace
// specifically (used by namespace-scoped MCP/OpenAPI dispatch, §4.5.4).
func (r *Registry) ToolInNamespace(namespace, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools, ok := r.entries[namespace]
	if !ok {
		return false
	}
	_, ok = tools[name]
	return ok
}

// GetNamespace returns the namespace owning toolName, if any.
func (r *Registry) GetNamespace(toolName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ns, tools := range r.entries {
		if _, ok := tools[toolName]; ok {
			return ns, true
		}
	}
	return "", false
}

// Stats reports catalog counts (spec §4.1 stats()).
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Namespaces: map[string]int{}}
	for ns, tools := range r.entries {
		s.Namespaces[ns] = len(tools)
		for _, e := range tools {
			if e.External {
				s.External++
			} else {
				s.Native++
			}
		}
	}
	s.Total = s.Native + s.External
	return s
}

// StringifyResult renders a handler's return value the way §4.5.4
// requires for the MCP tools/call text content: a string is used
// verbatim, anything else is pretty-printed JSON (indent=2, non-ASCII
// preserved).
func StringifyResult(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
