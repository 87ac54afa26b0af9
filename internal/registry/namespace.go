package registry

import "regexp"

// namespacePattern is the admin-surface namespace validation regex (spec
// §3.3 / §6.3).
var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,49}$`)

// Reserved holds the namespace words that can never be used by a tool
// namespace because they collide with ToolDock's own routes (spec §3.3).
var Reserved = map[string]bool{
	"api": true, "mcp": true, "openapi": true, "docs": true, "assets": true,
	"health": true, "tools": true, "static": true, "shared": true,
	"external": true, "config": true, "cache": true, "tmp": true, "temp": true,
}

// IsReserved reports whether name collides with a reserved route prefix.
func IsReserved(name string) bool {
	return Reserved[name]
}

// ValidNamespaceName reports whether name has the correct shape and is
// not reserved.
func ValidNamespaceName(name string) bool {
	return namespacePattern.MatchString(name) && !IsReserved(name)
}
