// Package toolerr defines ToolDock's tagged error taxonomy and its mapping
// onto JSON-RPC and HTTP status codes.
package toolerr

import (
	"errors"
	"fmt"
)

// Code is one of the fixed error categories a ToolDock operation can fail with.
type Code string

const (
	ToolNotFound      Code = "tool_not_found"
	ValidationError   Code = "validation_error"
	ToolTimeout       Code = "tool_timeout"
	Unauthorized      Code = "unauthorized"
	InternalError     Code = "internal_error"
	DuplicateTool     Code = "duplicate_tool"
	NamespaceNotFound Code = "namespace_not_found"
	NamespaceInvalid  Code = "namespace_invalid"
	PackageNotFound   Code = "package_not_found"
	InstallFailed     Code = "install_failed"
	WorkerCrashed     Code = "worker_crashed"
	WorkerTimeout     Code = "worker_timeout"
	NotConnected      Code = "not_connected"
)

// Error is the concrete error type carried across package boundaries. Every
// component that fails in a way callers need to distinguish should return
// one of these (wrapped via fmt.Errorf("...: %w", err) is fine too).
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code from err, defaulting to InternalError when err
// does not carry one.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return InternalError
}

// jsonRPCCodes mirrors the JSON-RPC 2.0 reserved range plus ToolDock's own
// application-level assignments for the MCP HTTP transport (spec §4.5/§7).
var jsonRPCCodes = map[Code]int{
	ToolNotFound:      -32601, // method not found
	ValidationError:   -32602, // invalid params
	ToolTimeout:       -32000,
	Unauthorized:      -32001,
	InternalError:     -32603,
	DuplicateTool:     -32002,
	NamespaceNotFound: -32601,
	NamespaceInvalid:  -32602,
	PackageNotFound:   -32003,
	InstallFailed:     -32004,
	WorkerCrashed:     -32005,
	WorkerTimeout:     -32000,
	NotConnected:      -32006,
}

// JSONRPCCode returns the JSON-RPC error code for a ToolDock error code,
// defaulting to -32603 (internal error) for anything unrecognized.
func JSONRPCCode(c Code) int {
	if v, ok := jsonRPCCodes[c]; ok {
		return v
	}
	return -32603
}

// ParseError / InvalidRequest / MethodNotFound / InvalidParams are the raw
// JSON-RPC 2.0 protocol-level codes used for malformed envelopes, as opposed
// to the application-level codes in jsonRPCCodes above (spec §4.5).
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
)

var httpStatus = map[Code]int{
	ToolNotFound:      404,
	ValidationError:   400,
	ToolTimeout:       504,
	Unauthorized:      401,
	InternalError:     500,
	DuplicateTool:     409,
	NamespaceNotFound: 404,
	NamespaceInvalid:  400,
	PackageNotFound:   404,
	InstallFailed:     502,
	WorkerCrashed:     502,
	WorkerTimeout:     504,
	NotConnected:      503,
}

// HTTPStatus returns the HTTP status code for a ToolDock error code,
// defaulting to 500 for anything unrecognized.
func HTTPStatus(c Code) int {
	if v, ok := httpStatus[c]; ok {
		return v
	}
	return 500
}
