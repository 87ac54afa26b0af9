package toolerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(ToolTimeout, base, "calling %s", "echo")

	assert.Equal(t, ToolTimeout, CodeOf(wrapped))
	assert.Equal(t, InternalError, CodeOf(base))
	assert.ErrorIs(t, wrapped, base)
}

func TestJSONRPCCode(t *testing.T) {
	assert.Equal(t, -32601, JSONRPCCode(ToolNotFound))
	assert.Equal(t, -32603, JSONRPCCode(Code("unknown")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(ToolNotFound))
	assert.Equal(t, 409, HTTPStatus(DuplicateTool))
	assert.Equal(t, 500, HTTPStatus(Code("unknown")))
}
