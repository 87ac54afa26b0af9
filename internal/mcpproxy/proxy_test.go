package mcpproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mcpschema "github.com/viant/mcp-protocol/schema"

	"github.com/tooldock/tooldock/internal/toolerr"
)

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "get_forecast", normalizeToolName("weather", "weather/get_forecast"))
	assert.Equal(t, "get_forecast", normalizeToolName("weather", "weather:get_forecast"))
	assert.Equal(t, "get_forecast", normalizeToolName("weather", "get_forecast"))
	assert.Equal(t, "", normalizeToolName("weather", ""))
}

func TestErrorEnvelope(t *testing.T) {
	res := errorEnvelope(errors.New("boom"))
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: boom", res.Content[0].Text)
}

func TestTranslateTextContent(t *testing.T) {
	isErr := false
	res := &mcpschema.CallToolResult{
		IsError: &isErr,
		Content: []mcpschema.CallToolResultContentElem{{Type: "text", Text: "42"}},
	}
	out := translate(res)
	assert.False(t, out.IsError)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "42", out.Content[0].Text)
}

func TestTranslateNil(t *testing.T) {
	out := translate(nil)
	assert.True(t, out.IsError)
}

func TestConnectedDefaultsFalse(t *testing.T) {
	p := New("weather", nil)
	assert.False(t, p.Connected())
}

func TestCallToolNotConnectedReturnsError(t *testing.T) {
	p := New("weather", nil)
	_, err := p.CallTool(context.Background(), "get_forecast", nil)
	require.Error(t, err)
	assert.Equal(t, toolerr.NotConnected, toolerr.CodeOf(err))
}

func TestCallToolUnknownToolIsNotFound(t *testing.T) {
	p := New("weather", nil)
	p.connected = true
	p.toolCatalog = []mcpschema.Tool{{Name: "get_forecast"}}

	_, err := p.CallTool(context.Background(), "ghost_tool", nil)
	require.Error(t, err)
	assert.Equal(t, toolerr.ToolNotFound, toolerr.CodeOf(err))
}
