package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEcho(t *testing.T) {
	h, ok := Lookup("core.echo")
	require.True(t, ok)
	out, err := h(context.Background(), map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestGreetDefault(t *testing.T) {
	h, ok := Lookup("core.greet")
	require.True(t, ok)
	out, err := h(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", out)
}

func TestLookupMissing(t *testing.T) {
	_, ok := Lookup("core.nope")
	assert.False(t, ok)
}
