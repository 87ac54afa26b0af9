package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/tooldock/internal/registry"
	"github.com/tooldock/tooldock/internal/store"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	reg := registry.New(0)
	return New(t.TempDir(), st, reg, true), st
}

func TestPortForNamespaceDeterministic(t *testing.T) {
	p1 := portForNamespace("weather")
	p2 := portForNamespace("weather")
	assert.Equal(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 30000)
	assert.Less(t, p1, 50000)
	assert.NotEqual(t, p1, portForNamespace("files"))
}

func TestInstallManualRequiresCommand(t *testing.T) {
	s, _ := newTestSupervisor(t)
	_, err := s.Install(context.Background(), InstallRequest{
		Namespace: "demo",
		Method:    MethodManual,
	})
	require.Error(t, err)
}

func TestInstallManualPersistsStoppedStatus(t *testing.T) {
	s, st := newTestSupervisor(t)
	rec, err := s.Install(context.Background(), InstallRequest{
		Namespace: "demo",
		Method:    MethodManual,
		Command:   "/usr/bin/true",
		Args:      []string{"--flag"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(StateStopped), rec.Status)

	got, err := st.GetExternalServer(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/true", got.StartupCommand)
	assert.Equal(t, []string{"--flag"}, decodeArgs(got.CommandArgs))
	assert.Equal(t, "stdio", got.TransportType)
}

// TestInstallManualRoundTripsArgsExactly guards against the lossy
// space-join/strings.Fields round-trip: an arg with internal whitespace
// must survive as one token, and an empty-string arg must not vanish.
func TestInstallManualRoundTripsArgsExactly(t *testing.T) {
	s, st := newTestSupervisor(t)
	args := []string{"--name", "hello world", "", "--flag"}
	_, err := s.Install(context.Background(), InstallRequest{
		Namespace: "demo",
		Method:    MethodManual,
		Command:   "/usr/bin/true",
		Args:      args,
	})
	require.NoError(t, err)

	got, err := st.GetExternalServer(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, args, decodeArgs(got.CommandArgs))
}

func TestInstallHTTPRequiresServerURL(t *testing.T) {
	s, _ := newTestSupervisor(t)
	_, err := s.Install(context.Background(), InstallRequest{Namespace: "remote", Method: MethodHTTP})
	require.Error(t, err)
}

func TestInstallBlockedRefusesWithoutOverride(t *testing.T) {
	s, _ := newTestSupervisor(t)
	_, err := s.Install(context.Background(), InstallRequest{
		Namespace: "ghost",
		Method:    Method("carrier-pigeon"),
	})
	require.Error(t, err)
}

func TestDeleteRefusesPathEscape(t *testing.T) {
	err := removeConfined("/data", "/etc")
	require.Error(t, err)
}

func TestDeleteAllowsDescendant(t *testing.T) {
	dir := t.TempDir()
	target := dir + "/external/servers/demo"
	require.NoError(t, removeConfined(dir, target))
}

func TestCallToolWithoutLiveProxyErrors(t *testing.T) {
	s, _ := newTestSupervisor(t)
	_, err := s.CallTool(context.Background(), "demo", "tool", nil)
	require.Error(t, err)
}
