package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, SQLite, s.Backend())

	_, err := s.GetExternalServer(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpsertAndGetExternalServer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := ExternalServerRecord{
		Namespace:     "weather",
		ServerName:    "weather-mcp",
		InstallMethod: "pypi",
		Status:        "installing",
		AutoStart:     true,
	}
	require.NoError(t, s.UpsertExternalServer(ctx, rec))

	got, err := s.GetExternalServer(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "weather-mcp", got.ServerName)
	assert.Equal(t, "installing", got.Status)
	assert.True(t, got.AutoStart)

	rec.Status = "running"
	rec.Port = 30123
	require.NoError(t, s.UpsertExternalServer(ctx, rec))

	got, err = s.GetExternalServer(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 30123, got.Port)
}

func TestUpdateStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertExternalServer(ctx, ExternalServerRecord{Namespace: "weather", Status: "starting"}))
	require.NoError(t, s.UpdateStatus(ctx, "weather", "running", 4242, ""))

	got, err := s.GetExternalServer(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 4242, got.PID)
}

func TestListExternalServersSorted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertExternalServer(ctx, ExternalServerRecord{Namespace: "weather"}))
	require.NoError(t, s.UpsertExternalServer(ctx, ExternalServerRecord{Namespace: "files"}))

	list, err := s.ListExternalServers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "files", list[0].Namespace)
	assert.Equal(t, "weather", list[1].Namespace)
}

func TestDeleteExternalServer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertExternalServer(ctx, ExternalServerRecord{Namespace: "weather"}))
	require.NoError(t, s.DeleteExternalServer(ctx, "weather"))

	_, err := s.GetExternalServer(ctx, "weather")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRegistryCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetRegistryCache(ctx, "weather-mcp")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, s.PutRegistryCache(ctx, RegistryCacheEntry{
		ServerName:    "weather-mcp",
		LatestVersion: "1.2.0",
		MetadataJSON:  `{"name":"weather-mcp"}`,
	}))

	got, err := s.GetRegistryCache(ctx, "weather-mcp")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", got.LatestVersion)

	require.NoError(t, s.PutRegistryCache(ctx, RegistryCacheEntry{
		ServerName:    "weather-mcp",
		LatestVersion: "1.3.0",
		MetadataJSON:  `{"name":"weather-mcp"}`,
	}))
	got, err = s.GetRegistryCache(ctx, "weather-mcp")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", got.LatestVersion)
}

func TestAdditiveMigrationIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.applyAdditiveMigrations(context.Background()))
	exists, err := s.columnExists(context.Background(), "external_servers", "config_file")
	require.NoError(t, err)
	assert.True(t, exists)
}
