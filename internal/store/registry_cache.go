package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RegistryCacheEntry mirrors external_registry_cache (spec §4.9): cached
// package-index metadata keyed by server name. The install path does not
// read it.
type RegistryCacheEntry struct {
	ServerName    string
	LatestVersion string
	MetadataJSON  string
}

// PutRegistryCache upserts the cache entry for serverName.
func (s *Store) PutRegistryCache(ctx context.Context, e RegistryCacheEntry) error {
	_, err := s.GetRegistryCache(ctx, e.ServerName)
	switch err {
	case nil:
		_, err = s.execContext(ctx,
			`UPDATE external_registry_cache SET latest_version=?, metadata_json=?, updated_at=? WHERE server_name=?`,
			e.LatestVersion, e.MetadataJSON, Now(), e.ServerName)
	case sql.ErrNoRows:
		_, err = s.execContext(ctx,
			`INSERT INTO external_registry_cache (server_name, latest_version, metadata_json, updated_at) VALUES (?, ?, ?, ?)`,
			e.ServerName, e.LatestVersion, e.MetadataJSON, Now())
	}
	if err != nil {
		return fmt.Errorf("upserting registry cache for %s: %w", e.ServerName, err)
	}
	return nil
}

// GetRegistryCache returns sql.ErrNoRows when serverName has no cache entry.
func (s *Store) GetRegistryCache(ctx context.Context, serverName string) (RegistryCacheEntry, error) {
	var e RegistryCacheEntry
	err := s.queryRowContext(ctx,
		`SELECT server_name, latest_version, metadata_json FROM external_registry_cache WHERE server_name=?`,
		serverName).Scan(&e.ServerName, &e.LatestVersion, &e.MetadataJSON)
	return e, err
}
