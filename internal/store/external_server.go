package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ExternalServerRecord mirrors external_servers (spec §4.9 / §3.4).
type ExternalServerRecord struct {
	ID             int64
	Namespace      string
	ServerName     string
	Version        string
	InstallMethod  string
	PackageInfo    string
	RepoURL        string
	Entrypoint     string
	Port           int
	VenvPath       string
	Status         string
	PID            int
	LastError      string
	AutoStart      bool
	StartupCommand string
	CommandArgs    string
	EnvVars        string
	ConfigYAML     string
	TransportType  string
	ServerURL      string
	PackageType    string
	SourceURL      string
}

const externalServerColumns = `id, namespace, server_name, version, install_method, package_info,
	repo_url, entrypoint, port, venv_path, status, pid, last_error, auto_start,
	startup_command, command_args, env_vars, config_yaml, transport_type,
	server_url, package_type, source_url`

// UpsertExternalServer inserts or updates the record keyed by namespace.
func (s *Store) UpsertExternalServer(ctx context.Context, r ExternalServerRecord) error {
	existing, err := s.GetExternalServer(ctx, r.Namespace)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == sql.ErrNoRows {
		_, err = s.execContext(ctx, `INSERT INTO external_servers (
			namespace, server_name, version, install_method, package_info, repo_url,
			entrypoint, port, venv_path, status, pid, last_error, auto_start,
			startup_command, command_args, env_vars, config_yaml, transport_type,
			server_url, package_type, source_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Namespace, r.ServerName, r.Version, r.InstallMethod, r.PackageInfo, r.RepoURL,
			r.Entrypoint, r.Port, r.VenvPath, r.Status, r.PID, r.LastError, r.AutoStart,
			r.StartupCommand, r.CommandArgs, r.EnvVars, r.ConfigYAML, r.TransportType,
			r.ServerURL, r.PackageType, r.SourceURL, Now(), Now())
		if err != nil {
			return fmt.Errorf("inserting external_servers: %w", err)
		}
		return nil
	}

	r.ID = existing.ID
	_, err = s.execContext(ctx, `UPDATE external_servers SET
		server_name=?, version=?, install_method=?, package_info=?, repo_url=?,
		entrypoint=?, port=?, venv_path=?, status=?, pid=?, last_error=?, auto_start=?,
		startup_command=?, command_args=?, env_vars=?, config_yaml=?, transport_type=?,
		server_url=?, package_type=?, source_url=?, updated_at=?
		WHERE namespace=?`,
		r.ServerName, r.Version, r.InstallMethod, r.PackageInfo, r.RepoURL,
		r.Entrypoint, r.Port, r.VenvPath, r.Status, r.PID, r.LastError, r.AutoStart,
		r.StartupCommand, r.CommandArgs, r.EnvVars, r.ConfigYAML, r.TransportType,
		r.ServerURL, r.PackageType, r.SourceURL, Now(), r.Namespace)
	if err != nil {
		return fmt.Errorf("updating external_servers: %w", err)
	}
	return nil
}

// GetExternalServer returns sql.ErrNoRows when namespace is unknown.
func (s *Store) GetExternalServer(ctx context.Context, namespace string) (ExternalServerRecord, error) {
	row := s.queryRowContext(ctx, `SELECT `+externalServerColumns+`
		FROM external_servers WHERE namespace=?`, namespace)
	return scanExternalServer(row)
}

// ListExternalServers returns every registered external server record.
func (s *Store) ListExternalServers(ctx context.Context) ([]ExternalServerRecord, error) {
	rows, err := s.queryContext(ctx, `SELECT `+externalServerColumns+`
		FROM external_servers ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("listing external_servers: %w", err)
	}
	defer rows.Close()

	out := []ExternalServerRecord{}
	for rows.Next() {
		r, err := scanExternalServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus sets status (and pid/last_error, which accompany nearly
// every status transition in the supervisor's lifecycle).
func (s *Store) UpdateStatus(ctx context.Context, namespace, status string, pid int, lastError string) error {
	_, err := s.execContext(ctx,
		`UPDATE external_servers SET status=?, pid=?, last_error=?, updated_at=? WHERE namespace=?`,
		status, pid, lastError, Now(), namespace)
	if err != nil {
		return fmt.Errorf("updating status for %s: %w", namespace, err)
	}
	return nil
}

// DeleteExternalServer removes the namespace's record (spec §4.3: delete()).
func (s *Store) DeleteExternalServer(ctx context.Context, namespace string) error {
	_, err := s.execContext(ctx, `DELETE FROM external_servers WHERE namespace=?`, namespace)
	if err != nil {
		return fmt.Errorf("deleting external_servers %s: %w", namespace, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanExternalServer(row scannable) (ExternalServerRecord, error) {
	var r ExternalServerRecord
	err := row.Scan(
		&r.ID, &r.Namespace, &r.ServerName, &r.Version, &r.InstallMethod, &r.PackageInfo,
		&r.RepoURL, &r.Entrypoint, &r.Port, &r.VenvPath, &r.Status, &r.PID, &r.LastError,
		&r.AutoStart, &r.StartupCommand, &r.CommandArgs, &r.EnvVars, &r.ConfigYAML,
		&r.TransportType, &r.ServerURL, &r.PackageType, &r.SourceURL,
	)
	return r, err
}
