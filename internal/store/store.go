// Package store implements ToolDock's persistence layer (spec §4.9):
// external_servers and external_registry_cache, with additive-only
// schema migrations and a backend selectable between the SQLite default
// and a DATABASE_URL-supplied Postgres-compatible database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Backend identifies which SQL dialect Store is talking to; a handful of
// statements (AUTOINCREMENT vs SERIAL, etc.) differ between them.
type Backend string

const (
	SQLite   Backend = "sqlite"
	Postgres Backend = "postgres"
)

// Store wraps a *sql.DB bound to either the default SQLite file under
// <data_dir>/db or a DATABASE_URL override.
type Store struct {
	db      *sql.DB
	backend Backend
}

// Open selects a backend: databaseURL when non-empty, else a SQLite file
// under <dataDir>/db/tooldock.db (spec §4.9/§6.4).
func Open(ctx context.Context, dataDir, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return openPostgres(ctx, databaseURL)
	}
	return openSQLite(ctx, dataDir)
}

func openSQLite(ctx context.Context, dataDir string) (*Store, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dbDir, err)
	}
	dbFile := filepath.Join(dbDir, "tooldock.db")
	dsn := "file:" + dbFile + "?cache=shared&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	s := &Store{db: db, backend: SQLite}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	s := &Store{db: db, backend: Postgres}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool. Sessions in this store
// are short-lived (spec §4.9), so Close is only called at process shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backend reports which SQL dialect is in use.
func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.createBaseSchema(ctx); err != nil {
		return err
	}
	return s.applyAdditiveMigrations(ctx)
}

func (s *Store) createBaseSchema(ctx context.Context) error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == Postgres {
		autoIncrement = "SERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS external_servers (
			id %s,
			namespace TEXT NOT NULL UNIQUE,
			server_name TEXT,
			version TEXT,
			install_method TEXT,
			package_info TEXT,
			repo_url TEXT,
			entrypoint TEXT,
			port INTEGER,
			venv_path TEXT,
			status TEXT NOT NULL DEFAULT 'installing',
			pid INTEGER,
			last_error TEXT,
			auto_start BOOLEAN NOT NULL DEFAULT FALSE,
			startup_command TEXT,
			command_args TEXT,
			env_vars TEXT,
			config_yaml TEXT,
			transport_type TEXT,
			server_url TEXT,
			package_type TEXT,
			source_url TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, autoIncrement),
		`CREATE TABLE IF NOT EXISTS external_registry_cache (
			server_name TEXT PRIMARY KEY,
			latest_version TEXT,
			metadata_json TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating base schema: %w", err)
		}
	}
	return nil
}

// applyAdditiveMigrations adds any missing column via ALTER TABLE ADD
// COLUMN. Columns are never dropped (spec §4.9: "Schema migrations MUST
// be additive").
func (s *Store) applyAdditiveMigrations(ctx context.Context) error {
	columns := []struct {
		table, column, decl string
	}{
		{"external_servers", "config_file", "TEXT"},
	}
	for _, c := range columns {
		if err := s.ensureColumn(ctx, c.table, c.column, c.decl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, decl string) error {
	exists, err := s.columnExists(ctx, table, column)
	if err != nil {
		return fmt.Errorf("checking %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	if s.backend == SQLite {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid, notnull, pk int
			var name, ctype string
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`,
		table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Now returns the current time in UTC for storage consistency; kept as
// a single helper so callers never embed time.Now() calls ad hoc.
func Now() time.Time {
	return time.Now().UTC()
}

// rebind rewrites "?" placeholders into Postgres's "$1, $2, ..." form when
// the backend requires it, so record CRUD can be written once against
// SQLite's native placeholder style.
func (s *Store) rebind(query string) string {
	if s.backend != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}
