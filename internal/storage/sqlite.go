package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS docs (
			id TEXT PRIMARY KEY,
			rev TEXT NOT NULL,
			data_type TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '{}',
			deleted INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_type_project ON docs(data_type, project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_deleted ON docs(deleted, updated_at)`,
	},
}

// OpenSQLite opens (or creates) the SQLite database at dbPath.
func OpenSQLite(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer, limit to a single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	s := &SQLStore{conn: conn, d: sqliteDialect}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, m := range s.d.migrations {
		if _, err := s.conn.Exec(m); err != nil {
			// ALTER TABLE fails if the column already exists, safe to ignore
			if strings.Contains(m, "ALTER TABLE") && strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			head := m
			if len(head) > 40 {
				head = head[:40]
			}
			return fmt.Errorf("migration failed: %s: %w", strings.TrimSpace(head), err)
		}
	}
	return nil
}
