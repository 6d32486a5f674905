package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"sophosia/internal/domain"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name       string
	driver     string
	migrations []string
	numbered   bool // $1 placeholders instead of ?
}

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS docs (
			id VARCHAR(128) NOT NULL PRIMARY KEY,
			rev VARCHAR(64) NOT NULL,
			data_type VARCHAR(64) NOT NULL,
			project_id VARCHAR(128) NOT NULL DEFAULT '',
			page_number INT NOT NULL DEFAULT 0,
			kind VARCHAR(32) NOT NULL DEFAULT '',
			body LONGTEXT NOT NULL,
			deleted TINYINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL,
			INDEX idx_docs_type_project (data_type, project_id),
			INDEX idx_docs_deleted (deleted, updated_at)
		) CHARACTER SET utf8mb4`,
	},
}

var postgresDialect = dialect{
	name:     "postgres",
	driver:   "postgres",
	numbered: true,
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS docs (
			id TEXT PRIMARY KEY,
			rev TEXT NOT NULL,
			data_type TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '{}',
			deleted SMALLINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_type_project ON docs(data_type, project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_deleted ON docs(deleted, updated_at)`,
	},
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const docColumns = `id, rev, data_type, project_id, page_number, kind, body, updated_at`

// SQLStore is a DocStore on a SQL database. Records live in a single docs
// table; removed records stay as tombstones until Compact.
type SQLStore struct {
	conn *sql.DB
	d    dialect
}

var _ domain.DocStore = (*SQLStore)(nil)

// OpenSQL connects to a MySQL or Postgres database and migrates it.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var d dialect
	switch driver {
	case "mysql":
		d = mysqlDialect
	case "postgres":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("open sql: unsupported driver %q", driver)
	}
	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLStore{conn: conn, d: d}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Dialect returns the backend name.
func (s *SQLStore) Dialect() string { return s.d.name }

// Conn returns the underlying database connection.
func (s *SQLStore) Conn() *sql.DB { return s.conn }

func (s *SQLStore) Close() error { return s.conn.Close() }

func (s *SQLStore) Get(ctx context.Context, id string) (*domain.Doc, error) {
	row := s.conn.QueryRowContext(ctx,
		s.d.rebind(`SELECT `+docColumns+` FROM docs WHERE id = ? AND deleted = 0`), id)
	d, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLStore) Put(ctx context.Context, doc *domain.Doc) (string, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	defer tx.Rollback()

	var (
		stored  string
		deleted int
	)
	err = tx.QueryRowContext(ctx, s.d.rebind(`SELECT rev, deleted FROM docs WHERE id = ?`), doc.ID).Scan(&stored, &deleted)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}

	switch {
	case !exists && doc.Rev != "":
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrNotFound)
	case exists && deleted == 0 && stored != doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	case exists && deleted == 1 && doc.Rev != "" && stored != doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	}

	rev := nextRev(stored)
	now := time.Now().UTC().UnixMilli()
	body := string(doc.Body)
	if body == "" {
		body = "{}"
	}

	if !exists {
		_, err = tx.ExecContext(ctx, s.d.rebind(
			`INSERT INTO docs (id, rev, data_type, project_id, page_number, kind, body, deleted, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`),
			doc.ID, rev, doc.DataType, doc.DocumentID, doc.PageNumber, doc.Kind, body, now)
		if err != nil {
			return "", fmt.Errorf("put %s: %w", doc.ID, err)
		}
	} else {
		res, err := tx.ExecContext(ctx, s.d.rebind(
			`UPDATE docs SET rev = ?, data_type = ?, project_id = ?, page_number = ?, kind = ?, body = ?, deleted = 0, updated_at = ?
			 WHERE id = ? AND rev = ?`),
			rev, doc.DataType, doc.DocumentID, doc.PageNumber, doc.Kind, body, now, doc.ID, stored)
		if err != nil {
			return "", fmt.Errorf("put %s: %w", doc.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("put %s: %w", doc.ID, err)
	}
	return rev, nil
}

func (s *SQLStore) Remove(ctx context.Context, id, rev string) error {
	res, err := s.conn.ExecContext(ctx, s.d.rebind(
		`UPDATE docs SET deleted = 1, rev = ?, updated_at = ? WHERE id = ? AND rev = ? AND deleted = 0`),
		nextRev(rev), time.Now().UTC().UnixMilli(), id, rev)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("remove %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("remove %s: %w", id, domain.ErrConflict)
}

func (s *SQLStore) Find(ctx context.Context, sel domain.Selector) ([]domain.Doc, error) {
	where := []string{"deleted = 0"}
	var args []any
	if sel.DataType != "" {
		where = append(where, "data_type = ?")
		args = append(args, sel.DataType)
	}
	if sel.DocumentID != "" {
		where = append(where, "project_id = ?")
		args = append(args, sel.DocumentID)
	}
	if sel.PageNumber != 0 {
		where = append(where, "page_number = ?")
		args = append(args, sel.PageNumber)
	}
	if len(sel.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(sel.Kinds))+")")
		for _, k := range sel.Kinds {
			args = append(args, k)
		}
	}
	if len(sel.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(sel.IDs))+")")
		for _, id := range sel.IDs {
			args = append(args, id)
		}
	}

	q := `SELECT ` + docColumns + ` FROM docs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY page_number, id`
	rows, err := s.conn.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	var out []domain.Doc
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *SQLStore) Compact(ctx context.Context, before time.Time) (int, error) {
	res, err := s.conn.ExecContext(ctx, s.d.rebind(`DELETE FROM docs WHERE deleted = 1 AND updated_at < ?`),
		before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(row scanner) (*domain.Doc, error) {
	var (
		d       domain.Doc
		body    string
		updated int64
	)
	if err := row.Scan(&d.ID, &d.Rev, &d.DataType, &d.DocumentID, &d.PageNumber, &d.Kind, &body, &updated); err != nil {
		return nil, err
	}
	d.Body = []byte(body)
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return &d, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
