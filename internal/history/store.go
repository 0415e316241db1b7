// Package history keeps a log of completed translations in PostgreSQL or
// SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/example/command-translator/internal/models"
)

const table = "translations"

// DefaultLimit caps Recent when the caller asks for nothing specific.
const DefaultLimit = 20

var ddl = map[string]string{
	"postgres": `CREATE TABLE IF NOT EXISTS translations (
		id                 BIGSERIAL PRIMARY KEY,
		text               TEXT NOT NULL,
		template_version   TEXT NOT NULL,
		schema_name        TEXT NOT NULL,
		command            TEXT,
		error_kind         TEXT NOT NULL DEFAULT '',
		error_message      TEXT NOT NULL DEFAULT '',
		attempts           INTEGER NOT NULL,
		transport_failures INTEGER NOT NULL,
		model              TEXT NOT NULL DEFAULT '',
		total_tokens       INTEGER NOT NULL DEFAULT 0,
		duration_ms        BIGINT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	"sqlite3": `CREATE TABLE IF NOT EXISTS translations (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		text               TEXT NOT NULL,
		template_version   TEXT NOT NULL,
		schema_name        TEXT NOT NULL,
		command            TEXT,
		error_kind         TEXT NOT NULL DEFAULT '',
		error_message      TEXT NOT NULL DEFAULT '',
		attempts           INTEGER NOT NULL,
		transport_failures INTEGER NOT NULL,
		model              TEXT NOT NULL DEFAULT '',
		total_tokens       INTEGER NOT NULL DEFAULT 0,
		duration_ms        INTEGER NOT NULL,
		created_at         TIMESTAMP NOT NULL
	)`,
}

var columns = []string{
	"id", "text", "template_version", "schema_name", "command", "error_kind", "error_message",
	"attempts", "transport_failures", "model", "total_tokens", "duration_ms", "created_at",
}

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	sq     sq.StatementBuilderType
	driver string
}

// Open connects to driver ("postgres" or "sqlite3") and creates the table if
// needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if _, ok := ddl[driver]; !ok {
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	switch driver {
	case "postgres":
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case "sqlite3":
		for _, p := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;"} {
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("pragma %q: %w", p, err)
			}
		}
	}

	s, err := New(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and creates the table if needed.
func New(ctx context.Context, db *sql.DB, driver string) (*Store, error) {
	stmt, ok := ddl[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("create %s table: %w", table, err)
	}
	b := sq.StatementBuilder
	if driver == "postgres" {
		b = b.PlaceholderFormat(sq.Dollar)
	}
	return &Store{db: db, sq: b, driver: driver}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts e and sets its ID.
func (s *Store) Record(ctx context.Context, e *models.HistoryEntry) error {
	var command sql.NullString
	if e.Command != nil {
		b, err := json.Marshal(e.Command)
		if err != nil {
			return fmt.Errorf("encode command: %w", err)
		}
		command = sql.NullString{String: string(b), Valid: true}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	q := s.sq.Insert(table).
		Columns(columns[1:]...).
		Values(e.Text, e.TemplateVersion, e.Schema, command, e.ErrorKind, e.ErrorMessage,
			e.Attempts, e.TransportFailures, e.Model, e.TotalTokens, e.Duration.Milliseconds(), created).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert translation: %w", err)
	}
	e.CreatedAt = created
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := s.sq.Select(columns...).From(table).OrderBy("id DESC").Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var (
			e        models.HistoryEntry
			command  sql.NullString
			duration int64
		)
		if err := rows.Scan(&e.ID, &e.Text, &e.TemplateVersion, &e.Schema, &command, &e.ErrorKind, &e.ErrorMessage,
			&e.Attempts, &e.TransportFailures, &e.Model, &e.TotalTokens, &duration, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		e.Duration = time.Duration(duration) * time.Millisecond
		if command.Valid {
			dec := json.NewDecoder(strings.NewReader(command.String))
			dec.UseNumber()
			if err := dec.Decode(&e.Command); err != nil {
				return nil, fmt.Errorf("decode command for translation %d: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
