// Package sqlite provides a SQLite-backed storage.Backend.
//
// Records are stored as RFC 8785 canonical JSON in a single table ordered by
// a logical sequence number, never by timestamps. Fetch pushes the leading
// filter of a query down to SQL when it is inside the pushdown fragment
// (query.Portable) and evaluates everything else in memory.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: SQLite has a single writer, and ":memory:"
//     databases live and die with their connection
//
// Records round-trip through JSON: struct json tags decide property names,
// and strings are stored NFC-normalized.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/recordstore/internal/ir"
	"github.com/roach88/recordstore/internal/querysql"
	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records(id, seq, doc)
const currentSchemaVersion = 1

// Store is a storage.Backend persisting records of type T in SQLite.
type Store[T any] struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler
	ids      storage.IDGenerator
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*config)

type config struct {
	ids    storage.IDGenerator
	logger *slog.Logger
}

// WithGenerator sets the generator used by CreateID. Default: storage.UUIDv7Generator.
func WithGenerator(gen storage.IDGenerator) Option {
	return func(c *config) {
		c.ids = gen
	}
}

// WithLogger sets the logger for pushdown decisions. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path (":memory:"
// for a private in-memory database). Applies required pragmas and the
// schema automatically.
//
// This function is idempotent - safe to call multiple times on one file.
func Open[T any](path string, opts ...Option) (*Store[T], error) {
	cfg := config{ids: storage.UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store[T]{
		db:       db,
		compiler: querysql.NewSQLCompiler(),
		ids:      cfg.ids,
		logger:   cfg.logger,
	}, nil
}

// Close closes the database connection.
func (s *Store[T]) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// Get implements storage.Backend.
func (s *Store[T]) Get(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}

	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, doc FROM records WHERE id IN ("+placeholders(len(ids))+")", params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	found, err := scanRecords[T](rows)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if rec, ok := found.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Add implements storage.Backend. The existence check and the inserts run
// in one transaction.
func (s *Store[T]) Add(ctx context.Context, entries []storage.Entry[T]) error {
	return s.write(ctx, entries, true)
}

// Put implements storage.Backend.
// ON CONFLICT keeps the existing seq, so an overwrite keeps its position.
func (s *Store[T]) Put(ctx context.Context, entries []storage.Entry[T]) error {
	return s.write(ctx, entries, false)
}

func (s *Store[T]) write(ctx context.Context, entries []storage.Entry[T], rejectExisting bool) (err error) {
	docs := make([]string, len(entries))
	for i, e := range entries {
		data, err := ir.MarshalCanonical(e.Record)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", e.ID, err)
		}
		docs[i] = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if rejectExisting {
		var taken []string
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			var one int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", e.ID).Scan(&one)
			switch {
			case err == nil || seen[e.ID]:
				taken = append(taken, e.ID)
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("check %s: %w", e.ID, err)
			}
			seen[e.ID] = true
		}
		if len(taken) > 0 {
			return fmt.Errorf("%w: %s", storage.ErrExists, strings.Join(taken, ", "))
		}
	}

	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, seq, doc)
			VALUES (?, (SELECT IFNULL(MAX(seq), 0) + 1 FROM records), ?)
			ON CONFLICT(id) DO UPDATE SET doc = excluded.doc
		`, e.ID, docs[i])
		if err != nil {
			return fmt.Errorf("write record %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete implements storage.Backend.
func (s *Store[T]) Delete(ctx context.Context, ids []string) (deleted []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	deleted = make([]string, 0, len(ids))
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", id, err)
		}
		if n > 0 {
			deleted = append(deleted, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

// Fetch implements storage.Backend.
//
// The query's leading filter runs in SQL when it is portable; the rest of
// the query (or all of it) is applied in memory to the rows in seq order.
func (s *Store[T]) Fetch(ctx context.Context, q query.Query[T]) ([]T, error) {
	if err := query.Check(q); err != nil {
		return nil, err
	}

	var pred query.Predicate
	rest := q
	if lead, remainder, ok := query.Leading(q); ok {
		if res := query.Portable(lead.Predicate()); res.IsPortable {
			pred, rest = lead.Predicate(), remainder
			s.logger.Debug("pushing filter down to sqlite", "filter", lead.String())
		} else {
			s.logger.Debug("filter evaluated in memory", "filter", lead.String(), "warnings", res.Warnings)
		}
	}

	stmt, params, err := s.compiler.CompileSelect(pred)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	found, err := scanRecords[T](rows)
	if err != nil {
		return nil, err
	}
	return query.Run(rest, found.ordered), nil
}

// CreateID implements storage.Backend.
func (s *Store[T]) CreateID(context.Context) (string, error) {
	return s.ids.Generate(), nil
}

type scanned[T any] struct {
	ordered []T
	byID    map[string]T
}

// scanRecords decodes (id, doc) rows and closes them.
func scanRecords[T any](rows *sql.Rows) (scanned[T], error) {
	defer rows.Close()

	out := scanned[T]{ordered: []T{}, byID: map[string]T{}}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return out, fmt.Errorf("scan record: %w", err)
		}
		var rec T
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return out, fmt.Errorf("decode record %s: %w", id, err)
		}
		out.ordered = append(out.ordered, rec)
		out.byID[id] = rec
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
