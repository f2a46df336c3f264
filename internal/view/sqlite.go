package view

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - kv table
const currentSchemaVersion = 1

// DefaultCacheSize is the number of decoded values kept in the read cache.
const DefaultCacheSize = 4096

// rangeBatch bounds how many rows one Range query holds open.
// Rows are closed between batches so a consumer may call Get mid-iteration
// on a single-connection pool.
const rangeBatch = 256

// SQLite is a durable View backed by a SQLite file.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, matching the single-writer model
//
// Point reads go through an LRU cache that only the writer invalidates.
type SQLite struct {
	db *sql.DB

	cacheMu sync.Mutex
	cache   *lru.Cache
	gen     uint64 // bumped on every commit
}

// OpenSQLite creates or opens a View at path. Idempotent.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open view database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to view database: %w", err)
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

	cache, err := lru.New(DefaultCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &SQLite{db: db, cache: cache}, nil
}

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

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements Reader.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.cacheMu.Lock()
	if v, ok := s.cache.Get(key); ok {
		s.cacheMu.Unlock()
		return append([]byte(nil), v.([]byte)...), true, nil
	}
	gen := s.gen
	s.cacheMu.Unlock()

	value, ok, err := getRow(ctx, s.db, key)
	if err != nil || !ok {
		return nil, false, err
	}

	// A commit between the miss and the read may have made value stale.
	s.cacheMu.Lock()
	if s.gen == gen {
		s.cache.Add(key, append([]byte(nil), value...))
	}
	s.cacheMu.Unlock()

	return value, true, nil
}

// Range implements Reader.
func (s *SQLite) Range(ctx context.Context, lo, hi string) iter.Seq2[KV, error] {
	return rangeRows(ctx, s.db, lo, hi)
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, fn func(Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("view update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	t := &sqliteTxn{tx: tx, written: make(map[string][]byte)}
	if err := fn(t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("view update: commit: %w", err)
	}

	s.cacheMu.Lock()
	s.gen++
	for k, v := range t.written {
		s.cache.Add(k, v)
	}
	s.cacheMu.Unlock()
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getRow(ctx context.Context, q queryer, key string) ([]byte, bool, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// rangeRows pages through [lo, hi) in batches, closing rows between pages.
func rangeRows(ctx context.Context, q queryer, lo, hi string) iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		cursor := lo
		inclusive := true
		for {
			batch, err := rangeBatchRows(ctx, q, cursor, inclusive, hi)
			if err != nil {
				yield(KV{}, err)
				return
			}
			for _, kv := range batch {
				if !yield(kv, nil) {
					return
				}
			}
			if len(batch) < rangeBatch {
				return
			}
			cursor = batch[len(batch)-1].Key
			inclusive = false
		}
	}
}

func rangeBatchRows(ctx context.Context, q queryer, from string, inclusive bool, hi string) ([]KV, error) {
	op := ">"
	if inclusive {
		op = ">="
	}
	query := `SELECT key, value FROM kv WHERE key ` + op + ` ? AND (? = '' OR key < ?) ORDER BY key COLLATE BINARY ASC LIMIT ?`
	rows, err := q.QueryContext(ctx, query, from, hi, hi, rangeBatch)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("range scan: %w", err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range iterate: %w", err)
	}
	return out, nil
}

type sqliteTxn struct {
	tx      *sql.Tx
	written map[string][]byte
}

func (t *sqliteTxn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return getRow(ctx, t.tx, key)
}

func (t *sqliteTxn) Range(ctx context.Context, lo, hi string) iter.Seq2[KV, error] {
	return rangeRows(ctx, t.tx, lo, hi)
}

func (t *sqliteTxn) Put(ctx context.Context, key string, value []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	t.written[key] = append([]byte(nil), value...)
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
