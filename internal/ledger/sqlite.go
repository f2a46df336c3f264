package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/haggle/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a durable log backed by a SQLite file. Processes sharing the
// file share one total order; Subscribe only signals appends made through
// this handle, so cross-process readers poll.
type SQLite struct {
	db     *sql.DB
	signal signaller
}

// OpenSQLite creates or opens a log at path. Idempotent.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to log database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements Log.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a duplicate id returns
// the existing seq.
func (s *SQLite) Append(ctx context.Context, rec Record) (Receipt, error) {
	if err := validate(rec); err != nil {
		return Receipt{}, err
	}
	payload, err := ir.MarshalCanonical(rec.Payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("append: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entries (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, string(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("append: insert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return Receipt{}, fmt.Errorf("append: rows affected: %w", err)
	}

	receipt := Receipt{ID: rec.ID, Duplicate: rows == 0}
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM entries WHERE id = ?`, rec.ID).Scan(&receipt.Seq); err != nil {
		return Receipt{}, fmt.Errorf("append: select seq: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("append: commit: %w", err)
	}

	if !receipt.Duplicate {
		s.signal.notify()
	}
	return receipt, nil
}

// Read implements Log. Results are ordered by seq ASC.
func (s *SQLite) Read(ctx context.Context, after int64, limit int) ([]Committed, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, payload FROM entries
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()

	out := []Committed{}
	for rows.Next() {
		var (
			c       Committed
			payload string
		)
		if err := rows.Scan(&c.Seq, &c.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
			// Keep the slot so readers still advance past it; apply skips
			// entries whose payload does not decode.
			c.Payload = ir.Object{}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Subscribe implements Log.
func (s *SQLite) Subscribe() (<-chan struct{}, func()) {
	return s.signal.subscribe()
}

// Head returns the highest committed seq, or 0 for an empty log.
func (s *SQLite) Head(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entries`).Scan(&seq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("head: %w", err)
	}
	return seq.Int64, nil
}
