package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"modernc.org/sqlite"
)

func init() {
	// fold lower-cases with Go's Unicode rules; SQLite's lower() and LIKE
	// only fold ASCII.
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		case nil:
			return nil, nil
		}
		return nil, fmt.Errorf("fold: unsupported argument type %T", args[0])
	})
}

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps the whole corpus in a single-file database and is the default
// backend for the CLI. Designed for:
//   - Local use with zero setup
//   - Corpora of a few thousand passages
//   - Tests (use a file under t.TempDir())
//
// Search narrows candidates in SQL to passages whose Unicode-folded text
// contains a query term, then ranks them in Go with the same scoring as
// MemStore, so both backends return identical results for identical corpora.
//
// Schema:
//   - passages: id, source, ordinal, text; unique on (source, ordinal)
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path.
//
// The path may be a file ("./lexgraph.db") or ":memory:".
//
// Example:
//
//	st, err := store.NewSQLiteStore("./lexgraph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// ":memory:" databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const passagesTable = `
		CREATE TABLE IF NOT EXISTS passages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (source, ordinal)
		)`
	if _, err := s.db.ExecContext(ctx, passagesTable); err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}

	const sourceIndex = `CREATE INDEX IF NOT EXISTS idx_passages_source ON passages (source)`
	if _, err := s.db.ExecContext(ctx, sourceIndex); err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}
	return nil
}

// AddPassages implements Writer. All passages are written in one
// transaction; earlier passages of the same sources are removed first.
func (s *SQLiteStore) AddPassages(ctx context.Context, passages []Passage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if len(passages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, src := range distinctSources(passages) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE source = ?`, src); err != nil {
			return 0, fmt.Errorf("failed to clear source %q: %w", src, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO passages (source, ordinal, text) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if _, err := stmt.ExecContext(ctx, p.Source, p.Ordinal, p.Text); err != nil {
			return 0, fmt.Errorf("failed to insert passage %s#%d: %w", p.Source, p.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit passages: %w", err)
	}
	return len(passages), nil
}

// Search implements Retriever.
func (s *SQLiteStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return []Passage{}, nil
	}

	clauses := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, t := range terms {
		clauses[i] = "instr(fold(text), ?) > 0"
		args[i] = t
	}
	q := `SELECT id, source, ordinal, text FROM passages WHERE ` + strings.Join(clauses, " OR ") + ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var candidates []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Source, &p.Ordinal, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}

	return rank(candidates, terms, k), nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Close closes the database. Calling Close more than once is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
