package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store for shared corpora.
//
// Ranking is delegated to InnoDB's FULLTEXT index in natural language mode,
// so scores are not comparable with MemStore or SQLiteStore. Queries whose
// terms are all shorter than innodb_ft_min_token_size match nothing.
//
// DSN format: "user:password@tcp(host:3306)/dbname?parseTime=true"
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to dsn, verifies the connection and creates the
// passages table if needed.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	const passagesTable = `
		CREATE TABLE IF NOT EXISTS passages (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			source VARCHAR(512) NOT NULL,
			ordinal INT NOT NULL,
			text MEDIUMTEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uk_source_ordinal (source(255), ordinal),
			INDEX idx_source (source(255)),
			FULLTEXT KEY ft_text (text)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	if _, err := m.db.ExecContext(ctx, passagesTable); err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}
	return nil
}

// AddPassages implements Writer.
func (m *MySQLStore) AddPassages(ctx context.Context, passages []Passage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if len(passages) == 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, src := range distinctSources(passages) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE source = ?`, src); err != nil {
			return 0, fmt.Errorf("failed to clear source %q: %w", src, err)
		}
	}

	// Multi-row inserts keep round trips down for large documents.
	const batch = 100
	for start := 0; start < len(passages); start += batch {
		end := min(start+batch, len(passages))
		chunk := passages[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*3)
		for i, p := range chunk {
			placeholders[i] = "(?, ?, ?)"
			args = append(args, p.Source, p.Ordinal, p.Text)
		}
		q := `INSERT INTO passages (source, ordinal, text) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("failed to insert passages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit passages: %w", err)
	}
	return len(passages), nil
}

// Search implements Retriever.
func (m *MySQLStore) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return []Passage{}, nil
	}
	if k <= 0 {
		k = 10
	}
	match := strings.Join(terms, " ")

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, source, ordinal, text, MATCH(text) AGAINST (? IN NATURAL LANGUAGE MODE) AS score
		FROM passages
		WHERE MATCH(text) AGAINST (? IN NATURAL LANGUAGE MODE)
		ORDER BY score DESC, id ASC
		LIMIT ?`, match, match, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	out := []Passage{}
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Source, &p.Ordinal, &p.Text, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (m *MySQLStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Close closes the connection pool. Calling Close more than once is safe.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database is reachable.
func (m *MySQLStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.db.PingContext(ctx)
}
