// Package logrelay forwards a task's init log and run log to a log sink.
//
// The init log is written synchronously, one line at a time. The run log is
// buffered and flushed on a fixed wall clock interval by an AsyncRelay.
package logrelay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Sink stores documents in named collections.
type Sink interface {
	Write(ctx context.Context, collection string, docs ...any) error
}

// InitCollection is the collection holding the init log of a task.
func InitCollection(taskID int64) string {
	return fmt.Sprintf("task%d_init", taskID)
}

// RunCollection is the collection holding the run log of a task.
func RunCollection(taskID int64) string {
	return fmt.Sprintf("task%d_run", taskID)
}

// SQLiteSink stores documents as JSON rows in a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the log database at path. ":memory:" keeps
// the database in memory.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// the supervisor and its task process share the file
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open log database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		doc TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	return err
}

// Write inserts docs into collection in a single transaction.
func (s *SQLiteSink) Write(ctx context.Context, collection string, docs ...any) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, doc) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, collection, string(b)); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	return tx.Commit()
}

// Documents returns the raw JSON documents of collection in insertion
// order.
func (s *SQLiteSink) Documents(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, json.RawMessage(doc))
	}
	return docs, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// MemorySink keeps documents in memory.
type MemorySink struct {
	mu    sync.Mutex
	docs  map[string][]any
	err   error
	calls int
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{docs: make(map[string][]any)}
}

// FailWith makes every later Write return err.
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemorySink) Write(ctx context.Context, collection string, docs ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if len(docs) == 0 {
		return nil
	}
	m.calls++
	m.docs[collection] = append(m.docs[collection], docs...)
	return nil
}

// Documents returns a copy of the documents written to collection.
func (m *MemorySink) Documents(collection string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.docs[collection]...)
}

// Writes returns the number of non-empty writes.
func (m *MemorySink) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
