package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Every pooled connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
// Records are stored as JSON payloads; owner and document are lifted
// into columns for the grouped loads.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS purposes (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		payload JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_purposes_pair ON purposes(owner_id, document_id);

	CREATE TABLE IF NOT EXISTS highlights (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		ts_created DATETIME NOT NULL,
		payload JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_highlights_pair ON highlights(owner_id, document_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		payload JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_pair ON sessions(owner_id, document_id);

	CREATE TABLE IF NOT EXISTS canvases (
		owner_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		id TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		graph JSON NOT NULL,
		PRIMARY KEY (owner_id, document_id)
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}
