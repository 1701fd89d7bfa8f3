package infra

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const orderSchema = `
CREATE TABLE IF NOT EXISTS project_order (
	path     TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);`

// OrderStore persists the user's custom project ordering in SQLite.
// WAL mode + busy timeout so a second app launch reading concurrently
// does not error out.
type OrderStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenOrderStore opens (creating if needed) the order database at path.
func OpenOrderStore(path string) (*OrderStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create order store dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open order store: %w", err)
	}
	if _, err := db.Exec(orderSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init order store schema: %w", err)
	}
	return &OrderStore{db: db}, nil
}

// Positions returns the persisted position per project path.
func (s *OrderStore) Positions() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT path, position FROM project_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make(map[string]int)
	for rows.Next() {
		var path string
		var pos int
		if err := rows.Scan(&path, &pos); err != nil {
			return nil, err
		}
		positions[path] = pos
	}
	return positions, rows.Err()
}

// Set replaces the stored ordering with the given path sequence.
func (s *OrderStore) Set(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM project_order`); err != nil {
		return err
	}
	for i, path := range paths {
		if _, err := tx.Exec(`INSERT INTO project_order (path, position) VALUES (?, ?)`, path, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *OrderStore) Close() error {
	return s.db.Close()
}
