package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the downloads table if it
// doesn't exist. Use ":memory:" for a throwaway ledger.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY,
		resource_id TEXT NOT NULL,
		source TEXT,
		file_path TEXT UNIQUE,
		downloaded_at TEXT,
		status TEXT DEFAULT 'downloaded',
		recorded_by TEXT
	);
	CREATE INDEX IF NOT EXISTS downloads_status_downloaded_at ON downloads (status, downloaded_at);`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create downloads table: %w", err)
	}

	return db, nil
}
