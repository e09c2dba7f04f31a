package shared

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMs is how long a connection waits on a lock held by another sqlgym process
// (e.g. `watch` running while `submit` writes a verdict).
const busyTimeoutMs = 5000

// NewDatabase opens the SQLite database at path, or an in-memory one for ":memory:".
func NewDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSource(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	return db, nil
}

func dataSource(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("%s?_busy_timeout=%d", path, busyTimeoutMs)
}

// ConfigureDatabase applies the pool limits from [DatabaseConfig]. Non-positive values keep the driver defaults.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
}
