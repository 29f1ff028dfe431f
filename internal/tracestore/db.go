// Package tracestore records accelerometer samples, GPS fixes, fused
// snapshots, and detector events for each run into a pure-Go SQLite
// database, so a recorded run can be replayed deterministically through a
// fresh engine for regression testing or offline charting.
package tracestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connected to the trace store schema.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) a trace store database at path and
// applies any pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tracestore: open %q: %w", path, err)
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tracestore: migrate %q: %w", path, err)
	}
	return db, nil
}
