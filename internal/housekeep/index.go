package housekeep

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a rebuildable (created_at, guid) secondary index over a
// session store, avoiding a full directory scan on every prune cycle
// for large stores. It is never a second source of truth: Rebuild
// always repopulates it from the store's own metadata files, so a
// corrupted or stale index file is simply discarded and rebuilt.
// Built on modernc.org/sqlite, the same pure-Go driver the run-record
// store uses, applied here as a narrower secondary index instead.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS session_index (
	guid TEXT PRIMARY KEY,
	group_name TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_index_created_at ON session_index(created_at);
`

// OpenIndex opens (creating if necessary) the sqlite index file at dsn.
func OpenIndex(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("housekeep: open index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("housekeep: create index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// IndexEntry is one row of the secondary index.
type IndexEntry struct {
	GUID      string
	Group     string
	SizeBytes int
	CreatedAt time.Time
}

// Rebuild replaces the index contents with the given entries, sourced
// from a fresh scan of the session store's metadata files.
func (idx *Index) Rebuild(ctx context.Context, entries []IndexEntry) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("housekeep: begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_index`); err != nil {
		return fmt.Errorf("housekeep: clear index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO session_index (guid, group_name, size_bytes, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("housekeep: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.GUID, e.Group, e.SizeBytes, e.CreatedAt); err != nil {
			return fmt.Errorf("housekeep: insert index row: %w", err)
		}
	}

	return tx.Commit()
}

// OldestFirst returns entries ordered oldest-created first (ties broken
// by guid), optionally filtered to a group.
func (idx *Index) OldestFirst(ctx context.Context, group string) ([]IndexEntry, error) {
	query := `SELECT guid, group_name, size_bytes, created_at FROM session_index`
	args := []any{}
	if group != "" {
		query += ` WHERE group_name = ?`
		args = append(args, group)
	}
	query += ` ORDER BY created_at ASC, guid ASC`

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("housekeep: query index: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.GUID, &e.Group, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("housekeep: scan index row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
