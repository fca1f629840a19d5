// Package store provides a thin, append-only sqlite log of TaskResult rows,
// the "optional database handle" TaskContext exposes per spec.md §4.9. It
// is deliberately narrow: an operational journal of what ran and whether it
// succeeded, not persistence of anything the tasks create on-chain (that
// remains an explicit non-goal), grounded the same way the teacher's own
// geth-17-indexer solution opens a modernc.org/sqlite handle and creates its
// table on first use.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS task_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_name TEXT NOT NULL,
	success INTEGER NOT NULL,
	message TEXT NOT NULL,
	tx_hash TEXT,
	recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// Open opens (creating if necessary) a sqlite database at path and ensures
// the task_results table exists. Callers own the returned *sql.DB and must
// Close it.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return db, nil
}

// RecordResult appends one task outcome to the journal. txHash may be empty.
func RecordResult(ctx context.Context, db *sql.DB, taskName string, success bool, message, txHash string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO task_results (task_name, success, message, tx_hash) VALUES (?, ?, ?, ?)`,
		taskName, success, message, nullIfEmpty(txHash),
	)
	if err != nil {
		return fmt.Errorf("store: record result: %w", err)
	}
	return nil
}

// CountResults returns the number of journaled rows for taskName, or across
// all tasks when taskName is empty. Used by tests and the status reporting
// a future CLI could build on top of this package.
func CountResults(ctx context.Context, db *sql.DB, taskName string) (int, error) {
	var (
		row *sql.Row
	)
	if taskName == "" {
		row = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_results`)
	} else {
		row = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_results WHERE task_name = ?`, taskName)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count results: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
