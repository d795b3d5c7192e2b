// Package sqlite persists the agent action ledger. Keeping accepted
// actions in a table means the trailing rate window survives restarts
// instead of resetting to zero every time the process comes up.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/murmurfeed/murmur/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_actions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tool       TEXT NOT NULL,
	target     TEXT NOT NULL,
	applied_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_actions_applied_at ON agent_actions (applied_at);
`

// Ledger implements domain.Ledger using SQLite.
type Ledger struct {
	db *sql.DB
}

var _ domain.Ledger = (*Ledger)(nil)

// Open opens (or creates) the ledger database at path, verifies the
// connection, and ensures the schema exists. The caller should call Close
// when the ledger is no longer needed.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one accepted action.
func (l *Ledger) Record(ctx context.Context, tool, target string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO agent_actions (tool, target, applied_at) VALUES (?, ?, ?)`,
		tool, target, at.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// CountSince returns the number of accepted actions at or after t.
func (l *Ledger) CountSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_actions WHERE applied_at >= ?`,
		t.UTC().UnixMilli(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}

// Prune deletes ledger rows older than the retention horizon. The window
// queries only ever look back a minute; anything older is bookkeeping.
func (l *Ledger) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM agent_actions WHERE applied_at < ?`,
		olderThan.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune actions: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
