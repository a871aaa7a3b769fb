// Package history provides a SQLite-backed index over the diff log so
// the dashboard's update feed can query recent curation activity by
// outcome, target, or turn range without scanning JSONL. The JSONL log
// remains the source of truth; the index is rebuilt from it on open.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/difflog"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS deltas (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	at          DATETIME NOT NULL,
	turn        INTEGER NOT NULL,
	target      TEXT NOT NULL,
	change_type TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_deltas_turn ON deltas(turn);
CREATE INDEX IF NOT EXISTS idx_deltas_target ON deltas(target);
CREATE INDEX IF NOT EXISTS idx_deltas_outcome ON deltas(outcome);
`

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Insert records one diff log entry.
func (db *DB) Insert(e difflog.Entry) error {
	_, err := db.conn.Exec(`
		INSERT INTO deltas (at, turn, target, change_type, outcome, reason, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.At, e.Turn, e.Target, string(e.ChangeType), e.Outcome, e.Reason, e.Content)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Rebuild replaces the index content with the full replayed log.
func (db *DB) Rebuild(entries []difflog.Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM deltas`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO deltas (at, turn, target, change_type, outcome, reason, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.At, e.Turn, e.Target, string(e.ChangeType), e.Outcome, e.Reason, e.Content); err != nil {
			return fmt.Errorf("history: insert during rebuild: %w", err)
		}
	}
	return tx.Commit()
}

// Row is one feed item returned by queries.
type Row struct {
	Seq        int64     `json:"seq"`
	At         time.Time `json:"at"`
	Turn       int       `json:"turn"`
	Target     string    `json:"target"`
	ChangeType string    `json:"change_type"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
}

// Recent returns the newest entries, optionally filtered by outcome
// prefix ("applied", "rejected") and/or target. Results are newest first.
func (db *DB) Recent(limit int, outcome, target string) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT seq, at, turn, target, change_type, outcome, reason FROM deltas`
	var args []any
	var where []string
	if outcome != "" {
		where = append(where, `outcome LIKE ?`)
		args = append(args, outcome+"%")
	}
	if target != "" {
		where = append(where, `target = ?`)
		args = append(args, target)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Seq, &r.At, &r.Turn, &r.Target, &r.ChangeType, &r.Outcome, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TurnRange returns entries with turn in [from, to], oldest first.
func (db *DB) TurnRange(from, to int) ([]Row, error) {
	rows, err := db.conn.Query(`
		SELECT seq, at, turn, target, change_type, outcome, reason
		FROM deltas
		WHERE turn >= ? AND turn <= ?
		ORDER BY seq ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("history: turn range: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Seq, &r.At, &r.Turn, &r.Target, &r.ChangeType, &r.Outcome, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
