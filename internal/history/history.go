// Copyright 2026 Devlease Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history stores coordination events in a SQLite database so they
// can be queried after the fact (who held registrations, when stops were
// requested, how drains ended). Unlike the append-only audit log, history
// is meant to be read back, so it gets a real query surface.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded coordination event.
type Entry struct {
	ID            int64
	Timestamp     time.Time
	Event         string
	CorrelationID string
	AgentID       string
	PID           int
	Count         int
	Reason        string
	Success       bool
	Error         string
}

// DB is a SQLite-backed event history.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at the given path.
// The special path ":memory:" creates an in-memory database for tests.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode so a reader (status, history list) never blocks a writer.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	h := &DB{db: db}
	if err := h.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return h, nil
}

// migrate creates the database schema.
func (h *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			event TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			agent_id TEXT,
			pid INTEGER,
			count INTEGER,
			reason TEXT,
			success INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event ON events(event)`,
	}
	for _, migration := range migrations {
		if _, err := h.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Append records one event. A zero Timestamp is filled with the current
// time.
func (h *DB) Append(ctx context.Context, entry Entry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO events (timestamp, event, correlation_id, agent_id, pid, count, reason, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Unix(), entry.Event, entry.CorrelationID, entry.AgentID,
		entry.PID, entry.Count, entry.Reason, entry.Success, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, timestamp, event, correlation_id, agent_id, pid, count, reason, success, error
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByEvent returns up to limit entries of one event type, newest first.
func (h *DB) ByEvent(ctx context.Context, event string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, timestamp, event, correlation_id, agent_id, pid, count, reason, success, error
		 FROM events WHERE event = ? ORDER BY id DESC LIMIT ?`, event, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Prune deletes entries older than the cutoff and returns how many went.
func (h *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (h *DB) Close() error {
	return h.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var ts int64
		var agentID, reason, errMsg sql.NullString
		var pid, count sql.NullInt64

		if err := rows.Scan(&entry.ID, &ts, &entry.Event, &entry.CorrelationID,
			&agentID, &pid, &count, &reason, &entry.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		entry.Timestamp = time.Unix(ts, 0)
		entry.AgentID = agentID.String
		entry.PID = int(pid.Int64)
		entry.Count = int(count.Int64)
		entry.Reason = reason.String
		entry.Error = errMsg.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return entries, nil
}
