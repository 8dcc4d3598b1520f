package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pagesmith/pagesmith/internal/session"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Journal is a session.Journal backed by SQLite. Calls and events are
// appended as they happen and can be read back per session.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path. The
// caller closes it with Close.
//
// The database is opened with WAL mode when wal is set, the given busy
// timeout in milliseconds, and a single connection since SQLite
// serialises writes.
func Open(ctx context.Context, path string, wal bool, busyTimeout int) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if wal {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Ping checks the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// RecordCall implements session.Journal.
func (j *Journal) RecordCall(ctx context.Context, sessionID string, call session.ToolCall) error {
	args := string(call.Args)
	if args == "" {
		args = "{}"
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO calls (session_id, call_id, tool, args, turn)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, call.ID, call.Tool, args, call.Turn,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record call: %w", err)
	}
	return nil
}

// RecordEvent implements session.Journal.
func (j *Journal) RecordEvent(ctx context.Context, ev session.Event) error {
	var data string
	if ev.Data != nil {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("sqlite: marshal event data: %w", err)
		}
		data = string(raw)
	}
	var kind, msg string
	if ev.Error != nil {
		kind, msg = ev.Error.Kind, ev.Error.Message
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, type, call_id, tool, turn, content, data, error_kind, error_message, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Session, ev.Seq, string(ev.Type), ev.CallID, ev.Tool, ev.Turn,
		ev.Content, data, kind, msg, ev.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record event: %w", err)
	}
	return nil
}

// Calls returns the calls of a session in the order they were recorded.
func (j *Journal) Calls(ctx context.Context, sessionID string) ([]session.ToolCall, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT call_id, tool, args, turn FROM calls
		WHERE session_id = ?
		ORDER BY rowid`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.ToolCall
	for rows.Next() {
		var (
			c    session.ToolCall
			args string
		)
		if err := rows.Scan(&c.ID, &c.Tool, &args, &c.Turn); err != nil {
			return nil, fmt.Errorf("sqlite: scan call: %w", err)
		}
		c.Args = json.RawMessage(args)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: calls rows: %w", err)
	}
	return out, nil
}

// Events returns the emitted events of a session in sequence order. Data
// is returned as raw JSON.
func (j *Journal) Events(ctx context.Context, sessionID string) ([]session.Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, type, call_id, tool, turn, content, data, error_kind, error_message, emitted_at
		FROM events
		WHERE session_id = ?
		ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.Event
	for rows.Next() {
		var (
			ev              session.Event
			typ, data, at   string
			kind, errorText string
		)
		if err := rows.Scan(&ev.Seq, &typ, &ev.CallID, &ev.Tool, &ev.Turn, &ev.Content, &data, &kind, &errorText, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		ev.Session = sessionID
		ev.Type = session.EventType(typ)
		if data != "" {
			ev.Data = json.RawMessage(data)
		}
		if kind != "" {
			ev.Error = &session.ErrorInfo{Kind: kind, Message: errorText}
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			ev.Time = t
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: events rows: %w", err)
	}
	return out, nil
}

// Sessions lists the IDs of journaled sessions, most recent first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id FROM calls
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC, session_id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// trimLayout matches the created_at default of the calls table and sorts
// the same way as RFC 3339 timestamps with a fractional part.
const trimLayout = "2006-01-02T15:04:05.000Z"

// Trim deletes calls and events recorded before the cutoff and returns the
// number of rows removed.
func (j *Journal) Trim(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(trimLayout)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin trim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM events WHERE emitted_at < ?`,
		`DELETE FROM calls WHERE created_at < ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("sqlite: trim: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit trim: %w", err)
	}
	return total, nil
}
