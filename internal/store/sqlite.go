package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/gradbridge/internal/model"

	_ "modernc.org/sqlite"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    functions   TEXT NOT NULL,
    loaded_at   DATETIME NOT NULL,
    unloaded_at DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id               TEXT PRIMARY KEY,
    kind             TEXT NOT NULL,
    session_id       TEXT,
    phase            TEXT,
    from_state       TEXT NOT NULL,
    to_state         TEXT NOT NULL,
    released         INTEGER NOT NULL,
    contexts_dropped INTEGER NOT NULL,
    created_at       DATETIME NOT NULL
)`

// ErrNotFound is returned when a session is not found.
var ErrNotFound = errors.New("session not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for name, ddl := range map[string]string{"sessions": createSessionsTable, "events": createEventsTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new model session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
	fns, err := json.Marshal(sess.Functions)
	if err != nil {
		return fmt.Errorf("encode functions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, status, functions, loaded_at, unloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Status, string(fns), sess.LoadedAt, sess.UnloadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	sess := &model.Session{}
	var fns string
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Status, &fns, &sess.LoadedAt, &sess.UnloadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fns), &sess.Functions); err != nil {
		return nil, fmt.Errorf("decode functions: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, name, status, functions, loaded_at, unloaded_at
		FROM sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a paginated list of sessions ordered by loaded_at DESC,
// along with the total count of all sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, status, functions, loaded_at, unloaded_at
		FROM sessions ORDER BY loaded_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, total, nil
}

// MarkSessionUnloaded moves a loaded session to the unloaded status.
func (s *SQLiteStore) MarkSessionUnloaded(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = ?, unloaded_at = ? WHERE id = ? AND status = ?",
		model.SessionUnloaded, at, id, model.SessionLoaded,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEvent appends a lifecycle event to the journal.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e *model.LifecycleEvent) error {
	if !model.ValidKind(e.Kind) {
		return fmt.Errorf("record event %q: %w", e.Kind, ErrInvalidKind)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (
			id, kind, session_id, phase, from_state, to_state,
			released, contexts_dropped, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.SessionID, e.Phase, e.FromState, e.ToState,
		e.Released, e.ContextsDropped, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns a paginated list of events, newest first, along with the
// total number of events in the journal.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit, offset int) ([]*model.LifecycleEvent, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	// ULIDs generated in one process sort in creation order.
	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, session_id, phase, from_state, to_state,
			released, contexts_dropped, created_at
		FROM events ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.LifecycleEvent
	for rows.Next() {
		e := &model.LifecycleEvent{}
		if err := rows.Scan(
			&e.ID, &e.Kind, &e.SessionID, &e.Phase, &e.FromState, &e.ToState,
			&e.Released, &e.ContextsDropped, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}

	return events, total, nil
}

// GetEventStats aggregates the journal by kind and sums the reported
// releases.
func (s *SQLiteStore) GetEventStats(ctx context.Context) (*EventStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(released), 0), COALESCE(SUM(contexts_dropped), 0)
		FROM events GROUP BY kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	defer rows.Close()

	stats := &EventStats{CountByKind: make(map[string]int)}
	for rows.Next() {
		var kind string
		var count, released, dropped int
		if err := rows.Scan(&kind, &count, &released, &dropped); err != nil {
			return nil, fmt.Errorf("scan event stats: %w", err)
		}
		stats.CountByKind[kind] = count
		stats.Total += count
		stats.Released += released
		stats.ContextsDropped += dropped
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event stats: %w", err)
	}
	return stats, nil
}

// PruneEvents deletes journal events created before the cutoff and returns
// how many were removed.
func (s *SQLiteStore) PruneEvents(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}
