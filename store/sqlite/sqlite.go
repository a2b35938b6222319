/*
Package sqlite provides a SQLite-backed eventlog.Store.

PURPOSE:
  Durable storage for the event log, so a restarted process can replay the
  log and rebuild the live state.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the events table
  - No DELETE statements on the events table
  - The event id is the primary key; a second write of an id fails with
    eventlog.ErrDuplicateEvent

KEY TABLES:
  events: one row per event, payload kept as the JSON record it was
          written with

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/kpsmart.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  log, err := eventlog.Open(ctx, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - eventlog/store.go: Store interface
  - eventlog/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/kpsmart/eventlog"
)

// Store implements eventlog.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and the
	// log has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Events (append-only log)
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		recorded_at TEXT NOT NULL,
		op TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		correlation_id TEXT,
		payload TEXT
	);

	-- Entity history lookups
	CREATE INDEX IF NOT EXISTS idx_events_kind_entity
		ON events(kind, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (eventlog.Store interface)
// =============================================================================

// Append writes one event.
func (s *Store) Append(ctx context.Context, evt eventlog.Event) error {
	query := `
		INSERT INTO events (id, recorded_at, op, kind, entity_id, correlation_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		int64(evt.ID),
		evt.Timestamp.UTC().Format(time.RFC3339Nano),
		string(evt.Op),
		string(evt.Kind),
		int64(evt.EntityID),
		nullString(evt.CorrelationID),
		nullString(string(evt.Payload)),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return eventlog.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to append event %d: %w", evt.ID, err)
	}
	return nil
}

// List returns up to limit events after afterID. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, afterID uint64, limit int) ([]eventlog.Event, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, recorded_at, op, kind, entity_id, correlation_id, payload
		FROM events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, int64(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []eventlog.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Last returns the highest stored id, 0 when empty.
func (s *Store) Last(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last event: %w", err)
	}
	return uint64(last.Int64), nil
}

func scanEvent(rows *sql.Rows) (eventlog.Event, error) {
	var (
		evt           eventlog.Event
		id, entityID  int64
		recordedAt    string
		op, kind      string
		correlationID sql.NullString
		payload       sql.NullString
	)

	if err := rows.Scan(&id, &recordedAt, &op, &kind, &entityID, &correlationID, &payload); err != nil {
		return evt, fmt.Errorf("failed to scan event: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return evt, fmt.Errorf("event %d: bad timestamp %q: %w", id, recordedAt, err)
	}

	evt.ID = uint64(id)
	evt.Timestamp = ts.UTC()
	evt.Op = eventlog.Op(op)
	evt.Kind = eventlog.Kind(kind)
	evt.EntityID = uint64(entityID)
	evt.CorrelationID = correlationID.String
	if payload.Valid {
		evt.Payload = json.RawMessage(payload.String)
	}
	return evt, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

var _ eventlog.Store = (*Store)(nil)
