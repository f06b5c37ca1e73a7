package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Join(ErrDatabaseOpenFailed, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, errors.Join(ErrInitializeSchemaFailed, err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		target_key TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_id ON build_events(build_id);
	CREATE INDEX IF NOT EXISTS idx_target_key ON build_events(target_key);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON build_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_event_type ON build_events(event_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, buildID, targetKey, eventType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timestamp := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO build_events (build_id, target_key, event_type, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
		buildID, targetKey, eventType, timestamp, payload,
	)
	if err != nil {
		return errors.Join(ErrEventAppendFailed, err)
	}

	return nil
}

// GetByBuildID retrieves all events for a specific build session.
func (s *SQLiteStore) GetByBuildID(ctx context.Context, buildID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, target_key, event_type, timestamp, payload FROM build_events WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return nil, errors.Join(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetByTargetKey retrieves all events recorded for a target key.
func (s *SQLiteStore) GetByTargetKey(ctx context.Context, targetKey string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, target_key, event_type, timestamp, payload FROM build_events WHERE target_key = ? ORDER BY id",
		targetKey,
	)
	if err != nil {
		return nil, errors.Join(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetRange retrieves events within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, target_key, event_type, timestamp, payload FROM build_events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, errors.Join(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e BaseEvent
		var timestampUnix int64

		err := rows.Scan(&e.EventID, &e.EventBuildID, &e.EventTargetKey, &e.EventType, &timestampUnix, &e.EventPayload)
		if err != nil {
			return nil, errors.Join(ErrEventScanFailed, err)
		}

		e.EventTimestamp = time.Unix(timestampUnix, 0)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrEventQueryFailed, err)
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
