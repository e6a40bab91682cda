package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"crosslock/core/events"
)

// Storage is the resolver's durable event journal. The in-memory recorder is
// bounded, so consumers that fall behind or restart replay from here.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("resolverd storage path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS swap_events (
    sequence    INTEGER PRIMARY KEY,
    type        TEXT NOT NULL,
    order_hash  TEXT NOT NULL DEFAULT '',
    attributes  TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_swap_events_order ON swap_events(order_hash);
CREATE INDEX IF NOT EXISTS idx_swap_events_type ON swap_events(type);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertEvent persists one emitted event. Replaying an already-stored sequence
// is a no-op so the drain loop can resume from an arbitrary cursor.
func (s *Storage) InsertEvent(ctx context.Context, evt events.Event) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO swap_events(sequence, type, order_hash, attributes, recorded_at)
        VALUES(?, ?, ?, ?, ?)
        ON CONFLICT(sequence) DO NOTHING
    `, evt.Sequence, evt.Type, evt.Attributes["orderHash"], string(attrs), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events with a sequence strictly greater than
// the cursor, oldest first. A non-positive limit defaults to 100.
func (s *Storage) ListEvents(ctx context.Context, cursor int64, limit int) ([]events.Event, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT sequence, type, attributes
        FROM swap_events
        WHERE sequence > ?
        ORDER BY sequence ASC
        LIMIT ?
    `, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := make([]events.Event, 0, limit)
	for rows.Next() {
		var (
			evt   events.Event
			attrs string
		)
		if err := rows.Scan(&evt.Sequence, &evt.Type, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// EventsForOrder returns the full journal for one order hash, oldest first.
func (s *Storage) EventsForOrder(ctx context.Context, orderHash string) ([]events.Event, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT sequence, type, attributes
        FROM swap_events
        WHERE order_hash = ?
        ORDER BY sequence ASC
    `, strings.ToLower(strings.TrimSpace(orderHash)))
	if err != nil {
		return nil, fmt.Errorf("query order events: %w", err)
	}
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var (
			evt   events.Event
			attrs string
		)
		if err := rows.Scan(&evt.Sequence, &evt.Type, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LastSequence returns the highest persisted sequence, or zero for an empty
// journal.
func (s *Storage) LastSequence(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM swap_events`)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return seq, nil
}
