// Package cache persists timeline events in SQLite so a restart can show
// recent history before the first sync completes.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	room_id   TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	sender    TEXT NOT NULL,
	ts_ms     INTEGER NOT NULL,
	body      TEXT NOT NULL DEFAULT '',
	malformed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_events_room_ts ON events (room_id, ts_ms DESC);
CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	prev_batch TEXT NOT NULL DEFAULT ''
);
`

// Cache is a SQLite-backed event store.
type Cache struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, logger zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	return open(path, logger, "PRAGMA journal_mode = WAL")
}

// OpenInMemory opens a private in-memory cache.
func OpenInMemory(logger zerolog.Logger) (*Cache, error) {
	return open(":memory:", logger)
}

func open(dsn string, logger zerolog.Logger, pragmas ...string) (*Cache, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	// One connection: an in-memory database is per connection, and a single
	// writer avoids SQLITE_BUSY between our own goroutines.
	conn.SetMaxOpenConns(1)

	pragmas = append(pragmas, "PRAGMA busy_timeout = 5000")
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("cache: %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}

	return &Cache{db: conn, logger: logger}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores one event. Storing a known event id again is a no-op.
func (c *Cache) Put(ctx context.Context, ev timeline.Event) error {
	return c.PutMany(ctx, []timeline.Event{ev})
}

// PutMany stores events in one transaction.
func (c *Cache) PutMany(ctx context.Context, events []timeline.Event) error {
	if len(events) == 0 {
		return nil
	}
	return c.transactionWithRetry(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO events (room_id, event_id, sender, ts_ms, body, malformed)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range events {
			malformed := 0
			body := ev.Content.Text
			if ev.Content.Malformed() {
				malformed = 1
				body = ""
			}
			if _, err := stmt.ExecContext(ctx, ev.RoomID, ev.ID, ev.Sender, ev.Timestamp.UnixMilli(), body, malformed); err != nil {
				return fmt.Errorf("insert %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit events of a room, newest first.
func (c *Cache) Recent(ctx context.Context, roomID string, limit int) ([]timeline.Event, error) {
	if limit <= 0 {
		limit = timeline.HistoryPageSize
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, sender, ts_ms, body, malformed
		FROM events
		WHERE room_id = ?
		ORDER BY ts_ms DESC, rowid DESC
		LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("cache: recent %s: %w", roomID, err)
	}
	defer rows.Close()

	out := make([]timeline.Event, 0, limit)
	for rows.Next() {
		var (
			id, sender, body string
			tsMillis         int64
			malformed        bool
		)
		if err := rows.Scan(&id, &sender, &tsMillis, &body, &malformed); err != nil {
			return nil, fmt.Errorf("cache: scan: %w", err)
		}
		content := timeline.TextContent(body)
		if malformed {
			content = timeline.MalformedContent()
		}
		out = append(out, timeline.Event{
			ID:        id,
			RoomID:    roomID,
			Sender:    sender,
			Timestamp: timeline.FromMillis(tsMillis),
			Content:   content,
		})
	}
	return out, rows.Err()
}

// Rooms lists every room that has cached events or metadata.
func (c *Cache) Rooms(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT room_id FROM events
		UNION
		SELECT room_id FROM rooms
		ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("cache: rooms: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cache: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetPrevBatch records the pagination token for the next older page.
func (c *Cache) SetPrevBatch(ctx context.Context, roomID, token string) error {
	return c.upsertRoom(ctx, roomID, "prev_batch", token)
}

// PrevBatch returns the stored pagination token, or "".
func (c *Cache) PrevBatch(ctx context.Context, roomID string) (string, error) {
	return c.roomField(ctx, roomID, "prev_batch")
}

// SetRoomName remembers a room's display name.
func (c *Cache) SetRoomName(ctx context.Context, roomID, name string) error {
	return c.upsertRoom(ctx, roomID, "name", name)
}

// RoomName returns the remembered display name, or "".
func (c *Cache) RoomName(ctx context.Context, roomID string) (string, error) {
	return c.roomField(ctx, roomID, "name")
}

// column is one of the fixed names above, never user input.
func (c *Cache) upsertRoom(ctx context.Context, roomID, column, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO rooms (room_id, %[1]s) VALUES (?, ?)
		ON CONFLICT(room_id) DO UPDATE SET %[1]s = excluded.%[1]s`, column)
	return withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		_, err := c.db.ExecContext(ctx, query, roomID, value)
		return err
	})
}

func (c *Cache) roomField(ctx context.Context, roomID, column string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM rooms WHERE room_id = ?`, column), roomID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache: read %s for %s: %w", column, roomID, err)
	}
	return value, nil
}

// Prune drops events older than the newest keep per room.
func (c *Cache) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	start := time.Now()
	var deleted int64
	err := c.transactionWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM events WHERE rowid IN (
				SELECT rowid FROM (
					SELECT rowid, ROW_NUMBER() OVER (PARTITION BY room_id ORDER BY ts_ms DESC, rowid DESC) AS rn
					FROM events
				) WHERE rn > ?
			)`, keep)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	c.logger.Debug().Int64("deleted", deleted).Dur("took", time.Since(start)).Msg("pruned event cache")
	return deleted, nil
}
