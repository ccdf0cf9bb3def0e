package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manpreetbhatti/readtrail/internal/history"
)

// MemoryDSN keeps the database inside the process; it vanishes on exit.
const MemoryDSN = ":memory:"

// Database is a history.Store backed by SQLite.
type Database struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ history.Store  = (*Database)(nil)
	_ history.Pruner = (*Database)(nil)
)

func New(dsn string) (*Database, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database lives as long as its connection, so the pool
	// holds exactly one and never recycles it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS path_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '[]',
		selected_words TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (room_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_path_records_room_id ON path_records(room_id, id);
	CREATE INDEX IF NOT EXISTS idx_path_records_updated_at ON path_records(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) SavePath(ctx context.Context, roomID, userID, color string, path []int) error {
	if path == nil {
		path = []int{}
	}
	encoded, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}

	now := d.now().UnixNano()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO path_records (room_id, user_id, color, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			color = excluded.color,
			path = excluded.path,
			updated_at = excluded.updated_at
	`, roomID, userID, color, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("save path for %s in %s: %w", userID, roomID, err)
	}
	return nil
}

func (d *Database) SaveSelectedWords(ctx context.Context, roomID, userID, color string, words []string) error {
	if words == nil {
		words = []string{}
	}
	encoded, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("encode selected words: %w", err)
	}

	now := d.now().UnixNano()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO path_records (room_id, user_id, color, selected_words, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, user_id) DO UPDATE SET
			selected_words = excluded.selected_words,
			updated_at = excluded.updated_at
	`, roomID, userID, color, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("save selected words for %s in %s: %w", userID, roomID, err)
	}
	return nil
}

func (d *Database) Paths(ctx context.Context, roomID string) ([]history.PathEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT user_id, color, path FROM path_records WHERE room_id = ? ORDER BY id ASC",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []history.PathEntry{}
	for rows.Next() {
		var e history.PathEntry
		var raw string
		if err := rows.Scan(&e.UserID, &e.Color, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Path); err != nil {
			return nil, fmt.Errorf("decode path for %s: %w", e.UserID, err)
		}
		if e.Path == nil {
			e.Path = []int{}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (d *Database) SelectedWords(ctx context.Context, roomID string) ([]history.SelectionEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT user_id, color, selected_words FROM path_records
		WHERE room_id = ? AND selected_words IS NOT NULL AND selected_words != '[]'
		ORDER BY id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []history.SelectionEntry{}
	for rows.Next() {
		var e history.SelectionEntry
		var raw string
		if err := rows.Scan(&e.UserID, &e.Color, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.SelectedWords); err != nil {
			return nil, fmt.Errorf("decode selected words for %s: %w", e.UserID, err)
		}
		if len(e.SelectedWords) == 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (d *Database) Stats(ctx context.Context) (history.Stats, error) {
	var s history.Stats
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT room_id), COUNT(*) FROM path_records",
	).Scan(&s.Rooms, &s.Records)
	return s, err
}

// PruneBefore deletes records last saved before cutoff.
func (d *Database) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM path_records WHERE updated_at < ?",
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
