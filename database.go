package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite journal connection
type DB struct {
	conn *sql.DB
}

// PlayerTally is the running per-player summary kept next to the event log
type PlayerTally struct {
	PlayerID string
	Username string
	Joins    int
	Hits     int
	Deaths   int
	LastSeen time.Time
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer goroutine; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal wal: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id TEXT NOT NULL,
		shard INTEGER NOT NULL DEFAULT 0,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS player_tallies (
		player_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		joins INTEGER NOT NULL DEFAULT 0,
		hits INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		last_seen TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_player ON events(player_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("journal migrate: %w", err)
	}
	return nil
}

// GetTally returns the summary for one player, or nil if it never joined
func (db *DB) GetTally(playerID string) (*PlayerTally, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, username, joins, hits, deaths, last_seen FROM player_tallies WHERE player_id = ?",
		playerID,
	)
	t := &PlayerTally{}
	var lastSeen string
	err := row.Scan(&t.PlayerID, &t.Username, &t.Joins, &t.Hits, &t.Deaths, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
	return t, nil
}

// EventCounts returns the number of journaled events per type
func (db *DB) EventCounts() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT event_type, COUNT(*) FROM events GROUP BY event_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
