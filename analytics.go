package main

import (
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Journaled gameplay events
const (
	EvtJoin  = "join"
	EvtHit   = "hit"
	EvtDeath = "death"
	EvtLeave = "leave"
)

const (
	journalQueueSize  = 1024
	journalBatchSize  = 50
	journalFlushEvery = 2 * time.Second
)

// JournalEvent is one gameplay event waiting to be written
type JournalEvent struct {
	Type      string
	PlayerID  string
	Username  string
	Shard     int
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics journals gameplay events with a batched background writer.
// Track never blocks a shard; a nil *Analytics discards everything.
type Analytics struct {
	db     *DB
	log    *logrus.Entry
	events chan JournalEvent
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAnalytics creates and starts the journal writer
func NewAnalytics(db *DB, log *logrus.Entry) *Analytics {
	a := &Analytics{
		db:     db,
		log:    log,
		events: make(chan JournalEvent, journalQueueSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, playerID, username string, shard int, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- JournalEvent{
		Type:      evtType,
		PlayerID:  playerID,
		Username:  username,
		Shard:     shard,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Queue full; drop rather than stall a tick
	}
}

// Stop flushes queued events and shuts the writer down. Track must not be
// called concurrently with or after Stop.
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		close(a.stop)
		a.wg.Wait()
	})
}

func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]JournalEvent, 0, journalBatchSize)
	ticker := time.NewTicker(journalFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= journalBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events and folds them into the player tallies
func (a *Analytics) flush(events []JournalEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		a.log.WithError(err).Warn("journal: begin")
		return
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO events (event_type, player_id, shard, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		a.log.WithError(err).Warn("journal: prepare")
		return
	}
	defer insert.Close()

	tally, err := tx.Prepare(`
		INSERT INTO player_tallies (player_id, username, joins, hits, deaths, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE username END,
			joins = joins + excluded.joins,
			hits = hits + excluded.hits,
			deaths = deaths + excluded.deaths,
			last_seen = excluded.last_seen`)
	if err != nil {
		a.log.WithError(err).Warn("journal: prepare tally")
		return
	}
	defer tally.Close()

	for _, evt := range events {
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		ts := evt.Timestamp.Format(time.RFC3339Nano)
		if _, err := insert.Exec(evt.Type, evt.PlayerID, evt.Shard, data, ts); err != nil {
			a.log.WithError(err).Warn("journal: insert")
			continue
		}
		var joins, hits, deaths int
		switch evt.Type {
		case EvtJoin:
			joins = 1
		case EvtHit:
			hits = 1
		case EvtDeath:
			deaths = 1
		}
		if _, err := tally.Exec(evt.PlayerID, evt.Username, joins, hits, deaths, ts); err != nil {
			a.log.WithError(err).Warn("journal: tally")
		}
	}
	if err := tx.Commit(); err != nil {
		a.log.WithError(err).Warn("journal: commit")
	}
}
