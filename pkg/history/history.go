// Package history keeps a local SQLite log of presence transitions and item
// sightings. The durable JSON files hold only the latest record; this log
// answers "when was I last in the kitchen" and "where were they before".
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teslashibe/go-presence/pkg/detection"
	"github.com/teslashibe/go-presence/pkg/state"
)

// DefaultLimit bounds list queries that pass limit <= 0.
const DefaultLimit = 50

// DB is the history database.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex

	// last presence written, for transition filtering
	lastLocation string
	lastInZone   bool
	haveLast     bool

	dropped atomic.Int64
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	if err := db.loadLast(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: load last presence: %w", err)
	}
	return db, nil
}

// loadLast seeds transition filtering from the newest stored row, so a
// restart does not log the unchanged zone again.
func (db *DB) loadLast() error {
	err := db.conn.QueryRow(`
		SELECT location, in_zone FROM presence_events
		ORDER BY time DESC, id DESC LIMIT 1
	`).Scan(&db.lastLocation, &db.lastInZone)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	}
	db.haveLast = true
	return nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS presence_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time REAL NOT NULL,
		location TEXT NOT NULL,
		in_zone INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		score REAL
	);

	CREATE TABLE IF NOT EXISTS sightings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time REAL NOT NULL,
		place TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		x1 INTEGER, y1 INTEGER, x2 INTEGER, y2 INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_presence_time ON presence_events(time);
	CREATE INDEX IF NOT EXISTS idx_sightings_time ON sightings(time);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordPresence stores p when its location or zone flag differs from the
// previous record. It reports whether a row was written.
func (db *DB) RecordPresence(p state.Presence) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.haveLast && db.lastLocation == p.Location && db.lastInZone == p.InTargetZone {
		return false, nil
	}

	_, err := db.conn.Exec(`
		INSERT INTO presence_events (time, location, in_zone, reason, score)
		VALUES (?, ?, ?, ?, ?)
	`, state.Epoch(p.Time), p.Location, p.InTargetZone, p.Reason, p.Score)
	if err != nil {
		return false, fmt.Errorf("history: insert presence: %w", err)
	}

	db.lastLocation = p.Location
	db.lastInZone = p.InTargetZone
	db.haveLast = true
	return true, nil
}

// RecordSighting stores one last-seen update. Records without a place,
// time or confidence are ignored.
func (db *DB) RecordSighting(l state.LastSeen) error {
	if l.Place == nil || l.Time == nil || l.Confidence == nil {
		return nil
	}

	var label string
	if l.Label != nil {
		label = *l.Label
	}
	var x1, y1, x2, y2 sql.NullInt64
	if l.Box != nil {
		b := *l.Box
		x1 = sql.NullInt64{Int64: int64(b[0]), Valid: true}
		y1 = sql.NullInt64{Int64: int64(b[1]), Valid: true}
		x2 = sql.NullInt64{Int64: int64(b[2]), Valid: true}
		y2 = sql.NullInt64{Int64: int64(b[3]), Valid: true}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO sightings (time, place, label, confidence, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, state.Epoch(*l.Time), *l.Place, label, *l.Confidence, x1, y1, x2, y2)
	if err != nil {
		return fmt.Errorf("history: insert sighting: %w", err)
	}
	return nil
}

// Presence returns up to limit presence transitions, newest first.
func (db *DB) Presence(ctx context.Context, limit int) ([]state.Presence, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT time, location, in_zone, reason, score
		FROM presence_events ORDER BY time DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query presence: %w", err)
	}
	defer rows.Close()

	var out []state.Presence
	for rows.Next() {
		var (
			p     state.Presence
			t     float64
			score sql.NullFloat64
		)
		if err := rows.Scan(&t, &p.Location, &p.InTargetZone, &p.Reason, &score); err != nil {
			return nil, fmt.Errorf("history: scan presence: %w", err)
		}
		p.Time = state.FromEpoch(t)
		if score.Valid {
			v := score.Float64
			p.Score = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Sightings returns up to limit item sightings, newest first.
func (db *DB) Sightings(ctx context.Context, limit int) ([]state.LastSeen, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT time, place, label, confidence, x1, y1, x2, y2
		FROM sightings ORDER BY time DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query sightings: %w", err)
	}
	defer rows.Close()

	var out []state.LastSeen
	for rows.Next() {
		var (
			t, conf        float64
			place, label   string
			x1, y1, x2, y2 sql.NullInt64
		)
		if err := rows.Scan(&t, &place, &label, &conf, &x1, &y1, &x2, &y2); err != nil {
			return nil, fmt.Errorf("history: scan sighting: %w", err)
		}
		when := state.FromEpoch(t)
		l := state.LastSeen{Place: &place, Time: &when, Confidence: &conf}
		if label != "" {
			l.Label = &label
		}
		if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
			b := detection.Box{int(x1.Int64), int(y1.Int64), int(x2.Int64), int(y2.Int64)}
			l.Box = &b
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Follow records every store write until stop is called. Writes happen on
// a separate goroutine; events arriving while the queue is full are
// dropped and counted.
func (db *DB) Follow(store *state.Store, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history")

	events := make(chan state.Event, 64)
	done := make(chan struct{})

	var (
		sendMu sync.Mutex
		closed bool
	)
	unsubscribe := store.Subscribe(func(ev state.Event) {
		sendMu.Lock()
		defer sendMu.Unlock()
		if closed {
			return
		}
		select {
		case events <- ev:
		default:
			db.dropped.Add(1)
		}
	})

	go func() {
		defer close(done)
		for ev := range events {
			var err error
			switch ev.Kind {
			case state.EventPresence:
				if ev.Presence != nil {
					_, err = db.RecordPresence(*ev.Presence)
				}
			case state.EventLastSeen:
				if ev.LastSeen != nil {
					err = db.RecordSighting(*ev.LastSeen)
				}
			}
			if err != nil {
				logger.Warn("history write failed", "kind", ev.Kind, "error", err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			sendMu.Lock()
			closed = true
			close(events)
			sendMu.Unlock()
			<-done
		})
	}
}

// Dropped returns how many events Follow could not queue.
func (db *DB) Dropped() int64 {
	return db.dropped.Load()
}
