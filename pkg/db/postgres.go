package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
)

// PostgresJournal implements IJournal using PostgreSQL
type PostgresJournal struct {
	db    *sql.DB
	queue chan Event
	done  chan struct{}

	mutex  sync.RWMutex
	closed bool
}

// NewPostgresJournal connects, creates the events table if needed and starts
// the background writer.
func NewPostgresJournal(connStr string, queueSize int) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := newPostgresJournal(db, queueSize)

	if err := j.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	go j.run()
	return j, nil
}

func newPostgresJournal(db *sql.DB, queueSize int) *PostgresJournal {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &PostgresJournal{
		db:    db,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Record enqueues ev, dropping it when the writer is behind
func (j *PostgresJournal) Record(ev Event) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- ev:
	default:
		glog.Warningf("[journal]queue full, dropped %s %s", ev.Kind, ev.ID)
	}
}

func (j *PostgresJournal) run() {
	defer close(j.done)
	for ev := range j.queue {
		if err := j.insert(context.Background(), ev); err != nil {
			glog.Errorf("[journal]insert %s = %s", ev.ID, err)
		}
	}
}

func (j *PostgresJournal) insert(ctx context.Context, ev Event) error {
	query := `
		INSERT INTO session_events (id, session_id, kind, revision, origin, status, message, bytes, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := j.db.ExecContext(ctx, query,
		ev.ID,
		ev.SessionID,
		ev.Kind,
		ev.Revision,
		ev.Origin,
		ev.Status,
		ev.Message,
		ev.Bytes,
		ev.DurationMs,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (j *PostgresJournal) ListSessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	query := `
		SELECT id, session_id, kind, revision, origin, status, message, bytes, duration_ms, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY id ASC
	`

	rows, err := j.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&ev.Kind,
			&ev.Revision,
			&ev.Origin,
			&ev.Status,
			&ev.Message,
			&ev.Bytes,
			&ev.DurationMs,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return events, nil
}

// Close drains the queue and closes the database connection
func (j *PostgresJournal) Close() error {
	j.mutex.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mutex.Unlock()
	<-j.done
	return j.db.Close()
}

// Compile-time check to ensure PostgresJournal implements IJournal
var _ IJournal = (*PostgresJournal)(nil)
