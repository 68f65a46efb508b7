package db

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrJournalDisabled is returned when reading from a journal that records nothing
var ErrJournalDisabled = errors.New("session journal is disabled")

// Event kinds
const (
	KindMutation = "mutation"
	KindDispatch = "compile_dispatch"
	KindCompile  = "compile_outcome"
	KindEdit     = "edit_outcome"
	KindSession  = "session"
)

// Event is one line of a session's history. It never carries document text.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Revision   int64     `json:"revision"`
	Origin     string    `json:"origin,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	Bytes      int       `json:"bytes,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEvent stamps an event with a time-ordered id
func NewEvent(sessionID, kind string) Event {
	now := time.Now().UTC()
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SessionID: sessionID,
		Kind:      kind,
		CreatedAt: now,
	}
}

// IJournal records session history
type IJournal interface {
	// Record must not block; it is called from session event loops.
	Record(ev Event)
	ListSessionEvents(ctx context.Context, sessionID string) ([]Event, error)
	Close() error
}

// NopJournal drops everything
type NopJournal struct{}

func (NopJournal) Record(Event) {}

func (NopJournal) ListSessionEvents(context.Context, string) ([]Event, error) {
	return nil, ErrJournalDisabled
}

func (NopJournal) Close() error {
	return nil
}

var _ IJournal = NopJournal{}
