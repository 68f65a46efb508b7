package db

import (
	"context"
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/oklog/ulid/v2"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("v", "0")
}

func TestNewEventIDsAreOrdered(t *testing.T) {
	a := NewEvent("s1", KindMutation)
	b := NewEvent("s1", KindCompile)

	_, err := ulid.ParseStrict(a.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, a.SessionID, "s1")
	assert.Equal(t, a.Kind, KindMutation)
	assert.Equal(t, a.ID < b.ID, true)
}

// the writer is not started, so the queue fills and later events are dropped
func TestRecordDropsWhenQueueFull(t *testing.T) {
	j := newPostgresJournal(nil, 2)

	for i := 0; i < 5; i++ {
		ev := NewEvent("s1", KindMutation)
		ev.Revision = int64(i + 1)
		j.Record(ev)
	}

	assert.Equal(t, len(j.queue), 2)
	first := <-j.queue
	second := <-j.queue
	assert.Equal(t, first.Revision, int64(1))
	assert.Equal(t, second.Revision, int64(2))
}

func TestNopJournal(t *testing.T) {
	var j IJournal = NopJournal{}
	j.Record(NewEvent("s1", KindSession))

	events, err := j.ListSessionEvents(context.Background(), "s1")
	assert.Equal(t, err, ErrJournalDisabled)
	assert.Equal(t, len(events), 0)
	assert.Equal(t, j.Close(), nil)
}
