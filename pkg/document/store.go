package document

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Store owns the session's source text. Set is the only way to change it.
//
// Subscribers run synchronously inside Set, in the order they subscribed,
// so every observer sees every revision exactly once and in order.
type Store struct {
	mutex       sync.RWMutex
	doc         Document
	subscribers []func(Mutation)
	now         func() time.Time
}

// NewStore creates a store seeded with initial, or with DefaultSource when
// initial is nil or blank. The seed is revision 0.
func NewStore(initial *string) *Store {
	source := DefaultSource
	if initial != nil && strings.TrimSpace(*initial) != "" {
		source = *initial
	}
	return &Store{
		doc: Document{Source: source},
		now: time.Now,
	}
}

// Current returns the current text and revision
func (s *Store) Current() Document {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.doc
}

// Revision returns the current revision
func (s *Store) Revision() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.doc.Revision
}

// Subscribe registers fn to be called after every accepted mutation
func (s *Store) Subscribe(fn func(Mutation)) {
	s.mutex.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mutex.Unlock()
}

// Set replaces the text, bumps the revision by one and notifies subscribers
// before returning.
func (s *Store) Set(text string, origin Origin) (Mutation, error) {
	if !origin.Valid() {
		return Mutation{}, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	s.mutex.Lock()
	s.doc.Source = text
	s.doc.Revision++
	m := Mutation{
		Revision: s.doc.Revision,
		Source:   text,
		Origin:   origin,
		At:       s.now(),
	}
	subscribers := s.subscribers
	s.mutex.Unlock()

	glog.V(2).Infof("[doc]r%d origin=%s len=%d", m.Revision, m.Origin, len(text))

	for _, fn := range subscribers {
		fn(m)
	}
	return m, nil
}
