package document

import (
	"errors"
	"flag"
	"testing"

	"github.com/go-playground/assert/v2"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("v", "0")
}

func TestNewStoreSeed(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, s.Current().Source, DefaultSource)
	assert.Equal(t, s.Current().Revision, int64(0))

	blank := "  \n\t"
	s = NewStore(&blank)
	assert.Equal(t, s.Current().Source, DefaultSource)

	seed := `\documentclass{article}`
	s = NewStore(&seed)
	assert.Equal(t, s.Current().Source, seed)
}

func TestSetIncrementsByOne(t *testing.T) {
	s := NewStore(nil)
	for i := 1; i <= 5; i++ {
		origin := OriginUser
		if i%2 == 0 {
			origin = OriginAI
		}
		m, err := s.Set("text", origin)
		assert.Equal(t, err, nil)
		assert.Equal(t, m.Revision, int64(i))
		assert.Equal(t, m.Origin, origin)
		assert.Equal(t, s.Revision(), int64(i))
	}
}

func TestSetNotifiesInOrderBeforeReturning(t *testing.T) {
	s := NewStore(nil)

	var seen []string
	s.Subscribe(func(m Mutation) {
		seen = append(seen, "a:"+m.Source)
	})
	s.Subscribe(func(m Mutation) {
		// the store already reflects the mutation when subscribers run
		assert.Equal(t, s.Current().Revision, m.Revision)
		seen = append(seen, "b:"+m.Source)
	})

	s.Set("one", OriginUser)
	assert.Equal(t, seen, []string{"a:one", "b:one"})
	s.Set("two", OriginAI)
	assert.Equal(t, seen, []string{"a:one", "b:one", "a:two", "b:two"})
}

func TestSetRejectsUnknownOrigin(t *testing.T) {
	s := NewStore(nil)
	notified := false
	s.Subscribe(func(Mutation) { notified = true })

	_, err := s.Set("x", Origin("robot"))
	assert.Equal(t, errors.Is(err, ErrInvalidOrigin), true)
	assert.Equal(t, s.Revision(), int64(0))
	assert.Equal(t, notified, false)
}
