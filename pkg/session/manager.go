package session

import (
	"context"
	"errors"
	"sync"

	"resume-editor/pkg/document"
	"resume-editor/pkg/edit"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Manager manages all sessions
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	services Services
	opts     Options
}

// NewManager creates a new session manager
func NewManager(services Services, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		services: services,
		opts:     opts,
	}
}

// Create starts a new session seeded with initial
func (m *Manager) Create(initial *string) *Session {
	s := New(uuid.New().String(), initial, m.services, m.opts)

	m.mutex.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mutex.Unlock()

	glog.V(1).Infof("[manager]%d sessions", count)
	return s
}

// ErrGenerationDisabled is returned when no generator is configured
var ErrGenerationDisabled = errors.New("resume generation is not configured")

// Generate writes a first draft from profile and starts a session seeded
// with it. No session exists until the draft is back.
func (m *Manager) Generate(ctx context.Context, profile edit.Profile) (*Session, error) {
	if m.services.Generator == nil {
		return nil, ErrGenerationDisabled
	}
	text, err := edit.Generate(ctx, m.services.Generator, profile, document.DefaultSource, m.opts.EditTimeout)
	if err != nil {
		glog.Warningf("[manager]generate role=%q = %s", profile.Role, err)
		return nil, err
	}
	return m.Create(&text), nil
}

// Get returns the session with the given id
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards the session with the given id
func (m *Manager) Close(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// CloseAll discards every session
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
