package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"resume-editor/pkg/compile"
	"resume-editor/pkg/db"
	"resume-editor/pkg/document"
	"resume-editor/pkg/edit"
	"resume-editor/pkg/eventloop"
	"resume-editor/pkg/export"
	"resume-editor/pkg/view"

	"github.com/golang/glog"
)

// ErrSessionNotFound is returned for unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// Services are the remote collaborators shared by every session
type Services struct {
	Compiler  compile.Service
	Editor    edit.Service
	Generator edit.Generator
}

// Options tune new sessions. Zero values take the component defaults.
type Options struct {
	Debounce       time.Duration
	CompileTimeout time.Duration
	EditTimeout    time.Duration
	Clock          compile.Clock
	ExportDir      string
	Journal        db.IJournal
}

// Session is one editing session: a document, its compile cycle, the edit
// applier and the websocket clients watching it. Everything but the loop
// and the joining set is owned by the loop goroutine.
type Session struct {
	ID        string
	CreatedAt time.Time

	loop      *eventloop.Loop
	store     *document.Store
	view      *view.State
	scheduler *compile.Scheduler
	applier   *edit.Applier
	exporter  *export.Exporter
	journal   db.IJournal

	clients map[string]*Client
	waiters []chan struct{}
	closed  bool

	// clients whose registration task has not run yet
	joinMutex sync.Mutex
	joining   map[*Client]struct{}
}

// New starts a session seeded with initial (the default resume when nil or
// blank). The seed is compiled after one debounce window.
func New(id string, initial *string, services Services, opts Options) *Session {
	journal := opts.Journal
	if journal == nil {
		journal = db.NopJournal{}
	}

	loop := eventloop.New()
	store := document.NewStore(initial)
	state := view.New(store.Current())

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		loop:      loop,
		store:     store,
		view:      state,
		journal:   journal,
		clients:   make(map[string]*Client),
		joining:   make(map[*Client]struct{}),
	}
	s.scheduler = compile.NewScheduler(loop, store, services.Compiler, state, compile.Config{
		Debounce: opts.Debounce,
		Timeout:  opts.CompileTimeout,
		Clock:    opts.Clock,
	})
	s.applier = edit.NewApplier(loop, store, services.Editor, opts.EditTimeout)
	s.exporter = export.NewExporter(s, opts.ExportDir)

	// the scheduler sees a mutation before the view does
	store.Subscribe(s.scheduler.OnMutation)
	store.Subscribe(state.OnMutation)
	store.Subscribe(s.recordMutation)
	s.applier.OnPendingChanged(state.EditPendingChanged)
	s.applier.OnOutcome(s.recordEdit)
	s.scheduler.OnDispatch(s.recordDispatch)
	s.scheduler.OnOutcome(s.recordCompile)
	state.Subscribe(s.onChange)

	go loop.Run()
	loop.Post(s.scheduler.Start)

	ev := db.NewEvent(id, db.KindSession)
	ev.Status = "created"
	ev.Bytes = len(store.Current().Source)
	journal.Record(ev)
	glog.Infof("[session]%s created", id)
	return s
}

// Snapshot returns the current view state
func (s *Session) Snapshot(ctx context.Context) (view.Snapshot, error) {
	var snap view.Snapshot
	err := s.loop.Do(ctx, func() {
		snap = s.view.Snapshot()
	})
	return snap, err
}

// Edit replaces the document text as a user mutation
func (s *Session) Edit(ctx context.Context, text string) (document.Mutation, error) {
	var m document.Mutation
	var setErr error
	err := s.loop.Do(ctx, func() {
		m, setErr = s.store.Set(text, document.OriginUser)
	})
	if err != nil {
		return document.Mutation{}, err
	}
	return m, setErr
}

// Recompile requests a compile of the current text now
func (s *Session) Recompile(ctx context.Context) error {
	return s.loop.Do(ctx, s.scheduler.Recompile)
}

// ApplyInstruction sends text to the edit service and waits for the rewrite
// to be applied. Busy and blank instructions fail immediately.
func (s *Session) ApplyInstruction(ctx context.Context, text string) (edit.Outcome, error) {
	result := make(chan edit.Outcome, 1)
	var submitErr error
	err := s.loop.Do(ctx, func() {
		submitErr = s.applier.Submit(edit.Instruction{Text: text}, func(out edit.Outcome) {
			result <- out
		})
	})
	if err != nil {
		return edit.Outcome{}, err
	}
	if submitErr != nil {
		return edit.Outcome{}, submitErr
	}

	select {
	case out := <-result:
		return out, out.Err
	case <-ctx.Done():
		return edit.Outcome{}, ctx.Err()
	case <-s.loop.Done():
		return edit.Outcome{}, eventloop.ErrClosed
	}
}

// LatestArtifact implements export.Source
func (s *Session) LatestArtifact(ctx context.Context) (view.Artifact, bool, error) {
	var artifact view.Artifact
	var ok bool
	err := s.loop.Do(ctx, func() {
		artifact, ok = s.view.Artifact()
	})
	return artifact, ok, err
}

// Export hands the latest artifact to trigger as resume.pdf
func (s *Session) Export(ctx context.Context, trigger func(*export.Download) error) error {
	return s.exporter.Export(ctx, trigger)
}

// WaitSettled blocks until no compile is pending or running and no
// instruction is outstanding.
func (s *Session) WaitSettled(ctx context.Context) error {
	wait := make(chan struct{})
	err := s.loop.Do(ctx, func() {
		if s.settled() {
			close(wait)
			return
		}
		s.waiters = append(s.waiters, wait)
	})
	if err != nil {
		return err
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loop.Done():
		return eventloop.ErrClosed
	}
}

// Events lists the journal entries of this session
func (s *Session) Events(ctx context.Context) ([]db.Event, error) {
	return s.journal.ListSessionEvents(ctx, s.ID)
}

// Close stops the compile cycle, disconnects clients and stops the loop
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.loop.Do(ctx, func() {
		if s.closed {
			return
		}
		s.closed = true
		s.scheduler.Close()
		s.applier.Close()
		for id, client := range s.clients {
			delete(s.clients, id)
			close(client.Send)
		}
	})
	if err != nil && !errors.Is(err, eventloop.ErrClosed) {
		glog.Warningf("[session]%s close = %s", s.ID, err)
	}
	s.loop.Close()

	// registration tasks still queued were dropped with the loop
	s.joinMutex.Lock()
	stranded := s.joining
	s.joining = make(map[*Client]struct{})
	s.joinMutex.Unlock()
	for c := range stranded {
		close(c.Send)
	}

	ev := db.NewEvent(s.ID, db.KindSession)
	ev.Status = "closed"
	s.journal.Record(ev)
	glog.Infof("[session]%s closed", s.ID)
}

func (s *Session) settled() bool {
	switch s.scheduler.Status() {
	case compile.StatusIdle, compile.StatusError:
		return !s.applier.Pending()
	default:
		return false
	}
}

func (s *Session) onChange(change view.Change) {
	s.broadcast(stateMessage(change.Snapshot))
	if change.Artifact != nil {
		s.broadcast(artifactMessage(*change.Artifact))
	}
	if len(s.waiters) > 0 {
		// a change can be followed by more work in the same task, such as
		// the mutation that follows an applied rewrite
		s.loop.Post(s.releaseWaiters)
	}
}

func (s *Session) releaseWaiters() {
	if len(s.waiters) == 0 || !s.settled() {
		return
	}
	for _, wait := range s.waiters {
		close(wait)
	}
	s.waiters = nil
}

func (s *Session) recordMutation(m document.Mutation) {
	ev := db.NewEvent(s.ID, db.KindMutation)
	ev.Revision = m.Revision
	ev.Origin = string(m.Origin)
	ev.Bytes = len(m.Source)
	s.journal.Record(ev)
}

func (s *Session) recordDispatch(req compile.Request) {
	ev := db.NewEvent(s.ID, db.KindDispatch)
	ev.Revision = req.Revision
	ev.Bytes = len(req.Source)
	s.journal.Record(ev)
}

func (s *Session) recordCompile(out compile.Outcome) {
	ev := db.NewEvent(s.ID, db.KindCompile)
	ev.Revision = out.Request.Revision
	ev.DurationMs = out.Duration.Milliseconds()
	ev.Message = out.Message
	switch {
	case out.Stale:
		ev.Status = "stale"
	case out.Success:
		ev.Status = "success"
	default:
		ev.Status = "failed"
	}
	s.journal.Record(ev)
}

func (s *Session) recordEdit(out edit.Outcome) {
	ev := db.NewEvent(s.ID, db.KindEdit)
	ev.Revision = out.BaseRevision
	ev.DurationMs = out.Duration.Milliseconds()
	if out.Err != nil {
		ev.Status = "failed"
		ev.Message = out.Err.Error()
	} else {
		ev.Status = "applied"
		ev.Revision = out.Mutation.Revision
		ev.Bytes = len(out.Mutation.Source)
	}
	s.journal.Record(ev)
}
