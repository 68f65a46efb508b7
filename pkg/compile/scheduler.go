package compile

import (
	"context"
	"time"

	"resume-editor/pkg/document"
	"resume-editor/pkg/eventloop"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// Sink receives what the scheduler publishes
type Sink interface {
	CompileStatusChanged(status Status, message string)
	ArtifactPublished(revision int64, payload string)
}

// Source is the document the scheduler snapshots at dispatch time
type Source interface {
	Current() document.Document
}

// Config tunes the scheduler. Zero values take defaults.
type Config struct {
	Debounce time.Duration
	Timeout  time.Duration
	Clock    Clock
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 1000 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
}

// Scheduler collapses bursts of mutations into serialized compile calls and
// settles on a result for the latest revision.
//
// All methods must be called on the owning loop. Compile calls run on their
// own goroutine and post their result back to the loop; at most one is in
// flight at any time.
type Scheduler struct {
	loop    eventloop.Poster
	source  Source
	service Service
	sink    Sink
	cfg     Config

	status    Status
	timer     Timer
	timerSeq  uint64
	inflight  *Request
	forced    bool
	lastError string

	dispatched int
	onDispatch []func(Request)
	onOutcome  []func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewScheduler(loop eventloop.Poster, source Source, service Service, sink Sink, cfg Config) *Scheduler {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		loop:    loop,
		source:  source,
		service: service,
		sink:    sink,
		cfg:     cfg,
		status:  StatusIdle,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnDispatch registers fn to observe every dispatched request
func (s *Scheduler) OnDispatch(fn func(Request)) {
	s.onDispatch = append(s.onDispatch, fn)
}

// OnOutcome registers fn to observe every resolved request, stale ones included
func (s *Scheduler) OnOutcome(fn func(Outcome)) {
	s.onOutcome = append(s.onOutcome, fn)
}

// Status returns the current state
func (s *Scheduler) Status() Status {
	return s.status
}

// Dispatched returns how many compile calls have been issued
func (s *Scheduler) Dispatched() int {
	return s.dispatched
}

// InFlight returns the request currently awaiting a result
func (s *Scheduler) InFlight() (Request, bool) {
	if s.inflight == nil {
		return Request{}, false
	}
	return *s.inflight, true
}

// Start schedules the first compile of the seed document
func (s *Scheduler) Start() {
	if s.closed || s.status != StatusIdle {
		return
	}
	s.arm()
	s.fire(EventMutated)
}

// OnMutation is the document store subscriber
func (s *Scheduler) OnMutation(m document.Mutation) {
	if s.closed {
		return
	}
	if s.status == StatusCompiling {
		// resolve compares revisions, so the mutation is remembered implicitly
		glog.V(2).Infof("[compile]r%d arrived while compiling r%d", m.Revision, s.inflight.Revision)
		s.fire(EventMutated)
		return
	}
	s.arm()
	s.fire(EventMutated)
}

// Recompile compiles the current document now, or right after the call in flight
func (s *Scheduler) Recompile() {
	if s.closed {
		return
	}
	if s.status == StatusCompiling {
		s.forced = true
		s.fire(EventRecompile)
		return
	}
	s.stopTimer()
	if s.fire(EventRecompile) {
		s.dispatch()
	}
}

// Close cancels the timer and any call in flight; late results are dropped
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimer()
	s.cancel()
}

func (s *Scheduler) fire(ev Event) bool {
	to, ok := next(s.status, ev)
	if !ok {
		glog.Warningf("[compile]ignored %s in %s", ev, s.status)
		return false
	}
	from := s.status
	s.status = to
	if from != to {
		glog.V(1).Infof("[compile]%s -%s-> %s", from, ev, to)
		message := ""
		if to == StatusError {
			message = s.lastError
		}
		s.sink.CompileStatusChanged(to, message)
	}
	return true
}

func (s *Scheduler) arm() {
	s.stopTimer()
	seq := s.timerSeq
	s.timer = s.cfg.Clock.AfterFunc(s.cfg.Debounce, func() {
		s.loop.Post(func() {
			s.onTimer(seq)
		})
	})
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// a timer that already fired may still have its post queued
	s.timerSeq++
}

func (s *Scheduler) onTimer(seq uint64) {
	if s.closed || seq != s.timerSeq || s.status != StatusDebouncing {
		return
	}
	s.timer = nil
	if s.fire(EventTimerFired) {
		s.dispatch()
	}
}

func (s *Scheduler) dispatch() {
	doc := s.source.Current()
	req := Request{
		ID:           ulid.Make().String(),
		Revision:     doc.Revision,
		Source:       doc.Source,
		DispatchedAt: s.cfg.Clock.Now(),
	}
	s.inflight = &req
	s.forced = false
	s.dispatched++
	glog.V(1).Infof("[compile]dispatch %s r%d len=%d", req.ID, req.Revision, len(req.Source))

	for _, fn := range s.onDispatch {
		fn(req)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	service := s.service
	go func() {
		defer cancel()
		result, err := service.Compile(ctx, req.Source)
		s.loop.Post(func() {
			s.resolve(req, result, err)
		})
	}()
}

func (s *Scheduler) resolve(req Request, result Result, err error) {
	if s.closed || s.inflight == nil || s.inflight.ID != req.ID {
		return
	}
	s.inflight = nil

	current := s.source.Current()
	stale := current.Revision != req.Revision
	dirty := stale || s.forced
	outcome := Outcome{
		Request:  req,
		Stale:    stale,
		Duration: s.cfg.Clock.Now().Sub(req.DispatchedAt),
	}

	var message string
	switch {
	case err != nil:
		glog.Errorf("[compile]%s r%d transport error = %s", req.ID, req.Revision, err)
		message = transportFailure
	case !result.Success:
		message = result.Error
		if message == "" {
			message = unknownCompileError
		}
	case result.Artifact == "":
		message = unknownCompileError
	}

	if message == "" {
		outcome.Success = true
		s.notify(outcome)
		if dirty {
			glog.V(1).Infof("[compile]%s r%d superseded by r%d, refire", req.ID, req.Revision, current.Revision)
			s.fire(EventRefire)
			s.dispatch()
			return
		}
		s.lastError = ""
		s.sink.ArtifactPublished(req.Revision, result.Artifact)
		s.fire(EventSucceeded)
		return
	}

	outcome.Message = message
	s.notify(outcome)
	s.lastError = message
	s.fire(EventFailed)
	if dirty {
		// edits made while the failing call was out still need compiling
		s.arm()
		s.fire(EventMutated)
	}
}

func (s *Scheduler) notify(outcome Outcome) {
	for _, fn := range s.onOutcome {
		fn(outcome)
	}
}
