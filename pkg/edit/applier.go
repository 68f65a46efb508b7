package edit

import (
	"context"
	"strings"
	"time"

	"resume-editor/pkg/document"
	"resume-editor/pkg/eventloop"

	"github.com/golang/glog"
)

// Mutator is the document store as seen by the applier
type Mutator interface {
	Current() document.Document
	Set(text string, origin document.Origin) (document.Mutation, error)
}

// Outcome is the result of one accepted instruction
type Outcome struct {
	Instruction  Instruction
	BaseRevision int64
	Mutation     document.Mutation
	Err          error
	Duration     time.Duration
}

// Applier sends instructions to the edit service one at a time and feeds the
// rewritten document back through the store as a single ai mutation.
//
// Submit, Pending and Close must be called on the owning loop.
type Applier struct {
	loop    eventloop.Poster
	docs    Mutator
	service Service
	timeout time.Duration

	pending   bool
	onPending []func(bool)
	onOutcome []func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewApplier(loop eventloop.Poster, docs Mutator, service Service, timeout time.Duration) *Applier {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Applier{
		loop:    loop,
		docs:    docs,
		service: service,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnPendingChanged registers fn to observe the busy flag
func (a *Applier) OnPendingChanged(fn func(bool)) {
	a.onPending = append(a.onPending, fn)
}

// OnOutcome registers fn to observe every finished instruction
func (a *Applier) OnOutcome(fn func(Outcome)) {
	a.onOutcome = append(a.onOutcome, fn)
}

// Pending reports whether an instruction is outstanding
func (a *Applier) Pending() bool {
	return a.pending
}

// Submit starts applying in. It fails synchronously, without any state change,
// with ErrEmptyInstruction or ErrBusy. Otherwise done is called on the loop
// once the service answers.
func (a *Applier) Submit(in Instruction, done func(Outcome)) error {
	if a.closed {
		return eventloop.ErrClosed
	}
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInstruction
	}
	if a.pending {
		glog.V(1).Infof("[edit]busy, rejected %q", in.Text)
		return ErrBusy
	}

	base := a.docs.Current()
	a.setPending(true)
	started := time.Now()
	glog.V(1).Infof("[edit]submit r%d %q", base.Revision, in.Text)

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	service := a.service
	go func() {
		defer cancel()
		text, err := service.Apply(ctx, in.Text, base.Source)
		a.loop.Post(func() {
			a.finish(in, base, text, err, time.Since(started), done)
		})
	}()
	return nil
}

// Close abandons any outstanding instruction
func (a *Applier) Close() {
	if a.closed {
		return
	}
	a.closed = true
	a.cancel()
}

func (a *Applier) finish(in Instruction, base document.Document, text string, err error, took time.Duration, done func(Outcome)) {
	if a.closed {
		return
	}
	a.setPending(false)

	out := Outcome{
		Instruction:  in,
		BaseRevision: base.Revision,
		Duration:     took,
	}
	switch {
	case err != nil:
		glog.Errorf("[edit]r%d %q failed = %s", base.Revision, in.Text, err)
		out.Err = toServiceError(err)
	case strings.TrimSpace(text) == "":
		out.Err = &ServiceError{Message: "The edit service returned an empty document."}
	default:
		if current := a.docs.Current().Revision; current != base.Revision {
			glog.Warningf("[edit]rewrite of r%d replaces r%d", base.Revision, current)
		}
		m, setErr := a.docs.Set(text, document.OriginAI)
		if setErr != nil {
			out.Err = &ServiceError{Message: transportFailure, Err: setErr}
		} else {
			out.Mutation = m
		}
	}

	for _, fn := range a.onOutcome {
		fn(out)
	}
	if done != nil {
		done(out)
	}
}

func (a *Applier) setPending(pending bool) {
	if a.pending == pending {
		return
	}
	a.pending = pending
	for _, fn := range a.onPending {
		fn(pending)
	}
}
