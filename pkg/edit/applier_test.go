package edit

import (
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"resume-editor/pkg/document"
	"resume-editor/pkg/eventloop"
	"resume-editor/pkg/remote"

	"github.com/go-playground/assert/v2"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("v", "0")
}

type editReply struct {
	text string
	err  error
}

type editCall struct {
	instruction string
	source      string
	reply       chan editReply
}

type fakeService struct {
	calls chan *editCall
}

func (f *fakeService) Apply(ctx context.Context, instruction, source string) (string, error) {
	call := &editCall{instruction: instruction, source: source, reply: make(chan editReply, 1)}
	f.calls <- call
	select {
	case r := <-call.reply:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeService) next(t *testing.T) *editCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected an edit call")
		return nil
	}
}

type fixture struct {
	t         *testing.T
	loop      *eventloop.Loop
	store     *document.Store
	service   *fakeService
	applier   *Applier
	mutations []document.Mutation
	pending   []bool
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	f := &fixture{
		t:       t,
		loop:    eventloop.New(),
		store:   document.NewStore(nil),
		service: &fakeService{calls: make(chan *editCall, 4)},
	}
	go f.loop.Run()
	f.applier = NewApplier(f.loop, f.store, f.service, timeout)
	f.store.Subscribe(func(m document.Mutation) { f.mutations = append(f.mutations, m) })
	f.applier.OnPendingChanged(func(p bool) { f.pending = append(f.pending, p) })
	t.Cleanup(func() {
		f.loop.Do(context.Background(), f.applier.Close)
		f.loop.Close()
	})
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	if err := f.loop.Do(context.Background(), fn); err != nil {
		f.t.Fatal(err)
	}
}

// submit returns the synchronous error and a channel for the outcome
func (f *fixture) submit(text string) (chan Outcome, error) {
	done := make(chan Outcome, 1)
	var err error
	f.do(func() {
		err = f.applier.Submit(Instruction{Text: text}, func(o Outcome) { done <- o })
	})
	return done, err
}

func wait(t *testing.T, done chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("expected an outcome")
		return Outcome{}
	}
}

func TestApplySuccessIsOneAIMutation(t *testing.T) {
	f := newFixture(t, 0)

	done, err := f.submit("shorten the summary section")
	assert.Equal(t, err, nil)

	call := f.service.next(t)
	assert.Equal(t, call.instruction, "shorten the summary section")
	assert.Equal(t, call.source, document.DefaultSource)
	call.reply <- editReply{text: "T"}

	out := wait(t, done)
	assert.Equal(t, out.Err, nil)
	assert.Equal(t, out.Mutation.Revision, int64(1))
	assert.Equal(t, out.Mutation.Origin, document.OriginAI)
	f.do(func() {
		assert.Equal(t, f.store.Current(), document.Document{Source: "T", Revision: 1})
		assert.Equal(t, len(f.mutations), 1)
		assert.Equal(t, f.pending, []bool{true, false})
		assert.Equal(t, f.applier.Pending(), false)
	})
}

func TestBusyGate(t *testing.T) {
	f := newFixture(t, 0)

	doneA, err := f.submit("instruction A")
	assert.Equal(t, err, nil)
	callA := f.service.next(t)

	doneB, err := f.submit("instruction B")
	assert.Equal(t, err, ErrBusy)
	f.do(func() {
		assert.Equal(t, f.store.Current().Revision, int64(0))
		assert.Equal(t, f.pending, []bool{true})
	})
	select {
	case <-doneB:
		t.Fatal("rejected instruction must not complete")
	case <-f.service.calls:
		t.Fatal("rejected instruction must not reach the service")
	case <-time.After(30 * time.Millisecond):
	}

	callA.reply <- editReply{text: "A applied"}
	wait(t, doneA)

	// gate clears after the outstanding call resolves
	_, err = f.submit("instruction C")
	assert.Equal(t, err, nil)
}

func TestEmptyInstruction(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.submit("   ")
	assert.Equal(t, err, ErrEmptyInstruction)
	f.do(func() {
		assert.Equal(t, f.applier.Pending(), false)
	})
}

func TestServiceFailureLeavesDocument(t *testing.T) {
	f := newFixture(t, 0)

	done, _ := f.submit("make it pop")
	f.service.next(t).reply <- editReply{err: &Rejection{Message: "quota exceeded"}}
	out := wait(t, done)

	var se *ServiceError
	assert.Equal(t, errors.As(out.Err, &se), true)
	assert.Equal(t, se.Message, "quota exceeded")
	f.do(func() {
		assert.Equal(t, f.store.Current().Revision, int64(0))
		assert.Equal(t, len(f.mutations), 0)
	})

	done, _ = f.submit("again")
	f.service.next(t).reply <- editReply{err: &remote.TransportError{Op: "POST /chat-edit", Err: errors.New("EOF")}}
	out = wait(t, done)
	assert.Equal(t, errors.As(out.Err, &se), true)
	assert.Equal(t, se.Message, transportFailure)
	var te *remote.TransportError
	assert.Equal(t, errors.As(out.Err, &te), true)
}

func TestEmptyRewriteIsError(t *testing.T) {
	f := newFixture(t, 0)
	done, _ := f.submit("delete everything")
	f.service.next(t).reply <- editReply{text: "  "}
	out := wait(t, done)
	assert.NotEqual(t, out.Err, nil)
	f.do(func() {
		assert.Equal(t, f.store.Current().Revision, int64(0))
	})
}

func TestEditTimeout(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	done, _ := f.submit("slow")
	f.service.next(t)
	out := wait(t, done)

	var se *ServiceError
	assert.Equal(t, errors.As(out.Err, &se), true)
	assert.Equal(t, errors.Is(out.Err, context.DeadlineExceeded), true)
	f.do(func() {
		assert.Equal(t, f.applier.Pending(), false)
	})
}
