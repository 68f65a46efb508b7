// Package eventloop runs a session's state transitions on a single goroutine.
//
// Work that blocks (timers, network round trips) happens elsewhere and posts
// its continuation back, so the state it touches never needs a lock.
package eventloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/golang/glog"
)

// ErrClosed is returned when work is posted to a closed loop
var ErrClosed = errors.New("event loop closed")

// Poster is the part of Loop that components need to schedule continuations
type Poster interface {
	Post(fn func()) bool
}

// Loop executes posted functions one at a time in FIFO order
type Loop struct {
	mutex  sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// Calling Do from inside a loop task deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until Close is called
func (l *Loop) Run() {
	for {
		l.mutex.Lock()
		tasks := l.queue
		l.queue = nil
		l.mutex.Unlock()

		for _, task := range tasks {
			select {
			case <-l.done:
				return
			default:
			}
			l.run(task)
		}

		select {
		case <-l.wake:
		case <-l.done:
			return
		}
	}
}

func (l *Loop) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			glog.Errorf("[loop]panic in task: %v\n%s", rec, debug.Stack())
		}
	}()
	task()
}

// Close stops the loop. Pending tasks are dropped.
func (l *Loop) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Done is closed once the loop has been closed
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
