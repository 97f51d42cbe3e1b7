// Package actor turns a value that owns bus endpoints into a long-running
// task on its own OS thread, and supervises what happens when it ends.
//
// An actor is constructed once with everything it needs, then handed to
// Start. After Start the caller must not touch it again: the only way to
// reach a running actor is through the buses it was wired to.
package actor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

// Actor is a unit of logic with a single entry point. Run normally loops over
// its receivers until ctx is cancelled or a bus it depends on closes.
type Actor interface {
	Run(ctx context.Context) error
}

// Func adapts a plain function to the Actor interface.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error { return f(ctx) }

// ErrPanic wraps the value recovered from a panicking actor.
var ErrPanic = errors.New("actor panicked")

// Exit describes why an actor stopped.
type Exit struct {
	Name  string
	Err   error  // nil when Run returned nil
	Stack string // set when Run panicked
}

// Clean reports whether the actor returned without error or because its
// context was cancelled.
func (e Exit) Clean() bool {
	return e.Err == nil || errors.Is(e.Err, context.Canceled)
}

func (e Exit) String() string {
	if e.Err == nil {
		return e.Name + ": exited"
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Handle is the only thing Start gives back: a way to wait for the actor.
type Handle struct {
	name string
	done chan struct{}
	exit Exit
}

// Start launches a.Run on a dedicated OS thread and returns immediately.
func Start(ctx context.Context, name string, a Actor) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}
	go func() {
		// The thread is discarded when the goroutine exits while still
		// locked, so a crashed actor never hands a dirty thread back.
		runtime.LockOSThread()
		h.exit = run(ctx, name, a)
		close(h.done)
	}()
	return h
}

func run(ctx context.Context, name string, a Actor) (exit Exit) {
	exit.Name = name
	defer func() {
		if r := recover(); r != nil {
			exit.Err = fmt.Errorf("%w: %v", ErrPanic, r)
			exit.Stack = string(debug.Stack())
		}
	}()
	exit.Err = a.Run(ctx)
	return exit
}

// Name returns the name the actor was started with.
func (h *Handle) Name() string { return h.name }

// Done is closed when the actor has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the actor stops and returns why.
func (h *Handle) Wait() Exit {
	<-h.done
	return h.exit
}
