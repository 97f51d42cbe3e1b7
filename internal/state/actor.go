package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// Actor runs a Machine against the command bus.
type Actor struct {
	machine  Machine
	commands *streams.Receiver[envelope.Envelope]
	cascade  *streams.Sender[envelope.Envelope]
	events   *streams.Sender[envelope.Envelope]
	logger   *slog.Logger

	// backlog holds commands read off our own cursor while a cascade publish
	// was waiting for room.
	backlog []envelope.Envelope
}

// New creates the actor. commands is its cursor on the command bus and
// cascade a sender on that same bus. It owns all three endpoints and closes
// them when Run returns.
func New(commands *streams.Receiver[envelope.Envelope], cascade, events *streams.Sender[envelope.Envelope], logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		commands: commands,
		cascade:  cascade,
		events:   events,
		logger:   logger,
	}
}

// State returns the current toggles. Only safe to call when Run is not
// running.
func (a *Actor) State() Machine { return a.machine }

// Run handles commands until ctx is cancelled or the command bus closes.
func (a *Actor) Run(ctx context.Context) error {
	defer a.commands.Close()
	defer a.cascade.Close()
	defer a.events.Close()
	a.logger.Debug("state actor started")

	for {
		env, err := a.next(ctx)
		if err != nil {
			return err
		}
		if !Owns(env.Topic) {
			a.logger.Debug("unhandled command", "topic", env.Topic)
			continue
		}
		next, out, err := a.machine.Step(env)
		if err != nil {
			a.logger.Warn("dropping command", "topic", env.Topic, "err", err)
			continue
		}
		if next != a.machine {
			a.logger.Debug("state changed", "capture", next.Capture, "streaming", next.Streaming)
		}
		a.machine = next

		for _, o := range out {
			if o.Bus == Commands {
				err = a.publishCommand(ctx, o.Envelope)
			} else {
				err = a.events.Send(ctx, o.Envelope)
			}
			if err != nil {
				return fmt.Errorf("publish %s to %s: %w", o.Envelope.Topic, o.Bus, err)
			}
		}
	}
}

func (a *Actor) next(ctx context.Context) (envelope.Envelope, error) {
	if len(a.backlog) > 0 {
		e := a.backlog[0]
		a.backlog = a.backlog[1:]
		return e, nil
	}
	return a.commands.Recv(ctx)
}

// publishCommand sends on the command bus while moving whatever arrives on
// our own cursor into the backlog. Our cursor is one of the receivers the
// send waits on, so without draining it a full buffer would never empty.
func (a *Actor) publishCommand(ctx context.Context, e envelope.Envelope) error {
	done := make(chan error, 1)
	go func() { done <- a.cascade.Send(ctx, e) }()

	in := a.commands.C()
	for {
		select {
		case err := <-done:
			return err
		case msg, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			a.backlog = append(a.backlog, msg)
		}
	}
}
