// Package sessions owns the session and detection records. It opens and
// closes capture sessions and answers queries about them.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// Actor is the session lifecycle actor.
type Actor struct {
	store    store.Store
	commands *streams.Receiver[envelope.Envelope]
	events   *streams.Sender[envelope.Envelope]
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Actor.
type Option func(*Actor)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Actor) { a.logger = l }
}

// New creates the actor. It takes ownership of commands and events and
// closes both when Run returns.
func New(st store.Store, commands *streams.Receiver[envelope.Envelope], events *streams.Sender[envelope.Envelope], opts ...Option) *Actor {
	a := &Actor{
		store:    st,
		commands: commands,
		events:   events,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run handles commands until ctx is cancelled or a bus closes. A command
// that fails is logged and dropped; the loop keeps going.
func (a *Actor) Run(ctx context.Context) error {
	defer a.commands.Close()
	defer a.events.Close()
	a.logger.Debug("sessions actor started")

	for {
		env, err := a.commands.Recv(ctx)
		if err != nil {
			return err
		}
		out, err := a.Handle(ctx, env)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("dropping command", "topic", env.Topic, "err", err)
			continue
		}
		for _, e := range out {
			if err := a.events.Send(ctx, e); err != nil {
				return fmt.Errorf("publish %s: %w", e.Topic, err)
			}
		}
	}
}

// Handle applies one command to the store and returns the events to publish,
// in order. Events are only returned once the transaction has committed, so
// a failure returns none.
func (a *Actor) Handle(ctx context.Context, env envelope.Envelope) ([]envelope.Envelope, error) {
	switch env.Topic {
	case envelope.TopicSessionOpen:
		return a.open(ctx)

	case envelope.TopicSessionStateSet:
		on, err := messages.DecodeState(env.Payload)
		if err != nil {
			return nil, err
		}
		if !on {
			return nil, nil
		}
		return a.open(ctx)

	case envelope.TopicSessionClose:
		// Closing happens implicitly when the next session opens.
		a.logger.Debug("session.close is a no-op")
		return nil, nil

	case envelope.TopicSessionAll:
		return a.all(ctx)

	case envelope.TopicSessionDetections:
		ref, err := messages.DecodeSessionRef(env.Payload)
		if err != nil {
			return nil, err
		}
		return a.detections(ctx, ref.Session)
	}
	return nil, nil
}

func (a *Actor) open(ctx context.Context) ([]envelope.Envelope, error) {
	now := a.now()
	next := model.NewSession(now)
	a.logger.Debug("opening session", "session", next.ID)
	if err := model.ValidateSession(&next); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	var out []envelope.Envelope
	err := a.store.RunInTransaction(ctx, func(tx store.Tx) error {
		out = out[:0]
		active, err := tx.ActiveSessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range active {
			s.Close(now)
			n, err := tx.CountDetections(ctx, s.ID)
			if err != nil {
				return err
			}
			if err := tx.UpdateSession(ctx, s); err != nil {
				return err
			}
			e, err := envelope.New(envelope.TopicSessionClosed, messages.SessionDetailsFrom(s, n))
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		if err := tx.InsertSession(ctx, next); err != nil {
			return err
		}
		e, err := envelope.New(envelope.TopicSessionOpened, messages.SessionDetailsFrom(next, 0))
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", next.ID, err)
	}
	a.logger.Info("session opened", "session", next.ID, "closed", len(out)-1)
	return out, nil
}

func (a *Actor) all(ctx context.Context) ([]envelope.Envelope, error) {
	var out []envelope.Envelope
	err := a.store.RunReadOnly(ctx, func(tx store.Tx) error {
		all, err := tx.ListSessions(ctx)
		if err != nil {
			return err
		}
		out = make([]envelope.Envelope, 0, len(all))
		for _, s := range all {
			// Detection counts are not computed for listings.
			e, err := envelope.New(envelope.TopicSessionDetails, messages.SessionDetailsFrom(s, 0))
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (a *Actor) detections(ctx context.Context, session string) ([]envelope.Envelope, error) {
	var out []envelope.Envelope
	err := a.store.RunReadOnly(ctx, func(tx store.Tx) error {
		ds, err := tx.ListDetections(ctx, session)
		if err != nil {
			return err
		}
		out = make([]envelope.Envelope, 0, len(ds))
		for _, d := range ds {
			e, err := envelope.New(envelope.TopicDetection, messages.DetectionFrom(d))
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list detections for %q: %w", session, err)
	}
	return out, nil
}
