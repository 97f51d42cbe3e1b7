// Package archive copies closed sessions out of the appliance as JSONL.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
	"github.com/alfredjeanlab/insectcam/internal/store"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// Destination is a place archived sessions are written to (S3, a local
// directory).
type Destination interface {
	// Write stores the JSONL export of one session under name.
	Write(ctx context.Context, name string, data []byte) error
}

// ObjectName is the name a session's export is written under.
func ObjectName(sessionID string) string {
	return sessionID + ".jsonl"
}

// Archiver is an actor that exports every session as soon as it is closed.
type Archiver struct {
	store        store.Store
	events       *streams.Receiver[envelope.Envelope]
	destinations []Destination
	logger       *slog.Logger
}

// NewArchiver creates the archiver. It owns events and closes it when Run
// returns.
func NewArchiver(s store.Store, events *streams.Receiver[envelope.Envelope], destinations []Destination, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		store:        s,
		events:       events,
		destinations: destinations,
		logger:       logger,
	}
}

// Run waits for session.closed events until ctx is cancelled or the bus
// closes. Export and write failures are logged and the session skipped.
func (a *Archiver) Run(ctx context.Context) error {
	defer a.events.Close()
	for {
		env, err := a.events.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Topic != envelope.TopicSessionClosed {
			continue
		}
		d, err := messages.DecodeSessionDetails(env.Payload)
		if err != nil {
			a.logger.Warn("archive: dropping event", "topic", env.Topic, "err", err)
			continue
		}
		if err := a.Archive(ctx, d.Session); err != nil && ctx.Err() == nil {
			a.logger.Error("archive failed", "session", d.Session, "err", err)
		}
	}
}

// Archive exports one session and writes it to every destination. It
// returns the joined write errors, if any.
func (a *Archiver) Archive(ctx context.Context, sessionID string) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, a.store, sessionID, &buf); err != nil {
		return err
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range a.destinations {
		if err := dest.Write(ctx, ObjectName(sessionID), data); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info("session archived", "session", sessionID, "destinations", len(a.destinations), "bytes", len(data))
	return nil
}
