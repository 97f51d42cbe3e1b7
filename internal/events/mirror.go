package events

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// Mirror is an actor that republishes every event-bus envelope's payload on
// Subject(prefix, topic).
type Mirror struct {
	events *streams.Receiver[envelope.Envelope]
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewMirror creates the mirror. It owns events and closes it when Run
// returns; the publisher stays open for the caller to close.
func NewMirror(events *streams.Receiver[envelope.Envelope], pub Publisher, prefix string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{events: events, pub: pub, prefix: prefix, logger: logger}
}

// Run mirrors events until ctx is cancelled or the bus closes. Publish
// failures are logged and the event skipped.
func (m *Mirror) Run(ctx context.Context) error {
	defer m.events.Close()
	for {
		env, err := m.events.Recv(ctx)
		if err != nil {
			return err
		}
		subject := Subject(m.prefix, env.Topic)
		if err := m.pub.Publish(ctx, subject, env.Payload); err != nil {
			m.logger.Warn("mirror publish failed", "subject", subject, "err", err)
		}
	}
}
