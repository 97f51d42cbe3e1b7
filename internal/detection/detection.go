package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/insectcam/internal/camera"
	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// ErrNoActiveSession is returned when results arrive with no session open.
var ErrNoActiveSession = errors.New("no active session")

// Actor consumes the frame queue, records what the detector finds, and
// publishes a detection event per record after it commits.
type Actor struct {
	store    store.Store
	frames   *streams.Queue[camera.Frame]
	events   *streams.Sender[envelope.Envelope]
	detector Detector
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

// New creates the detection actor. It owns events and closes it when Run
// returns.
func New(st store.Store, frames *streams.Queue[camera.Frame], events *streams.Sender[envelope.Envelope], d Detector, opts ...Option) *Actor {
	if d == nil {
		d = NopDetector{}
	}
	a := &Actor{
		store:    st,
		frames:   frames,
		events:   events,
		detector: d,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run processes frames until ctx is cancelled or the frame queue closes.
func (a *Actor) Run(ctx context.Context) error {
	defer a.events.Close()
	a.logger.Debug("detection actor started")

	for {
		f, err := a.frames.Recv(ctx)
		if err != nil {
			return err
		}
		results, err := a.detector.Detect(ctx, f)
		if err != nil {
			a.logger.Warn("detector failed", "timestamp", f.Timestamp, "err", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		out, err := a.Record(ctx, f, results)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("dropping detections", "count", len(results), "err", err)
			continue
		}
		for _, e := range out {
			if err := a.events.Send(ctx, e); err != nil {
				return fmt.Errorf("publish %s: %w", e.Topic, err)
			}
		}
	}
}

// Record stores results against the active session in one transaction and
// returns the detection events to publish once it has committed.
func (a *Actor) Record(ctx context.Context, f camera.Frame, results []Result) ([]envelope.Envelope, error) {
	now := a.now().UnixMilli()
	created := f.Timestamp
	if created == 0 {
		created = now
	}

	var out []envelope.Envelope
	err := a.store.RunInTransaction(ctx, func(tx store.Tx) error {
		out = out[:0]
		active, err := tx.ActiveSessions(ctx)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return ErrNoActiveSession
		}
		// Sessions ids sort by open time; the newest wins if more than one
		// was ever left active.
		session := active[len(active)-1]

		for _, r := range results {
			id, err := tx.NextDetectionID(ctx)
			if err != nil {
				return err
			}
			d := model.Detection{
				ID:         id,
				SessionID:  session.ID,
				CreatedAt:  created,
				UpdatedAt:  now,
				Confidence: r.Confidence,
				ClassID:    r.ClassID,
				Width:      r.Width,
				Height:     r.Height,
				Image:      r.Image,
			}
			if err := model.ValidateDetection(&d); err != nil {
				a.logger.Warn("skipping detection", "session", session.ID, "err", err)
				continue
			}
			if err := tx.InsertDetection(ctx, d); err != nil {
				return err
			}
			e, err := envelope.New(envelope.TopicDetection, messages.DetectionFrom(d))
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
