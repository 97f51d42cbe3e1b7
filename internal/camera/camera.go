package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// Actor starts and stops capture on command and pushes frames onto the
// frame queue.
type Actor struct {
	source   Source
	frames   *streams.Queue[Frame]
	commands *streams.Receiver[envelope.Envelope]
	events   *streams.Sender[envelope.Envelope]
	logger   *slog.Logger

	stop    context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	dropped int
}

// New creates the camera actor. It owns commands and events and closes them
// when Run returns. The frame queue is shared with the detector and is not
// closed here.
func New(src Source, frames *streams.Queue[Frame], commands *streams.Receiver[envelope.Envelope], events *streams.Sender[envelope.Envelope], logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		source:   src,
		frames:   frames,
		commands: commands,
		events:   events,
		logger:   logger,
	}
}

// Run handles camera commands until ctx is cancelled or the bus closes.
func (a *Actor) Run(ctx context.Context) error {
	defer a.commands.Close()
	defer a.events.Close()
	defer a.stopCapture()
	a.logger.Debug("camera actor started")

	for {
		env, err := a.commands.Recv(ctx)
		if err != nil {
			return err
		}
		switch env.Topic {
		case envelope.TopicCameraStateSet:
			on, err := messages.DecodeState(env.Payload)
			if err != nil {
				a.logger.Warn("dropping command", "topic", env.Topic, "err", err)
				continue
			}
			if on {
				a.startCapture(ctx)
			} else {
				a.stopCapture()
			}

		case envelope.TopicCameraGet:
			e, err := envelope.New(envelope.TopicCameraState, messages.State{State: a.capturing()})
			if err != nil {
				return err
			}
			if err := a.events.Send(ctx, e); err != nil {
				return err
			}
		}
	}
}

// capturing reports whether the capture goroutine is alive. It may have
// ended on its own if the source failed.
func (a *Actor) capturing() bool {
	if a.done == nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (a *Actor) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

func (a *Actor) startCapture(ctx context.Context) {
	if a.capturing() {
		return
	}
	a.stopCapture()
	ctx, a.stop = context.WithCancel(ctx)
	done := make(chan struct{})
	a.done = done
	a.logger.Info("capture started")
	go func() {
		defer close(done)
		a.capture(ctx)
	}()
}

func (a *Actor) stopCapture() {
	if a.stop == nil {
		return
	}
	a.stop()
	<-a.done
	a.stop, a.done = nil, nil
	a.logger.Info("capture stopped")
}

// capture pulls frames until ctx ends. A full queue means the detector is
// behind; the newest frame is dropped rather than stalling the source.
func (a *Actor) capture(ctx context.Context) {
	for {
		f, err := a.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.logger.Warn("frame source failed", "err", err)
			}
			return
		}
		if !a.frames.TrySend(f) {
			a.mu.Lock()
			a.dropped++
			a.mu.Unlock()
			a.logger.Debug("frame dropped", "timestamp", f.Timestamp)
		}
	}
}
