// Package state holds the capture and streaming toggles and cascades a
// capture start to the session and camera actors.
package state

import (
	"fmt"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
)

// Target names the bus an Output goes to.
type Target int

const (
	Events Target = iota
	Commands
)

func (t Target) String() string {
	if t == Commands {
		return "commands"
	}
	return "events"
}

// Output is one envelope a Step wants published.
type Output struct {
	Bus      Target
	Envelope envelope.Envelope
}

// Machine is the toggle state. The zero value has both toggles off.
type Machine struct {
	Capture   bool
	Streaming bool
}

// Step applies one command and returns the next state and the envelopes to
// publish, in order. Topics it does not own return the machine unchanged
// and no outputs. On a decode error the machine is returned unchanged.
func (m Machine) Step(env envelope.Envelope) (Machine, []Output, error) {
	switch env.Topic {
	case envelope.TopicCaptureGet:
		out, err := event(envelope.TopicCaptureState, m.Capture)
		return m, out, err

	case envelope.TopicCaptureSet:
		v, err := messages.DecodeState(env.Payload)
		if err != nil {
			return m, nil, fmt.Errorf("%s: %w", env.Topic, err)
		}
		if v == m.Capture {
			return m, nil, nil
		}
		next := m
		next.Capture = v
		var out []Output
		if v {
			for _, topic := range []string{envelope.TopicSessionStateSet, envelope.TopicCameraStateSet} {
				e, err := envelope.New(topic, messages.State{State: true})
				if err != nil {
					return m, nil, err
				}
				out = append(out, Output{Bus: Commands, Envelope: e})
			}
		}
		ev, err := event(envelope.TopicCaptureState, v)
		if err != nil {
			return m, nil, err
		}
		return next, append(out, ev...), nil

	case envelope.TopicStreamingGet:
		out, err := event(envelope.TopicStreamingState, m.Streaming)
		return m, out, err

	case envelope.TopicStreamingSet:
		v, err := messages.DecodeState(env.Payload)
		if err != nil {
			return m, nil, fmt.Errorf("%s: %w", env.Topic, err)
		}
		next := m
		next.Streaming = v
		out, err := event(envelope.TopicStreamState, v)
		if err != nil {
			return m, nil, err
		}
		return next, out, nil
	}
	return m, nil, nil
}

// Owns reports whether topic is one Step acts on.
func Owns(topic string) bool {
	switch topic {
	case envelope.TopicCaptureGet, envelope.TopicCaptureSet,
		envelope.TopicStreamingGet, envelope.TopicStreamingSet:
		return true
	}
	return false
}

func event(topic string, v bool) ([]Output, error) {
	e, err := envelope.New(topic, messages.State{State: v})
	if err != nil {
		return nil, err
	}
	return []Output{{Bus: Events, Envelope: e}}, nil
}
