// Package events mirrors the event bus onto NATS so other services can
// follow what the appliance does without holding the websocket.
package events

import (
	"context"
	"strings"
)

// DefaultPrefix starts every mirrored subject.
const DefaultPrefix = "insectcam"

// Publisher emits raw event payloads on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Close() error
}

// Subject maps an event topic to the NATS subject it is mirrored on,
// e.g. "session.opened" becomes "insectcam.session.opened".
func Subject(prefix, topic string) string {
	topic = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, strings.TrimSpace(topic))
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// Topic is the inverse of Subject for subjects under prefix.
func Topic(prefix, subject string) string {
	if prefix == "" {
		return subject
	}
	return strings.TrimPrefix(subject, prefix+".")
}
