// Package envelope defines the topic-tagged message carried on every bus and
// its wire framing for the websocket gateway.
//
// The wire frame is a protobuf record with field 1 = topic (string) and
// field 2 = payload (bytes). The payload is opaque here; each actor decodes it
// with the topic-specific schema in package messages.
package envelope

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode marks a malformed wire frame or payload. Callers drop the
// message and log.
var ErrDecode = errors.New("decode error")

const (
	fieldTopic   protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// Envelope is a routing key plus an opaque, topic-specific payload. Treat it
// as immutable once published.
type Envelope struct {
	Topic   string
	Payload []byte
}

// Marshaler is satisfied by every payload type in package messages.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// New builds an envelope whose payload is msg's encoding.
func New(topic string, msg Marshaler) (Envelope, error) {
	payload, err := msg.Marshal()
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Envelope{Topic: topic, Payload: payload}, nil
}

// Encode serializes e to a wire frame. The topic bytes are written as given,
// without trimming or UTF-8 validation.
func Encode(e Envelope) ([]byte, error) {
	b := make([]byte, 0, len(e.Topic)+len(e.Payload)+8)
	if e.Topic != "" {
		b = protowire.AppendTag(b, fieldTopic, protowire.BytesType)
		b = protowire.AppendString(b, e.Topic)
	}
	if len(e.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Payload)
	}
	return b, nil
}

// Decode parses a wire frame. Unknown fields are skipped; the topic is
// trimmed of surrounding whitespace. Truncated or malformed input returns an
// error wrapping ErrDecode.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: envelope tag: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldTopic && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: envelope topic: %v", ErrDecode, protowire.ParseError(n))
			}
			e.Topic = string(v)
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: envelope payload: %v", ErrDecode, protowire.ParseError(n))
			}
			e.Payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: envelope field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	e.Topic = strings.TrimSpace(e.Topic)
	return e, nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s (%d bytes)", e.Topic, len(e.Payload))
}
