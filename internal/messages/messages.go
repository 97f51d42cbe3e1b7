// Package messages holds the topic-specific payload schemas carried inside
// envelopes. Every type encodes to protobuf wire format so that clients built
// from the shared .proto definitions interoperate with the gateway.
package messages

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
)

// State is the payload of every toggle command and event: a single bool in
// field 1.
type State struct {
	State bool
}

func (s State) Marshal() ([]byte, error) {
	return proto.Marshal(wrapperspb.Bool(s.State))
}

// DecodeState parses a State payload.
func DecodeState(b []byte) (bool, error) {
	var v wrapperspb.BoolValue
	if err := proto.Unmarshal(b, &v); err != nil {
		return false, fmt.Errorf("%w: state: %v", envelope.ErrDecode, err)
	}
	return v.GetValue(), nil
}

// SessionRef names a session, field 1.
type SessionRef struct {
	Session string
}

func (r SessionRef) Marshal() ([]byte, error) {
	return proto.Marshal(wrapperspb.String(r.Session))
}

// DecodeSessionRef parses a SessionRef payload.
func DecodeSessionRef(b []byte) (SessionRef, error) {
	var v wrapperspb.StringValue
	if err := proto.Unmarshal(b, &v); err != nil {
		return SessionRef{}, fmt.Errorf("%w: session ref: %v", envelope.ErrDecode, err)
	}
	return SessionRef{Session: v.GetValue()}, nil
}
