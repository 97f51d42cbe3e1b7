package messages

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/model"
)

func TestState(t *testing.T) {
	for _, want := range []bool{true, false} {
		b, err := State{State: want}.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		got, err := DecodeState(b)
		if err != nil {
			t.Fatalf("DecodeState: %v", err)
		}
		if got != want {
			t.Errorf("DecodeState = %v, want %v", got, want)
		}
	}
	// The observed clients send {state: true} as field 1 varint 1.
	if b, _ := (State{State: true}).Marshal(); !bytes.Equal(b, []byte{0x08, 0x01}) {
		t.Errorf("State{true} = %x, want 0801", b)
	}
	if got, err := DecodeState(nil); err != nil || got {
		t.Errorf("DecodeState(nil) = (%v, %v), want (false, nil)", got, err)
	}
	if _, err := DecodeState([]byte{0x08}); !errors.Is(err, envelope.ErrDecode) {
		t.Errorf("DecodeState(truncated) = %v, want ErrDecode", err)
	}
}

func TestSessionRef(t *testing.T) {
	b, err := SessionRef{Session: "20261017093000"}.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeSessionRef(b)
	if err != nil {
		t.Fatalf("DecodeSessionRef: %v", err)
	}
	if got.Session != "20261017093000" {
		t.Errorf("Session = %q", got.Session)
	}
	if _, err := DecodeSessionRef([]byte{0x0A, 0x09}); !errors.Is(err, envelope.ErrDecode) {
		t.Errorf("DecodeSessionRef(truncated) = %v, want ErrDecode", err)
	}
}

func TestSessionDetails(t *testing.T) {
	opened := time.Date(2026, 10, 17, 9, 30, 0, 0, time.Local)
	open := model.NewSession(opened)
	closed := open
	closed.Close(opened.Add(time.Minute))
	zero := int64(0)

	for _, tc := range []struct {
		name string
		in   SessionDetails
	}{
		{"Open", SessionDetailsFrom(open, 0)},
		{"Closed", SessionDetailsFrom(closed, 12)},
		{"ClosedAtZero", SessionDetails{Session: "x", Closed: &zero}},
		{"Empty", SessionDetails{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.in.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := DecodeSessionDetails(b)
			if err != nil {
				t.Fatalf("DecodeSessionDetails: %v", err)
			}
			if got.Session != tc.in.Session || got.Active != tc.in.Active ||
				got.Opened != tc.in.Opened || got.Detections != tc.in.Detections {
				t.Errorf("got %+v, want %+v", got, tc.in)
			}
			if (got.Closed == nil) != (tc.in.Closed == nil) {
				t.Fatalf("Closed presence = %v, want %v", got.Closed != nil, tc.in.Closed != nil)
			}
			if got.Closed != nil && *got.Closed != *tc.in.Closed {
				t.Errorf("Closed = %d, want %d", *got.Closed, *tc.in.Closed)
			}
		})
	}
}

func TestDetection(t *testing.T) {
	in := DetectionFrom(model.Detection{
		ID:         7,
		SessionID:  "20261017093000",
		CreatedAt:  1760690000000,
		UpdatedAt:  1760690000500,
		Confidence: 0.87,
		ClassID:    -1,
		Width:      320,
		Height:     240,
		Image:      []byte{0xFF, 0xD8, 0xFF},
	})
	b, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeDetection(b)
	if err != nil {
		t.Fatalf("DecodeDetection: %v", err)
	}
	if got.Session != in.Session || got.Detection != in.Detection || got.Created != in.Created ||
		got.Updated != in.Updated || got.Score != in.Score || got.Class != in.Class ||
		got.Width != in.Width || got.Height != in.Height || !bytes.Equal(got.Image, in.Image) {
		t.Errorf("got %+v, want %+v", got, in)
	}

	if _, err := DecodeDetection([]byte{0x10}); !errors.Is(err, envelope.ErrDecode) {
		t.Errorf("DecodeDetection(truncated) = %v, want ErrDecode", err)
	}
	// Score sent as varint is a schema mismatch, not silently accepted.
	if _, err := DecodeDetection([]byte{0x28, 0x01}); !errors.Is(err, envelope.ErrDecode) {
		t.Errorf("DecodeDetection(bad wire type) = %v, want ErrDecode", err)
	}
}
