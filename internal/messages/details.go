package messages

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/model"
)

// SessionDetails is the payload of session.opened, session.closed and
// session.details.
type SessionDetails struct {
	Session    string
	Active     bool
	Opened     int64
	Closed     *int64
	Detections int32
}

// SessionDetailsFrom converts a stored session and its detection count.
func SessionDetailsFrom(s model.Session, detections int32) SessionDetails {
	return SessionDetails{
		Session:    s.ID,
		Active:     s.Active,
		Opened:     s.OpenedAt,
		Closed:     s.ClosedAt,
		Detections: detections,
	}
}

func (d SessionDetails) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, d.Session)
	if d.Active {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	b = appendInt64(b, 3, d.Opened)
	if d.Closed != nil {
		// Presence matters for an optional field, so zero is still written.
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*d.Closed))
	}
	b = appendInt64(b, 5, int64(d.Detections))
	return b, nil
}

// DecodeSessionDetails parses a SessionDetails payload.
func DecodeSessionDetails(b []byte) (SessionDetails, error) {
	var d SessionDetails
	err := walk(b, func(num protowire.Number, v field) error {
		switch num {
		case 1:
			s, err := v.str()
			d.Session = s
			return err
		case 2:
			x, err := v.varint()
			d.Active = x != 0
			return err
		case 3:
			x, err := v.varint()
			d.Opened = int64(x)
			return err
		case 4:
			x, err := v.varint()
			closed := int64(x)
			d.Closed = &closed
			return err
		case 5:
			x, err := v.varint()
			d.Detections = int32(x)
			return err
		}
		return nil
	})
	if err != nil {
		return SessionDetails{}, fmt.Errorf("%w: session details: %v", envelope.ErrDecode, err)
	}
	return d, nil
}

// Detection is the payload of a detection event.
type Detection struct {
	Session   string
	Detection int32
	Created   int64
	Updated   int64
	Score     float32
	Class     int32
	Width     int32
	Height    int32
	Image     []byte
}

// DetectionFrom converts a stored detection record.
func DetectionFrom(d model.Detection) Detection {
	return Detection{
		Session:   d.SessionID,
		Detection: d.ID,
		Created:   d.CreatedAt,
		Updated:   d.UpdatedAt,
		Score:     d.Confidence,
		Class:     d.ClassID,
		Width:     d.Width,
		Height:    d.Height,
		Image:     d.Image,
	}
}

func (d Detection) Marshal() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, d.Session)
	b = appendInt64(b, 2, int64(d.Detection))
	b = appendInt64(b, 3, d.Created)
	b = appendInt64(b, 4, d.Updated)
	if d.Score != 0 {
		b = protowire.AppendTag(b, 5, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(d.Score))
	}
	b = appendInt64(b, 6, int64(d.Class))
	b = appendInt64(b, 7, int64(d.Width))
	b = appendInt64(b, 8, int64(d.Height))
	if d.Image != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Image)
	}
	return b, nil
}

// DecodeDetection parses a Detection payload.
func DecodeDetection(b []byte) (Detection, error) {
	var d Detection
	err := walk(b, func(num protowire.Number, v field) error {
		var err error
		var x uint64
		switch num {
		case 1:
			d.Session, err = v.str()
		case 2:
			x, err = v.varint()
			d.Detection = int32(x)
		case 3:
			x, err = v.varint()
			d.Created = int64(x)
		case 4:
			x, err = v.varint()
			d.Updated = int64(x)
		case 5:
			var bits uint32
			bits, err = v.fixed32()
			d.Score = math.Float32frombits(bits)
		case 6:
			x, err = v.varint()
			d.Class = int32(x)
		case 7:
			x, err = v.varint()
			d.Width = int32(x)
		case 8:
			x, err = v.varint()
			d.Height = int32(x)
		case 9:
			d.Image, err = v.bytes()
		}
		return err
	})
	if err != nil {
		return Detection{}, fmt.Errorf("%w: detection: %v", envelope.ErrDecode, err)
	}
	return d, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendInt64 writes a proto3 int32/int64 scalar; negative values take the
// ten-byte two's complement form like the generated code does.
func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// field is one raw field value as found on the wire.
type field struct {
	typ protowire.Type
	raw []byte
}

func (f field) varint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("wire type %d, want varint", f.typ)
	}
	x, n := protowire.ConsumeVarint(f.raw)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

func (f field) fixed32() (uint32, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, fmt.Errorf("wire type %d, want fixed32", f.typ)
	}
	x, n := protowire.ConsumeFixed32(f.raw)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("wire type %d, want bytes", f.typ)
	}
	x, n := protowire.ConsumeBytes(f.raw)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return append([]byte{}, x...), nil
}

func (f field) str() (string, error) {
	b, err := f.bytes()
	return string(b), err
}

// walk calls fn with every field of the message in b, in wire order.
func walk(b []byte, fn func(protowire.Number, field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := fn(num, field{typ: typ, raw: b[:m]}); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
