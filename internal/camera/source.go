// Package camera runs the frame source that feeds the detector. Physical
// capture devices plug in behind Source.
package camera

import (
	"context"
	"time"
)

// Frame is one captured grayscale image, one byte per pixel, row major.
type Frame struct {
	Timestamp int64 // epoch millis
	Width     int
	Height    int
	Data      []byte
}

// Source produces frames. Next blocks until a frame is ready.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// SyntheticSource produces frames on a fixed interval. Every so often a
// bright square crosses the scene so downstream detection has something to
// find.
type SyntheticSource struct {
	interval      time.Duration
	width, height int
	now           func() time.Time
	n             int
}

// Synthetic frame geometry.
const (
	SyntheticWidth  = 64
	SyntheticHeight = 48
	visitEvery      = 50 // frames between visits
	visitLength     = 10 // frames a visit lasts
	blobSize        = 6
)

// NewSyntheticSource creates a source producing one frame per interval.
func NewSyntheticSource(interval time.Duration) *SyntheticSource {
	return &SyntheticSource{
		interval: interval,
		width:    SyntheticWidth,
		height:   SyntheticHeight,
		now:      time.Now,
	}
}

// Next waits one interval and renders the next frame.
func (s *SyntheticSource) Next(ctx context.Context) (Frame, error) {
	if s.interval > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Frame{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	f := Frame{
		Timestamp: s.now().UnixMilli(),
		Width:     s.width,
		Height:    s.height,
		Data:      make([]byte, s.width*s.height),
	}
	if phase := s.n % visitEvery; phase < visitLength {
		x := phase * (s.width - blobSize) / visitLength
		y := s.height/2 - blobSize/2
		for row := y; row < y+blobSize; row++ {
			for col := x; col < x+blobSize; col++ {
				f.Data[row*s.width+col] = 0xFF
			}
		}
	}
	s.n++
	return f, nil
}
