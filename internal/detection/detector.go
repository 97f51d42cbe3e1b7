// Package detection turns captured frames into detection records against
// the active session.
package detection

import (
	"context"

	"github.com/alfredjeanlab/insectcam/internal/camera"
)

// Result is one object a Detector found in a frame.
type Result struct {
	Confidence float32
	ClassID    int32
	Width      int32
	Height     int32
	Image      []byte // cropped region, optional
}

// Detector scores a frame. Model-backed detectors plug in here.
type Detector interface {
	Detect(ctx context.Context, f camera.Frame) ([]Result, error)
}

// NopDetector never finds anything.
type NopDetector struct{}

func (NopDetector) Detect(context.Context, camera.Frame) ([]Result, error) { return nil, nil }

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, f camera.Frame) ([]Result, error)

func (f DetectorFunc) Detect(ctx context.Context, fr camera.Frame) ([]Result, error) {
	return f(ctx, fr)
}

// MotionDetector reports a detection when a frame differs enough from the
// one before it. The result covers the bounding box of changed pixels and
// its confidence is how densely that box changed.
type MotionDetector struct {
	// Threshold is the fraction of pixels that must change, in (0, 1].
	Threshold float64
	// Delta is the per-pixel difference that counts as a change.
	Delta byte

	prev camera.Frame
}

// ClassMotion is the class id MotionDetector reports.
const ClassMotion = -1

// NewMotionDetector creates a detector that fires when more than threshold
// of the pixels change by at least 32 levels.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{Threshold: threshold, Delta: 32}
}

// Detect compares f with the previous frame. The first frame, and any frame
// whose size changed, only primes the detector.
func (m *MotionDetector) Detect(_ context.Context, f camera.Frame) ([]Result, error) {
	prev := m.prev
	m.prev = f
	if prev.Width != f.Width || prev.Height != f.Height || len(prev.Data) != len(f.Data) || len(f.Data) == 0 {
		return nil, nil
	}

	minX, minY, maxX, maxY := f.Width, f.Height, -1, -1
	changed := 0
	for i := range f.Data {
		a, b := f.Data[i], prev.Data[i]
		d := a - b
		if b > a {
			d = b - a
		}
		if d < m.Delta {
			continue
		}
		changed++
		x, y := i%f.Width, i/f.Width
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	score := float64(changed) / float64(len(f.Data))
	if changed == 0 || score < m.Threshold {
		return nil, nil
	}

	w, h := maxX-minX+1, maxY-minY+1
	crop := make([]byte, 0, w*h)
	for y := minY; y <= maxY; y++ {
		crop = append(crop, f.Data[y*f.Width+minX:y*f.Width+maxX+1]...)
	}
	return []Result{{
		Confidence: float32(changed) / float32(w*h),
		ClassID:    ClassMotion,
		Width:      int32(w),
		Height:     int32(h),
		Image:      crop,
	}}, nil
}
