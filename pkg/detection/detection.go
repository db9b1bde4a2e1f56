// Package detection defines the boundary between vision models and the
// inference engine. Detectors convert their native output into Detection
// values immediately; nothing downstream sees a model's raw tensors.
package detection

import (
	"image"
	"math"
	"strings"
	"time"
)

// Box is a frame-local bounding box in pixels: x1, y1, x2, y2.
type Box [4]int

// BoxFromRect converts an image.Rectangle to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

// Area returns the box area in square pixels.
func (b Box) Area() int {
	r := b.Rect()
	return r.Dx() * r.Dy()
}

// Detection is a single labeled object found in a frame.
type Detection struct {
	Label      string
	Confidence float64 // 0-1; invalid values are clamped by Sanitize
	Box        *Box    // nil when the model did not report a box
}

// Sanitize clamps Confidence into [0,1], mapping NaN to 0.
// Detectors call this on every result so malformed output reads as absent.
func (d Detection) Sanitize() Detection {
	c := d.Confidence
	switch {
	case math.IsNaN(c) || c < 0:
		c = 0
	case c > 1:
		c = 1
	}
	d.Confidence = c
	return d
}

// Frame is an opaque captured image handed from a FrameSource to Detectors.
// Backends attach their own pixel storage; Close releases it.
type Frame interface {
	Bounds() image.Rectangle
	Close() error
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in the frame.
	Detect(frame Frame) ([]Detection, error)

	// Classes returns the label set the model can emit, indexed by class ID.
	Classes() []string

	// Close releases resources.
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string   // Path to ONNX model
	Classes          []string // Class names in model output order
	ConfidenceThresh float64  // Minimum confidence kept by the detector
	NMSThresh        float64
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns production defaults for a YOLOv8 ONNX export.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/kitchen.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// BestByLabel reduces detections to the highest confidence seen per label.
func BestByLabel(dets []Detection) map[string]float64 {
	best := make(map[string]float64, len(dets))
	for _, d := range dets {
		d = d.Sanitize()
		if d.Label == "" {
			continue
		}
		if c, ok := best[d.Label]; !ok || d.Confidence > c {
			best[d.Label] = d.Confidence
		}
	}
	return best
}

// NormalizeLabel lowercases and trims a label for set membership tests.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// SelectBest picks the highest-confidence detection accepted by keep.
// A nil keep accepts everything. Returns nil when nothing qualifies.
func SelectBest(dets []Detection, keep func(Detection) bool) *Detection {
	var best *Detection
	for i := range dets {
		d := dets[i].Sanitize()
		if keep != nil && !keep(d) {
			continue
		}
		if best == nil || d.Confidence > best.Confidence {
			c := d
			best = &c
		}
	}
	return best
}

// ImageFrame adapts an image.Image to Frame, mostly for tests and files.
type ImageFrame struct {
	Img      image.Image
	Captured time.Time
}

// Bounds implements Frame.
func (f *ImageFrame) Bounds() image.Rectangle {
	if f.Img == nil {
		return image.Rectangle{}
	}
	return f.Img.Bounds()
}

// Close implements Frame.
func (f *ImageFrame) Close() error { return nil }
