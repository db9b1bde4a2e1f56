// Package yolo runs YOLOv8 ONNX exports through OpenCV's DNN module.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-presence/pkg/detection"
	"gocv.io/x/gocv"
)

// ErrUnsupportedFrame is returned for frames that carry neither a gocv.Mat
// nor an image.Image.
var ErrUnsupportedFrame = errors.New("yolo: unsupported frame type")

// MatFrame is implemented by frames backed by an OpenCV matrix.
type MatFrame interface {
	Mat() gocv.Mat
}

// Detector uses a YOLOv8 model with a custom class list.
type Detector struct {
	net       gocv.Net
	config    detection.Config
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

// New loads the ONNX model at cfg.ModelPath.
// A missing or unloadable model is an error; callers treat it as fatal.
func New(cfg detection.Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("no class names configured for %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger.Info("yolo model loaded", "path", cfg.ModelPath, "classes", len(cfg.Classes))

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger.With("model", cfg.ModelPath),
	}, nil
}

// Classes implements detection.Detector.
func (d *Detector) Classes() []string {
	return d.config.Classes
}

// Detect implements detection.Detector.
func (d *Detector) Detect(frame detection.Frame) ([]detection.Detection, error) {
	var img gocv.Mat
	switch f := frame.(type) {
	case MatFrame:
		img = f.Mat()
	case *detection.ImageFrame:
		m, err := gocv.ImageToMatRGB(f.Img)
		if err != nil {
			return nil, fmt.Errorf("convert image: %w", err)
		}
		defer m.Close()
		img = m
	default:
		return nil, ErrUnsupportedFrame
	}

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.parse(output, float32(img.Cols()), float32(img.Rows()))
	if err != nil {
		return nil, err
	}
	if len(dets) > 0 {
		d.logger.Debug("yolo detections", "count", len(dets))
	}
	return dets, nil
}

// parse decodes the [1, 4+classes, anchors] YOLOv8 output tensor.
func (d *Detector) parse(output gocv.Mat, imgW, imgH float32) ([]detection.Detection, error) {
	size := output.Size()
	if len(size) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", size)
	}
	channels, anchors := size[1], size[2]
	if channels-4 != len(d.config.Classes) {
		return nil, fmt.Errorf("model emits %d classes, %d configured", channels-4, len(d.config.Classes))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	thresh := float32(d.config.ConfidenceThresh)
	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClass := 0
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > maxScore {
				maxScore = s
				maxClass = c - 4
			}
		}
		if maxScore < thresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, maxScore)
		classIDs = append(classIDs, maxClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, thresh, float32(d.config.NMSThresh))

	out := make([]detection.Detection, 0, len(indices))
	for _, idx := range indices {
		box := detection.BoxFromRect(boxes[idx])
		out = append(out, detection.Detection{
			Label:      d.config.Classes[classIDs[idx]],
			Confidence: float64(scores[idx]),
			Box:        &box,
		}.Sanitize())
	}
	return out, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var _ detection.Detector = (*Detector)(nil)
