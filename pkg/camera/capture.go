package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-presence/pkg/detection"
	"github.com/teslashibe/go-presence/pkg/driver"
)

// ErrNoCamera is returned when no trial produced a readable device.
var ErrNoCamera = errors.New("camera: no working video device")

// Device is the subset of gocv.VideoCapture the capture uses.
type Device interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, value float64)
	IsOpened() bool
	Close() error
}

// OpenFunc opens a device for one trial.
type OpenFunc func(t Trial) (Device, error)

// OpenVideoCapture opens a real device through OpenCV.
func OpenVideoCapture(t Trial) (Device, error) {
	api := gocv.VideoCaptureAny
	if t.Backend == BackendV4L2 {
		api = gocv.VideoCaptureV4L2
	}
	return gocv.OpenVideoCaptureWithAPI(t.Index, api)
}

// MatFrame is a captured frame. The detection loop closes it.
type MatFrame struct {
	mat gocv.Mat
}

// Mat returns the underlying matrix.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

// Bounds implements detection.Frame.
func (f *MatFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// Close implements detection.Frame.
func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// Capture serves frames from the first working device.
type Capture struct {
	dev    Device
	trial  Trial
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open tries each trial in order and keeps the first device that opens and
// yields one frame.
func Open(cfg Config, logger *slog.Logger) (*Capture, error) {
	return OpenWith(cfg, OpenVideoCapture, logger)
}

// OpenWith is Open with a custom device opener.
func OpenWith(cfg Config, open OpenFunc, logger *slog.Logger) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera")

	for _, t := range cfg.Trials() {
		dev, err := open(t)
		if err != nil {
			logger.Debug("camera trial failed", "trial", t.String(), "error", err)
			continue
		}
		dev.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		dev.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

		if !dev.IsOpened() || !probe(dev) {
			logger.Debug("camera trial unreadable", "trial", t.String())
			dev.Close()
			continue
		}

		logger.Info("camera opened", "index", t.Index, "backend", t.Backend)
		return &Capture{dev: dev, trial: t, logger: logger}, nil
	}

	return nil, ErrNoCamera
}

func probe(dev Device) bool {
	m := gocv.NewMat()
	defer m.Close()
	return dev.Read(&m)
}

// Trial returns the device/backend combination in use.
func (c *Capture) Trial() Trial {
	return c.trial
}

// Read implements driver.Source. A failed or empty read is driver.ErrNoFrame.
func (c *Capture) Read(ctx context.Context) (detection.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("camera: read after close")
	}

	m := gocv.NewMat()
	if !c.dev.Read(&m) || m.Empty() {
		m.Close()
		return nil, driver.ErrNoFrame
	}
	return &MatFrame{mat: m}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dev.Close()
}

var _ driver.Source = (*Capture)(nil)
