package camera

import (
	"context"
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-presence/pkg/driver"
)

type fakeDevice struct {
	opened bool
	reads  []bool
	closed bool
	props  map[gocv.VideoCaptureProperties]float64
}

func (d *fakeDevice) Read(*gocv.Mat) bool {
	if len(d.reads) == 0 {
		return false
	}
	ok := d.reads[0]
	d.reads = d.reads[1:]
	return ok
}

func (d *fakeDevice) Set(prop gocv.VideoCaptureProperties, v float64) {
	if d.props == nil {
		d.props = map[gocv.VideoCaptureProperties]float64{}
	}
	d.props[prop] = v
}

func (d *fakeDevice) IsOpened() bool { return d.opened }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestConfig_Trials(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.Trials()
	want := []Trial{
		{0, BackendV4L2}, {0, BackendAny},
		{1, BackendV4L2}, {1, BackendAny},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trial %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   int
	}{
		{"defaults", func(*Config) {}, 0},
		{"no indices", func(c *Config) { c.Indices = nil }, 1},
		{"bad backend", func(c *Config) { c.Backends = []string{"dshow"} }, 1},
		{"tiny frame", func(c *Config) { c.Width = 10 }, 1},
		{"negative index", func(c *Config) { c.Indices = []int{-1} }, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if got := cfg.Validate(); len(got) != tc.want {
				t.Errorf("Validate: got %v, want %d errors", got, tc.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		p := GetPreset(name)
		if p == nil {
			t.Fatalf("preset %q missing", name)
		}
		if errs := p.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("8k") != nil {
		t.Error("unknown preset should be nil")
	}
}

func TestOpenWith_FallsThroughTrials(t *testing.T) {
	devices := map[Trial]*fakeDevice{
		{0, BackendV4L2}: {opened: false},
		{0, BackendAny}:  {opened: true, reads: []bool{false}},
		{1, BackendV4L2}: {opened: true, reads: []bool{true}},
	}
	var tried []Trial
	open := func(tr Trial) (Device, error) {
		tried = append(tried, tr)
		if d, ok := devices[tr]; ok {
			return d, nil
		}
		return nil, errors.New("no device")
	}

	c, err := OpenWith(DefaultConfig(), open, nil)
	if err != nil {
		t.Fatalf("OpenWith: %v", err)
	}
	defer c.Close()

	if c.Trial() != (Trial{1, BackendV4L2}) {
		t.Errorf("Trial: got %v", c.Trial())
	}
	if len(tried) != 3 {
		t.Errorf("tried %v, want 3 trials", tried)
	}
	if !devices[Trial{0, BackendV4L2}].closed || !devices[Trial{0, BackendAny}].closed {
		t.Error("failed devices should be closed")
	}

	d := devices[Trial{1, BackendV4L2}]
	if d.props[gocv.VideoCaptureFrameWidth] != 640 || d.props[gocv.VideoCaptureFrameHeight] != 480 {
		t.Errorf("frame size not requested: %v", d.props)
	}
}

func TestOpenWith_NoCamera(t *testing.T) {
	open := func(Trial) (Device, error) { return nil, errors.New("no device") }
	if _, err := OpenWith(DefaultConfig(), open, nil); !errors.Is(err, ErrNoCamera) {
		t.Errorf("got %v, want ErrNoCamera", err)
	}

	bad := DefaultConfig()
	bad.Indices = nil
	if _, err := OpenWith(bad, open, nil); err == nil || errors.Is(err, ErrNoCamera) {
		t.Errorf("invalid config: got %v", err)
	}
}

func TestCapture_ReadMiss(t *testing.T) {
	dev := &fakeDevice{opened: true, reads: []bool{true, false}}
	c, err := OpenWith(DefaultConfig(), func(Trial) (Device, error) { return dev, nil }, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Read(context.Background()); !errors.Is(err, driver.ErrNoFrame) {
		t.Errorf("Read: got %v, want ErrNoFrame", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read cancelled: got %v", err)
	}

	c.Close()
	if !dev.closed {
		t.Error("device not closed")
	}
	if _, err := c.Read(context.Background()); err == nil {
		t.Error("Read after Close should fail")
	}
}
