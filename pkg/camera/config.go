// Package camera opens a local video device through OpenCV and serves its
// frames to the detection loop.
package camera

import "fmt"

// Backend names accepted in Config.Backends.
const (
	BackendV4L2 = "v4l2"
	BackendAny  = "any"
)

// Config holds capture settings.
type Config struct {
	// Indices are the device indices to try, in order.
	Indices []int `yaml:"indices" json:"indices"`

	// Backends are tried for each index, in order.
	Backends []string `yaml:"backends" json:"backends"`

	// Requested frame size. Drivers may ignore it.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// DefaultConfig tries indices 0 and 1 with V4L2 then any backend at 640x480.
func DefaultConfig() Config {
	return Config{
		Indices:  []int{0, 1},
		Backends: []string{BackendV4L2, BackendAny},
		Width:    640,
		Height:   480,
	}
}

// Validate checks the configuration. Returns a list of validation errors,
// or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if len(c.Indices) == 0 {
		errors = append(errors, "indices must not be empty")
	}
	for _, i := range c.Indices {
		if i < 0 {
			errors = append(errors, fmt.Sprintf("index %d must be >= 0", i))
		}
	}
	if len(c.Backends) == 0 {
		errors = append(errors, "backends must not be empty")
	}
	for _, b := range c.Backends {
		if b != BackendV4L2 && b != BackendAny {
			errors = append(errors, fmt.Sprintf("backend %q must be v4l2 or any", b))
		}
	}
	if c.Width < 160 || c.Height < 120 {
		errors = append(errors, "frame size must be at least 160x120")
	}

	return errors
}

// Trial is one device/backend combination.
type Trial struct {
	Index   int
	Backend string
}

func (t Trial) String() string {
	return fmt.Sprintf("index %d/%s", t.Index, t.Backend)
}

// Trials returns every combination in the order they are attempted:
// all backends of the first index, then the next index.
func (c *Config) Trials() []Trial {
	out := make([]Trial, 0, len(c.Indices)*len(c.Backends))
	for _, i := range c.Indices {
		for _, b := range c.Backends {
			out = append(out, Trial{Index: i, Backend: b})
		}
	}
	return out
}
