// Package audioio captures microphone audio for the wake-word detector and
// the streaming transcriber.
//
// Backends:
//   - arecord (Linux) - spawns alsa-utils arecord and reads raw PCM16
//   - mock - streamed silence or a fixed script of chunks for tests
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects arecord on Linux and mock elsewhere.
	BackendAuto Backend = "auto"
	// BackendArecord pipes audio from the arecord command.
	BackendArecord Backend = "arecord"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000, accepted by both the wake-word and ASR services.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of each chunk. The streaming ASR service
	// accepts 50ms to 1s per message.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the ALSA device name, e.g. "default" or "plughw:1,0".
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 50 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
