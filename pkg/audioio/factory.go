package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Opener validates cfg and resolves its backend once, then returns a
// function that creates a fresh, stopped Source on every call.
func Opener(cfg Config, logger *slog.Logger) (func() (Source, error), error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audio config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = autoBackend(runtime.GOOS)
	}

	var open func() Source
	switch backend {
	case BackendArecord:
		open = func() Source { return NewArecordSource(cfg, logger) }
	case BackendMock:
		open = func() Source { return NewMockSource(cfg, logger) }
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", backend)
	}

	logger.Info("audio input",
		"backend", backend,
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"chunk_ms", cfg.BufferDuration.Milliseconds(),
	)
	return func() (Source, error) { return open(), nil }, nil
}

// autoBackend picks arecord where ALSA exists and silence elsewhere.
func autoBackend(goos string) Backend {
	if goos == "linux" {
		return BackendArecord
	}
	return BackendMock
}
