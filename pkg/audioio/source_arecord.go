package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// CommandFunc builds the capture command. Tests substitute their own.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// ArecordSource captures raw PCM16 from alsa-utils' arecord.
type ArecordSource struct {
	cfg     Config
	logger  *slog.Logger
	command CommandFunc

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewArecordSource creates a source. Nothing is spawned until Start.
func NewArecordSource(cfg Config, logger *slog.Logger) *ArecordSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArecordSource{
		cfg:     cfg,
		logger:  logger.With("component", "audioio.arecord"),
		command: exec.CommandContext,
	}
}

// SetCommand overrides how the capture process is created.
func (s *ArecordSource) SetCommand(fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.command = fn
}

// Args returns the arecord arguments for the configuration.
func (s *ArecordSource) Args() []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
	}
	if s.cfg.Device != "" {
		args = append(args, "-D", s.cfg.Device)
	}
	return args
}

// Start spawns arecord and begins reading chunks.
func (s *ArecordSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := s.command(cctx, "arecord", s.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("arecord stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start arecord: %w", err)
	}

	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 10)

	go s.captureLoop(cmd, stdout, s.streamCh, s.done)

	s.logger.Info("arecord source started", "device", s.cfg.Device, "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *ArecordSource) captureLoop(cmd *exec.Cmd, stdout io.Reader, out chan<- AudioChunk, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		n, err := io.ReadFull(stdout, buf)
		if n >= 2 {
			chunk := decodePCM16(buf[:n], s.cfg)
			select {
			case out <- chunk:
				s.chunksRead.Add(1)
				s.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				s.overruns.Add(1)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn("arecord read failed", "error", err)
			}
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		s.logger.Debug("arecord exited", "error", err)
	}
}

// Stop kills arecord and waits for the reader to finish.
func (s *ArecordSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("arecord source stopped")
	return nil
}

// Read reads the next audio chunk.
func (s *ArecordSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Close stops capture for good.
func (s *ArecordSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats implements Source.
func (s *ArecordSource) Stats() Stats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return Stats{
		Backend: string(BackendArecord),
		Chunks:  s.chunksRead.Load(),
		Samples: s.samplesRead.Load(),
		Dropped: s.overruns.Load(),
		Running: running,
	}
}

var _ Source = (*ArecordSource)(nil)
