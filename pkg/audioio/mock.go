package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource stands in for a microphone. By default it streams silence at
// the configured chunk rate until stopped, which keeps a transcription
// session open. WithChunks instead plays a fixed script once and then ends
// the stream, which is how wake detection is exercised.
type MockSource struct {
	cfg    Config
	script []AudioChunk
	logger *slog.Logger

	mu      sync.Mutex
	out     chan AudioChunk
	stop    chan struct{}
	running bool
	closed  bool

	chunks  atomic.Int64
	samples atomic.Int64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithChunks plays chunks in order and then reports io.EOF.
func WithChunks(chunks ...AudioChunk) MockOption {
	return func(m *MockSource) {
		m.script = chunks
	}
}

// NewMockSource returns a stopped source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{cfg: cfg, logger: logger.With("component", "audioio.mock")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start implements Source.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}
	m.running = true
	m.out = make(chan AudioChunk, 8)
	m.stop = make(chan struct{})
	go m.play(ctx, m.out, m.stop)

	m.logger.Debug("mock source started", "scripted", m.script != nil, "chunks", len(m.script))
	return nil
}

// play owns out and closes it on exit, after the source is marked stopped.
func (m *MockSource) play(ctx context.Context, out chan<- AudioChunk, stop chan struct{}) {
	defer close(out)
	defer m.finish(stop)

	if m.script != nil {
		for _, c := range m.script {
			if !m.send(ctx, out, stop, c) {
				return
			}
		}
		return
	}

	silence := AudioChunk{
		Samples:    make([]int16, m.cfg.BufferSize()*m.cfg.Channels),
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
	tick := time.NewTicker(m.cfg.BufferDuration)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-tick.C:
		}
		if !m.send(ctx, out, stop, silence) {
			return
		}
	}
}

func (m *MockSource) send(ctx context.Context, out chan<- AudioChunk, stop <-chan struct{}, c AudioChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case out <- c:
		m.chunks.Add(1)
		m.samples.Add(int64(len(c.Samples)))
		return true
	}
}

// finish marks the run that owns stop as over. A later run is untouched.
func (m *MockSource) finish(stop chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.stop == stop {
		m.running = false
		close(stop)
	}
}

// Stop implements Source.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stop)
	}
	return nil
}

// Read implements Source.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	ch := m.out
	m.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case c, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return c, nil
	}
}

// Close implements Source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats implements Source.
func (m *MockSource) Stats() Stats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return Stats{
		Backend: string(BackendMock),
		Chunks:  m.chunks.Load(),
		Samples: m.samples.Load(),
		Running: running,
	}
}

var _ Source = (*MockSource)(nil)
