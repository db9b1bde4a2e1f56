package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory voice. It returns silent 24kHz PCM, 20ms per
// character, unless Fn is set to block, fail or inspect the context.
type Mock struct {
	Fn func(ctx context.Context, text string) (*AudioResult, error)

	mu     sync.Mutex
	texts  []string
	closed bool
}

// NewMock returns a Mock that always succeeds.
func NewMock() *Mock {
	return &Mock{}
}

// Failing returns a Mock whose every Synthesize returns err.
func Failing(err error) *Mock {
	return &Mock{Fn: func(context.Context, string) (*AudioResult, error) {
		return nil, err
	}}
}

// Name implements Provider.
func (m *Mock) Name() string { return "mock" }

// Synthesize records text and then answers.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	fn := m.Fn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return &AudioResult{
		Audio:     make([]byte, len(text)*960),
		Format:    AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16},
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
		CharCount: len(text),
	}, nil
}

// Texts returns every text passed to Synthesize, in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Close implements Provider.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Provider = (*Mock)(nil)
