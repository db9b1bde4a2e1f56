package asr

import (
	"context"
	"sync"

	"github.com/teslashibe/go-presence/pkg/audioio"
)

// Mock is a scripted Transcriber for tests. Each Stream call delivers
// Events to the handler in order and returns Err.
type Mock struct {
	mu sync.Mutex

	Events []Event
	Err    error

	// StreamFunc, when set, replaces the scripted behaviour.
	StreamFunc func(ctx context.Context, src audioio.Source, h Handler) error

	calls int
}

// Stream implements Transcriber.
func (m *Mock) Stream(ctx context.Context, src audioio.Source, h Handler) error {
	m.mu.Lock()
	m.calls++
	fn, events, err := m.StreamFunc, m.Events, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, src, h)
	}
	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h(ev)
	}
	return err
}

// Calls returns how many sessions were started.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Transcriber = (*Mock)(nil)
