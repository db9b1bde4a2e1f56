package wakeword

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-presence/pkg/asr"
	"github.com/teslashibe/go-presence/pkg/audioio"
	"github.com/teslashibe/go-presence/pkg/command"
)

// SourceFactory opens a fresh audio source. The listener closes every
// source it opens before opening the next one, so the wake detector and the
// transcriber never hold the microphone at the same time.
type SourceFactory func() (audioio.Source, error)

// Dispatcher receives session boundaries and final transcripts.
type Dispatcher interface {
	BeginSession()
	Handle(ctx context.Context, transcript string) command.Effect
	EndSession()
}

const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Listener runs the acquire, wake, release, session cycle until cancelled.
type Listener struct {
	detector    Detector
	transcriber asr.Transcriber
	open        SourceFactory
	dispatcher  Dispatcher

	initialBackoff time.Duration
	maxBackoff     time.Duration
	onWake         func()
	formattedOnly  bool
	logger         *slog.Logger

	sessions atomic.Int64
	failures atomic.Int64
	chunks   atomic.Int64
	active   atomic.Bool
}

// Option configures a Listener.
type Option func(*Listener)

// WithBackoff sets the retry delay bounds after a failed cycle.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(l *Listener) {
		l.initialBackoff = initial
		l.maxBackoff = maxDelay
	}
}

// WithOnWake registers a hook called on every wake.
func WithOnWake(fn func()) Option {
	return func(l *Listener) { l.onWake = fn }
}

// WithFormattedTurns dispatches only formatted final turns. Use it when the
// transcriber sends each turn twice, raw and then formatted.
func WithFormattedTurns(on bool) Option {
	return func(l *Listener) { l.formattedOnly = on }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// NewListener creates a listener.
func NewListener(det Detector, tr asr.Transcriber, open SourceFactory, d Dispatcher, opts ...Option) *Listener {
	l := &Listener{
		detector:       det,
		transcriber:    tr,
		open:           open,
		dispatcher:     d,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "wakeword")
	return l
}

// Run loops until ctx is cancelled. Failed cycles are retried with
// exponential backoff; a successful cycle resets the delay.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("wake listener ready")
	backoff := l.initialBackoff

	for {
		err := l.cycle(ctx)
		if ctx.Err() != nil {
			l.logger.Info("wake listener exiting")
			return nil
		}
		if err == nil {
			backoff = l.initialBackoff
			continue
		}

		l.failures.Add(1)
		l.logger.Warn("wake cycle failed", "error", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			l.logger.Info("wake listener exiting")
			return nil
		case <-t.C:
		}

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// cycle waits for one wake and runs one session.
func (l *Listener) cycle(ctx context.Context) error {
	if err := l.waitForWake(ctx); err != nil {
		return err
	}

	l.logger.Info("wake detected")
	if l.onWake != nil {
		l.onWake()
	}
	return l.session(ctx)
}

func (l *Listener) waitForWake(ctx context.Context) error {
	src, err := l.open()
	if err != nil {
		return fmt.Errorf("open wake audio: %w", err)
	}
	defer src.Close()

	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start wake audio: %w", err)
	}
	return l.detector.Wait(ctx, src)
}

// session runs one blocking transcription. Final turns are handled in order
// on a separate goroutine so slow collaborators never stall the connection.
func (l *Listener) session(ctx context.Context) error {
	src, err := l.open()
	if err != nil {
		return fmt.Errorf("open session audio: %w", err)
	}
	defer src.Close()

	l.active.Store(true)
	defer l.active.Store(false)
	l.sessions.Add(1)

	turns := make(chan string, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for text := range turns {
			l.dispatcher.Handle(ctx, text)
		}
	}()

	began := false
	handler := func(ev asr.Event) {
		switch ev.Type {
		case asr.EventBegin:
			began = true
			l.dispatcher.BeginSession()
		case asr.EventTurn:
			if ev.Final() {
				if l.formattedOnly && !ev.Formatted {
					return
				}
				l.logger.Info("transcript", "text", ev.Transcript)
				select {
				case turns <- ev.Transcript:
				default:
					l.logger.Warn("turn queue full, dropping transcript", "text", ev.Transcript)
				}
			}
		case asr.EventError:
			l.logger.Warn("asr error", "error", ev.Err)
		}
	}

	err = l.transcriber.Stream(ctx, src, handler)
	close(turns)
	wg.Wait()

	audio := src.Stats()
	l.chunks.Add(audio.Chunks)
	l.logger.Debug("session audio", "chunks", audio.Chunks, "dropped", audio.Dropped)

	if began {
		l.dispatcher.EndSession()
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("asr session: %w", err)
	}
	return nil
}

// Stats is a snapshot of listener counters.
type Stats struct {
	Sessions int64 `json:"sessions"`
	Failures int64 `json:"failures"`

	// AudioChunks counts microphone chunks streamed across all sessions.
	AudioChunks int64 `json:"audio_chunks"`
	Active      bool  `json:"active"`
}

// Stats returns the listener counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Sessions:    l.sessions.Load(),
		Failures:    l.failures.Load(),
		AudioChunks: l.chunks.Load(),
		Active:      l.active.Load(),
	}
}
