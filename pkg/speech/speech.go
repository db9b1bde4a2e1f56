// Package speech runs text-to-speech as detached background work.
//
// Callers hand a sentence to a Speaker and return immediately; a small
// worker pool synthesizes and plays it. Utterances are spoken in the order
// they were submitted.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-presence/pkg/tts"
)

// ErrClosed is returned by Say after Close.
var ErrClosed = errors.New("speech: pool closed")

// ErrQueueFull is returned by Say when the queue is at capacity.
var ErrQueueFull = errors.New("speech: queue full")

// Speaker accepts text to be spoken without blocking the caller.
type Speaker interface {
	Say(text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(text string) error

// Say calls f(text).
func (f SpeakerFunc) Say(text string) error {
	return f(text)
}

// Discard is a Speaker that drops everything.
var Discard Speaker = SpeakerFunc(func(string) error { return nil })

// Player plays synthesized audio, blocking until done.
type Player interface {
	Play(ctx context.Context, res *tts.AudioResult) error
}

// Config tunes a Pool.
type Config struct {
	// QueueSize bounds pending utterances. Say fails fast beyond it.
	QueueSize int

	// Timeout bounds synthesis plus playback of a single utterance.
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize: 16,
		Timeout:   30 * time.Second,
	}
}

// Pool is a Speaker backed by one worker goroutine, so playback never
// overlaps. Close drains the queue and waits for the worker.
type Pool struct {
	provider tts.Provider
	player   Player
	cfg      Config
	logger   *slog.Logger

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// OnSpoken is called after each utterance, with the error if any.
	OnSpoken func(text string, err error)
}

// NewPool starts the worker.
func NewPool(provider tts.Provider, player Player, cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		provider: provider,
		player:   player,
		cfg:      cfg,
		logger:   logger.With("component", "speech"),
		queue:    make(chan string, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(1)
	go p.worker()
	return p
}

// Say queues text for speaking. Empty text is ignored.
func (p *Pool) Say(text string) error {
	if text == "" {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- text:
		p.logger.Debug("queued utterance", "text", text)
		return nil
	default:
		p.logger.Warn("speech queue full, dropping utterance", "text", text)
		return ErrQueueFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for text := range p.queue {
		err := p.speak(text)
		if err != nil {
			p.logger.Warn("speak failed", "text", text, "error", err)
		}
		if p.OnSpoken != nil {
			p.OnSpoken(text, err)
		}
	}
}

func (p *Pool) speak(text string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.provider.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if p.player == nil {
		return nil
	}
	return p.player.Play(ctx, res)
}

// Close stops accepting work, lets queued utterances finish until ctx is
// done, then aborts whatever is still running.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

var _ Speaker = (*Pool)(nil)
