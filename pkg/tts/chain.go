package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Chain speaks with the first voice that answers. The app puts the keyed
// OpenAI voice ahead of the keyless Google one.
type Chain struct {
	voices []Provider
	logger *slog.Logger
}

// NewChain returns ErrNoVoices when voices is empty.
func NewChain(logger *slog.Logger, voices ...Provider) (*Chain, error) {
	if len(voices) == 0 {
		return nil, ErrNoVoices
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{voices: voices, logger: logger.With("component", "tts.chain")}, nil
}

// Name lists the voices in fallback order, e.g. "openai>google".
func (c *Chain) Name() string {
	names := make([]string, len(c.voices))
	for i, v := range c.voices {
		names[i] = v.Name()
	}
	return strings.Join(names, ">")
}

// Synthesize implements Provider. Blank text and a cancelled context stop
// the fallback early since no later voice could do better.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error
	for _, v := range c.voices {
		res, err := v.Synthesize(ctx, text)
		if err == nil {
			if len(errs) > 0 {
				c.logger.Info("fell back", "voice", v.Name(), "failed", len(errs))
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrEmptyText) {
			return nil, err
		}
		errs = append(errs, err)
		c.logger.Warn("voice failed", "voice", v.Name(), "error", err)
	}
	return nil, &FallbackError{Errs: errs}
}

// Close closes every voice.
func (c *Chain) Close() error {
	var errs []error
	for _, v := range c.voices {
		if err := v.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Provider = (*Chain)(nil)
